package workload

import (
	"math/rand/v2"
)

// ScheduleLen is the length of one pass through the operation schedule.
const ScheduleLen = 100

// Schedule is a fixed-length ordering of operation kinds whose per-kind
// counts equal the configured percentages. It is never modified after
// BuildSchedule returns, so every worker can read it without synchronization.
type Schedule [ScheduleLen]OpKind

// BuildSchedule lays out mix.Percent(k) entries of each kind and shuffles them.
// A nil rng shuffles with an unseeded generator, so schedules differ between runs.
func BuildSchedule(mix Mix, rng *rand.Rand) (Schedule, error) {
	var s Schedule
	if err := mix.Validate(); err != nil {
		return s, err
	}

	pos := 0
	for _, k := range OpKinds {
		for n := mix.Percent(k); n > 0; n-- {
			s[pos] = k
			pos++
		}
	}

	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
	return s, nil
}

// Counts returns how many entries of each kind the schedule holds.
func (s *Schedule) Counts() [numOpKinds]int {
	var c [numOpKinds]int
	for _, k := range s {
		c[k]++
	}
	return c
}
