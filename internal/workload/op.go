package workload

// OpKind is one of the five operations a schedule can contain.
type OpKind uint8

const (
	OpRead OpKind = iota
	OpInsert
	OpErase
	OpUpdate
	OpUpsert

	numOpKinds
)

// OpKinds lists every kind in schedule construction order.
var OpKinds = [numOpKinds]OpKind{OpRead, OpInsert, OpErase, OpUpdate, OpUpsert}

func (k OpKind) String() string {
	switch k {
	case OpRead:
		return "read"
	case OpInsert:
		return "insert"
	case OpErase:
		return "erase"
	case OpUpdate:
		return "update"
	case OpUpsert:
		return "upsert"
	default:
		return "unknown"
	}
}

// OpCount tallies calls of one kind and how many of them the store reported
// as successful.
type OpCount struct {
	Calls     uint64 `json:"calls"`
	Successes uint64 `json:"successes"`
}

// Stats holds per-kind tallies. Each worker owns one; they are merged only
// after the phase has joined.
type Stats [numOpKinds]OpCount

func (s *Stats) record(kind OpKind, ok bool) {
	s[kind].Calls++
	if ok {
		s[kind].Successes++
	}
}

// Merge adds other into s.
func (s *Stats) Merge(other Stats) {
	for k := range s {
		s[k].Calls += other[k].Calls
		s[k].Successes += other[k].Successes
	}
}

// Total returns the number of calls across all kinds.
func (s Stats) Total() uint64 {
	var n uint64
	for _, c := range s {
		n += c.Calls
	}
	return n
}

// ByName returns the tallies keyed by kind name.
func (s Stats) ByName() map[string]OpCount {
	out := make(map[string]OpCount, len(s))
	for _, k := range OpKinds {
		out[k.String()] = s[k]
	}
	return out
}
