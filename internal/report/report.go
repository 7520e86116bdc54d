// Package report turns a completed run into the printed summary and the
// archived JSON document.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	kverrors "github.com/arkilian/kvmix/internal/errors"
	"github.com/arkilian/kvmix/internal/storage"
	"github.com/arkilian/kvmix/internal/workload"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// TableInfo describes the store under test.
type TableInfo struct {
	Kind      string `json:"kind"`
	KeyType   string `json:"key_type"`
	ValueType string `json:"value_type"`
}

func (t TableInfo) String() string {
	return fmt.Sprintf("%s table, %s keys, %s values", t.Kind, t.KeyType, t.ValueType)
}

// Settings echoes the run configuration.
type Settings struct {
	Reads            uint `json:"reads"`
	Inserts          uint `json:"inserts"`
	Erases           uint `json:"erases"`
	Updates          uint `json:"updates"`
	Upserts          uint `json:"upserts"`
	CapacityExponent uint `json:"initial_capacity_exponent"`
	Prefill          uint `json:"prefill"`
	TotalOps         uint `json:"total_ops"`
	Threads          int  `json:"num_threads"`
}

// UpsertSplit counts which branch the upserts took.
type UpsertSplit struct {
	Inserts uint64 `json:"inserts"`
	Updates uint64 `json:"updates"`
}

// Report is the outcome of one successful run.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Table      TableInfo `json:"table"`
	Settings   Settings  `json:"settings"`

	InitialCapacity uint64  `json:"initial_capacity"`
	PrefillElements uint64  `json:"prefill_elements"`
	PrefillSeconds  float64 `json:"prefill_seconds"`

	TotalOps       uint64  `json:"total_ops"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Throughput     float64 `json:"throughput_ops_per_sec"`

	Ops     map[string]workload.OpCount `json:"ops"`
	Upserts UpsertSplit                 `json:"upserts"`
	Threads []workload.ThreadResult     `json:"threads"`
}

// New builds a report for res. startedAt is when the run was launched.
func New(res *workload.Result, table TableInfo, startedAt time.Time) *Report {
	cfg := res.Config
	upserts := res.Stats[workload.OpUpsert].Calls
	return &Report{
		RunID:      uuid.NewString(),
		StartedAt:  startedAt.UTC(),
		FinishedAt: time.Now().UTC(),
		Table:      table,
		Settings: Settings{
			Reads:            cfg.Mix.Reads,
			Inserts:          cfg.Mix.Inserts,
			Erases:           cfg.Mix.Erases,
			Updates:          cfg.Mix.Updates,
			Upserts:          cfg.Mix.Upserts,
			CapacityExponent: cfg.CapacityExponent,
			Prefill:          cfg.PrefillPercent,
			TotalOps:         cfg.TotalOpsPercent,
			Threads:          cfg.Threads,
		},
		InitialCapacity: res.InitialCapacity,
		PrefillElements: res.PrefillElems,
		PrefillSeconds:  res.PrefillElapsed.Seconds(),
		TotalOps:        res.TotalOps,
		ElapsedSeconds:  res.Elapsed.Seconds(),
		Throughput:      res.Throughput,
		Ops:             res.Stats.ByName(),
		Upserts: UpsertSplit{
			Inserts: res.UpsertInserts,
			Updates: upserts - res.UpsertInserts,
		},
		Threads: res.Threads,
	}
}

// WriteSummary prints the three result lines.
func (r *Report) WriteSummary(w io.Writer) error {
	_, err := fmt.Fprintf(w, "total ops: %d\ntime elapsed (sec): %f\nthroughput (ops/sec): %f\n",
		r.TotalOps, r.ElapsedSeconds, r.Throughput)
	return err
}

// WriteText prints a banner, the prefill line, the per-kind breakdown and
// the summary.
func (r *Report) WriteText(w io.Writer) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, "run %s: %s\n", r.RunID, r.Table)
	fmt.Fprintf(&b, "mix: read %d%%, insert %d%%, erase %d%%, update %d%%, upsert %d%%; %d threads\n",
		r.Settings.Reads, r.Settings.Inserts, r.Settings.Erases, r.Settings.Updates, r.Settings.Upserts,
		r.Settings.Threads)
	fmt.Fprintf(&b, "initial capacity: %d\n", r.InitialCapacity)
	fmt.Fprintf(&b, "prefill: %d elements in %f sec\n", r.PrefillElements, r.PrefillSeconds)
	for _, kind := range workload.OpKinds {
		c := r.Ops[kind.String()]
		if c.Calls == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %-6s %d calls, %d succeeded\n", kind, c.Calls, c.Successes)
	}
	if r.Upserts.Inserts+r.Upserts.Updates > 0 {
		fmt.Fprintf(&b, "  upsert split: %d inserted, %d updated\n", r.Upserts.Inserts, r.Upserts.Updates)
	}
	if _, err := w.Write(b.Bytes()); err != nil {
		return err
	}
	return r.WriteSummary(w)
}

// WriteJSON writes the indented JSON document.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Write prints r in format.
func (r *Report) Write(w io.Writer, format string) error {
	switch format {
	case FormatJSON:
		return r.WriteJSON(w)
	case FormatText, "":
		return r.WriteText(w)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// Encode returns the archived form of r along with its object name and
// content type. Compressed documents use snappy block encoding.
func (r *Report) Encode(compress bool) (data []byte, name, contentType string, err error) {
	data, err = json.Marshal(r)
	if err != nil {
		return nil, "", "", err
	}
	if compress {
		return snappy.Encode(nil, data), r.RunID + compressedSuffix, "application/x-snappy", nil
	}
	return data, r.RunID + jsonSuffix, "application/json", nil
}

// Decode parses a document produced by Encode.
func Decode(data []byte, compressed bool) (*Report, error) {
	if compressed {
		raw, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress report: %w", err)
		}
		data = raw
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}

// LatestObject names the pointer to the most recently published report.
const LatestObject = "latest"

const (
	jsonSuffix       = ".json"
	compressedSuffix = ".json.sz"
)

// Publish archives r in store and returns the object name. A report is
// never overwritten; only the latest pointer is replaced.
func Publish(ctx context.Context, store storage.ObjectStorage, r *Report, compress bool) (string, error) {
	data, name, contentType, err := r.Encode(compress)
	if err != nil {
		return "", kverrors.NewReportError(kverrors.CodePublishFailed, "failed to encode report", err)
	}

	if err := store.PutIfAbsent(ctx, name, data, contentType); err != nil {
		msg := "failed to publish report"
		if errors.Is(err, storage.ErrPreconditionFailed) {
			msg = "report already published"
		}
		return "", kverrors.NewReportError(kverrors.CodePublishFailed, msg, err).
			WithDetails(map[string]interface{}{"object": name})
	}
	if err := store.Put(ctx, LatestObject, []byte(name), "text/plain"); err != nil {
		return "", kverrors.NewReportError(kverrors.CodePublishFailed, "failed to update latest pointer", err).
			WithDetails(map[string]interface{}{"object": name})
	}
	return name, nil
}

// Fetch loads the archived report for runID. The run ID "latest" resolves
// through the latest pointer.
func Fetch(ctx context.Context, store storage.ObjectStorage, runID string) (*Report, error) {
	if runID == LatestObject {
		ptr, err := store.Get(ctx, LatestObject)
		if err != nil {
			return nil, fetchError(runID, err)
		}
		return fetchObject(ctx, store, runID, strings.TrimSpace(string(ptr)))
	}

	for _, name := range []string{runID + jsonSuffix, runID + compressedSuffix} {
		ok, err := store.Exists(ctx, name)
		if err != nil {
			return nil, fetchError(runID, err)
		}
		if ok {
			return fetchObject(ctx, store, runID, name)
		}
	}
	return nil, fetchError(runID, storage.ErrObjectNotFound)
}

func fetchObject(ctx context.Context, store storage.ObjectStorage, runID, name string) (*Report, error) {
	data, err := store.Get(ctx, name)
	if err != nil {
		return nil, fetchError(runID, err)
	}
	r, err := Decode(data, strings.HasSuffix(name, compressedSuffix))
	if err != nil {
		return nil, fetchError(runID, err)
	}
	return r, nil
}

func fetchError(runID string, err error) error {
	code, msg := kverrors.CodeFetchFailed, "failed to fetch report"
	if errors.Is(err, storage.ErrObjectNotFound) {
		code, msg = kverrors.CodeReportNotFound, "report not found"
	}
	return kverrors.NewReportError(code, msg, err).
		WithDetails(map[string]interface{}{"run_id": runID})
}

// List returns the run IDs of every archived report, sorted.
func List(ctx context.Context, store storage.ObjectStorage) ([]string, error) {
	names, err := store.List(ctx, "")
	if err != nil {
		return nil, kverrors.NewReportError(kverrors.CodeFetchFailed, "failed to list reports", err)
	}
	ids := make([]string, 0, len(names))
	for _, name := range names {
		if id, ok := runIDOf(name); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func runIDOf(name string) (string, bool) {
	if id, ok := strings.CutSuffix(name, compressedSuffix); ok {
		return id, true
	}
	return strings.CutSuffix(name, jsonSuffix)
}

// Remove deletes the archived report for runID. The latest pointer is left
// alone. Removing a run that was never published is not an error.
func Remove(ctx context.Context, store storage.ObjectStorage, runID string) error {
	for _, name := range []string{runID + jsonSuffix, runID + compressedSuffix} {
		if err := store.Delete(ctx, name); err != nil {
			return kverrors.NewReportError(kverrors.CodeFetchFailed, "failed to remove report", err).
				WithDetails(map[string]interface{}{"run_id": runID, "object": name})
		}
	}
	return nil
}
