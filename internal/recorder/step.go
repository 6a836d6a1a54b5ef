package recorder

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"

	"reach/blackbox/internal/diff"
	blackbox "reach/blackbox/internal/errors"
	"reach/blackbox/internal/rowhash"
	"reach/blackbox/internal/seal"
	"reach/blackbox/internal/snapshot"
	"reach/blackbox/internal/store"
	"reach/blackbox/internal/table"
)

const maxTracebackBytes = 20000

// stepError is the error evidence embedded in a failed step.json.
type stepError struct {
	Type               string `json:"type"`
	Message            string `json:"message"`
	TruncatedTraceback string `json:"truncated_traceback,omitempty"`
}

// stepEvidence is the full step.json payload, spec.md §4.7/§6.
type stepEvidence struct {
	Version    string                `json:"version"`
	Ordinal    int                   `json:"ordinal"`
	Name       string                `json:"name"`
	Status     string                `json:"status"`
	StartedAt  string                `json:"started_at"`
	FinishedAt string                `json:"finished_at"`
	Metadata   map[string]any        `json:"metadata,omitempty"`
	Input      *snapshot.Fingerprint `json:"input,omitempty"`
	Output     *snapshot.Fingerprint `json:"output,omitempty"`
	SchemaDiff *rowhash.SchemaDiff   `json:"schema_diff,omitempty"`
	DiffRef    string                `json:"diff_ref,omitempty"`
	DiffSkip   *placeholderDiff      `json:"diff_skipped,omitempty"`
	Error      *stepError            `json:"error,omitempty"`
}

// placeholderDiff is written to step.json (not diff.bbdelta) when the
// fingerprint-skip policy short-circuits the differ entirely.
type placeholderDiff struct {
	Reason string `json:"reason"`
}

// Step is a single transformation observation within a Run: a scoped
// acquisition that accumulates an optional input and a (normally
// required) output, then is committed via Run.Step's wrapper function.
type Step struct {
	run      *Run
	ordinal  int
	name     string
	safeName string
	dir      string
	started  string

	input    any
	output   any
	metadata map[string]any

	diffCfg     *diff.Config
	snapshotCfg *snapshot.Config

	inputPC  *snapshot.PendingCapture
	outputPC *snapshot.PendingCapture
}

// SetInput records the step's input table value (a table.Table, a
// table.Adapter, or any bridgeable value per §6).
func (s *Step) SetInput(v any) { s.input = v }

// SetOutput records the step's output table value. Required on success
// when Recorder.Config().Recorder.EnforceExplicitOutput is set.
func (s *Step) SetOutput(v any) { s.output = v }

// AddMetadata merges free-form metadata into the step evidence, spec.md §3.
func (s *Step) AddMetadata(m map[string]any) {
	if s.metadata == nil {
		s.metadata = make(map[string]any, len(m))
	}
	for k, v := range m {
		s.metadata[k] = v
	}
}

// WithDiffConfig overrides the run-level diff configuration for this step.
func (s *Step) WithDiffConfig(cfg diff.Config) { s.diffCfg = &cfg }

// WithSnapshotConfig overrides the run-level snapshot configuration for
// this step.
func (s *Step) WithSnapshotConfig(cfg snapshot.Config) { s.snapshotCfg = &cfg }

// Step allocates a step scope under r, runs fn, and commits: on success it
// normalizes input/output, computes schema diff, snapshot fingerprints,
// and the row diff, then writes evidence and a chain entry; on error (fn
// returns non-nil or panics) it writes error evidence and a chain entry,
// then re-raises to the caller. An errored step still participates in the
// chain. When the Recorder runs with async snapshots, the write and chain
// append for every step (success or error) is deferred to Run.Finish so
// chain order still matches ordinal order.
func (r *Run) Step(ctx context.Context, name string, fn func(ctx context.Context, s *Step) error) (err error) {
	ordinal := r.nextOrdinal()
	safeName := store.SanitizeSegment(name)
	s := &Step{
		run:      r,
		ordinal:  ordinal,
		name:     name,
		safeName: safeName,
		dir:      fmt.Sprintf("%s/steps/%04d_%s", r.prefix, ordinal, safeName),
		started:  nowISO(),
	}

	defer func() {
		if rec := recover(); rec != nil {
			traceback := string(debug.Stack())
			commitErr := fmt.Errorf("panic: %v", rec)
			if cerr := s.commitError(ctx, commitErr, traceback); cerr != nil {
				err = cerr
				return
			}
			panic(rec)
		}
	}()

	if ferr := fn(ctx, s); ferr != nil {
		return s.fail(ctx, ferr)
	}

	return s.commitSuccess(ctx)
}

func (s *Step) stepJSONKey() string { return s.dir + "/step.json" }

func (s *Step) payloadRef() string {
	return fmt.Sprintf("steps/%04d_%s/step.json", s.ordinal, s.safeName)
}

func (s *Step) diffCfgOrDefault() diff.Config {
	if s.diffCfg != nil {
		return *s.diffCfg
	}
	dc := s.run.rec.cfg.Diff
	return diff.Config{
		PrimaryKey:                   dc.PrimaryKey,
		OrderSensitive:               dc.OrderSensitive,
		SampleRows:                   dc.SampleRows,
		DiffMode:                     diff.Mode(dc.DiffMode),
		SummaryOnlyThreshold:         dc.SummaryOnlyThreshold,
		ChunkRows:                    dc.ChunkRows,
		HashGroupSize:                dc.HashGroupSize,
		Workers:                      dc.ParallelGroups,
		TreatSchemaAddRemoveAsChange: dc.TreatSchemaAddRemoveAsChange,
	}
}

func (s *Step) snapshotCfgOrDefault() snapshot.Config {
	if s.snapshotCfg != nil {
		return *s.snapshotCfg
	}
	sc := s.run.rec.cfg.Snapshot
	return snapshot.Config{
		Mode:                   snapshot.Mode(sc.Mode),
		MaxMB:                  sc.MaxMB,
		SampleOnSkip:           sc.SampleOnSkip,
		SampleRows:             sc.SampleRows,
		SampleCols:             sc.SampleCols,
		SizeEstimateMultiplier: s.run.rec.cfg.Recorder.SizeEstimateMultiplier,
		Compression:            snapshot.Codec(s.run.rec.cfg.Recorder.ParquetCompression),
		OrderSensitive:         s.run.rec.cfg.Diff.OrderSensitive,
	}
}

// captureSide runs the snapshot engine for one side (input/output) of the
// step, submitting to the async pool when enabled. side is "input" or
// "output" and records the PendingCapture so Run.Finish can drain it.
func (s *Step) captureSide(ctx context.Context, side, key string, t table.Table) (*snapshot.Fingerprint, error) {
	cfg := s.snapshotCfgOrDefault()
	if s.run.rec.pool != nil {
		pc := s.run.rec.pool.SubmitCapture(ctx, s.run.rec.store, key, t, cfg)
		if side == "input" {
			s.inputPC = pc
		} else {
			s.outputPC = pc
		}
		return pc.Fingerprint, nil
	}
	return snapshot.Capture(ctx, s.run.rec.store, key, t, cfg)
}

// fail writes error evidence for cause and returns cause to the caller
// (re-raising), unless writing the evidence itself fails, in which case
// that I/O error is returned instead.
func (s *Step) fail(ctx context.Context, cause error) error {
	if cerr := s.commitError(ctx, cause, ""); cerr != nil {
		return cerr
	}
	return cause
}

func (s *Step) commitSuccess(ctx context.Context) error {
	inTable, err := table.Resolve(ctx, s.input)
	if err != nil {
		return s.fail(ctx, err)
	}
	outTable, err := table.Resolve(ctx, s.output)
	if err != nil {
		return s.fail(ctx, err)
	}

	if outTable == nil && s.run.rec.cfg.Recorder.EnforceExplicitOutput {
		oerr := blackbox.New(blackbox.CodeOutputMissing,
			fmt.Sprintf("step %q exited without capturing output", s.name))
		return s.fail(ctx, oerr)
	}

	ev := &stepEvidence{
		Version:   "0.1",
		Ordinal:   s.ordinal,
		Name:      s.name,
		Status:    "ok",
		StartedAt: s.started,
		Metadata:  s.metadata,
	}

	var inFP, outFP *snapshot.Fingerprint
	if inTable != nil {
		inFP, err = s.captureSide(ctx, "input", s.dir+"/artifacts/input.bbdata", inTable)
		if err != nil {
			return s.fail(ctx, err)
		}
		ev.Input = inFP
	}
	if outTable != nil {
		outFP, err = s.captureSide(ctx, "output", s.dir+"/artifacts/output.bbdata", outTable)
		if err != nil {
			return s.fail(ctx, err)
		}
		ev.Output = outFP
	}

	if inTable != nil && outTable != nil {
		schemaDiff := rowhash.DiffSchema(inFP.SchemaFP, outFP.SchemaFP)
		ev.SchemaDiff = &schemaDiff

		dc := s.run.rec.cfg.Diff
		runDiff := dc.Mode != "none"
		if runDiff && dc.Adaptive && dc.SkipIfFingerprintMatch &&
			inFP.SchemaFP.Equal(outFP.SchemaFP) &&
			reflect.DeepEqual(inFP.ContentFP, outFP.ContentFP) {
			ev.DiffSkip = &placeholderDiff{Reason: "fingerprint_match"}
			runDiff = false
		}
		if runDiff {
			result, derr := diff.Diff(inTable, outTable, s.diffCfgOrDefault())
			if derr != nil {
				return s.fail(ctx, derr)
			}
			diffKey := s.dir + "/artifacts/diff.bbdelta"
			if _, perr := s.run.rec.store.PutJSON(ctx, diffKey, result); perr != nil {
				return s.fail(ctx, perr)
			}
			ev.DiffRef = "artifacts/diff.bbdelta"
		}
	}

	ev.FinishedAt = nowISO()

	if s.run.rec.pool != nil {
		s.run.finalizers = append(s.run.finalizers, func(ctx context.Context) error {
			if s.inputPC != nil {
				ev.Input = s.inputPC.Wait()
			}
			if s.outputPC != nil {
				ev.Output = s.outputPC.Wait()
			}
			return s.writeAndChain(ctx, ev)
		})
		return nil
	}
	return s.writeAndChain(ctx, ev)
}

func (s *Step) commitError(ctx context.Context, cause error, traceback string) error {
	if len(traceback) > maxTracebackBytes {
		traceback = traceback[:maxTracebackBytes]
	}
	ev := &stepEvidence{
		Version:    "0.1",
		Ordinal:    s.ordinal,
		Name:       s.name,
		Status:     "error",
		StartedAt:  s.started,
		FinishedAt: nowISO(),
		Metadata:   s.metadata,
		Error: &stepError{
			Type:               fmt.Sprintf("%T", cause),
			Message:            cause.Error(),
			TruncatedTraceback: traceback,
		},
	}

	if s.run.rec.pool != nil {
		s.run.finalizers = append(s.run.finalizers, func(ctx context.Context) error {
			return s.writeAndChain(ctx, ev)
		})
		return nil
	}
	return s.writeAndChain(ctx, ev)
}

// writeAndChain persists ev to step.json, appends the chain entry, and
// refreshes the run.json mirror. Shared by the synchronous commit path and
// the deferred async finalizers Run.Finish drives in ordinal order.
func (s *Step) writeAndChain(ctx context.Context, ev *stepEvidence) error {
	digest, err := s.run.rec.store.PutJSON(ctx, s.stepJSONKey(), ev)
	if err != nil {
		return err
	}

	if err := s.run.appendChainEntry(ctx, seal.EntryStep, s.payloadRef(), digest, ev.FinishedAt); err != nil {
		return err
	}

	s.run.totalMB += fingerprintMB(ev.Input) + fingerprintMB(ev.Output)
	s.run.steps = append(s.run.steps, stepSummary{
		Ordinal:      s.ordinal,
		Name:         s.name,
		RelativePath: s.payloadRef(),
		Status:       ev.Status,
		StartedAt:    s.started,
		FinishedAt:   ev.FinishedAt,
	})
	return s.run.writeRunDoc(ctx)
}

func fingerprintMB(fp *snapshot.Fingerprint) float64 {
	if fp == nil {
		return 0
	}
	if fp.SnapshotSizeMB > 0 {
		return fp.SnapshotSizeMB
	}
	return fp.SnapshotEstMB
}
