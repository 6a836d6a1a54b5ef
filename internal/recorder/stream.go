package recorder

import (
	"context"
	"fmt"
	"iter"

	"reach/blackbox/internal/table"
)

// RecordStream records a sequence of batches as steps: batch N's step sets
// batch N-1 as its input and batch N as its output, so the run's chain
// reads as a sequence of incremental transforms. No new evidence shape —
// each step still writes input/output/diff exactly as Run.Step would.
// spec.md §4.7.
func RecordStream(ctx context.Context, r *Run, name string, batches iter.Seq[table.Table]) error {
	var prev table.Table
	i := 0
	for batch := range batches {
		i++
		stepName := fmt.Sprintf("%s_%04d", name, i)
		err := r.Step(ctx, stepName, func(ctx context.Context, s *Step) error {
			if prev != nil {
				s.SetInput(prev)
			}
			s.SetOutput(batch)
			return nil
		})
		if err != nil {
			return err
		}
		prev = batch
	}
	return nil
}
