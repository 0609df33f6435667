// Package transform applies the cleaning steps to a loaded dataset.
//
// A Pipeline runs an ordered list of Steps against a dataset in place. The
// default pipeline is:
//
//  1. DropDuplicates: remove rows identical to an earlier row
//  2. DropEmptyRows: remove rows where every cell is null
//  3. RenameColumns: trim header names and mark them with a suffix
//  4. TrimCells: strip surrounding whitespace from text cells
//
// Steps never reorder rows or columns and never change the column count.
package transform

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/JonMunkholm/filecleaner/internal/apperror"
	"github.com/JonMunkholm/filecleaner/internal/logging"
	"github.com/JonMunkholm/filecleaner/internal/tabular"
)

// Stats accumulates what the steps changed.
type Stats struct {
	DuplicatesRemoved int
	EmptyRowsRemoved  int
	ColumnsRenamed    int
	CellsTrimmed      int
}

// Step is one cleaning operation.
type Step interface {
	Name() string
	Apply(ctx context.Context, ds *tabular.Dataset, stats *Stats) error
}

// StepTiming records how long one step took.
type StepTiming struct {
	Step     string        `json:"step"`
	Duration time.Duration `json:"duration_ns"`
}

// Report summarizes a pipeline run.
type Report struct {
	RowsBefore        int          `json:"rows_before"`
	RowsAfter         int          `json:"rows_after"`
	ColumnsBefore     int          `json:"columns_before"`
	ColumnsAfter      int          `json:"columns_after"`
	DuplicatesRemoved int          `json:"duplicates_removed"`
	EmptyRowsRemoved  int          `json:"empty_rows_removed"`
	ColumnsRenamed    int          `json:"columns_renamed"`
	CellsTrimmed      int          `json:"cells_trimmed"`
	Steps             []StepTiming `json:"steps,omitempty"`
}

// Pipeline runs steps in order.
type Pipeline struct {
	steps []Step
}

// New creates a pipeline from the given steps.
func New(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Default returns the standard cleaning pipeline with the given column suffix.
func Default(suffix string) *Pipeline {
	return New(
		DropDuplicates{},
		DropEmptyRows{},
		RenameColumns{Policy: SuffixPolicy(suffix)},
		TrimCells{},
	)
}

// Steps returns the step names in execution order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Apply runs every step against ds and returns it with a report. Any step
// failure, including a panic, is reported as a ProcessingError; cancellation
// is returned as the context's error.
func (p *Pipeline) Apply(ctx context.Context, ds *tabular.Dataset) (*tabular.Dataset, Report, error) {
	if err := ds.Validate(); err != nil {
		return nil, Report{}, apperror.Wrap(apperror.ProcessingError, "transform", err)
	}

	report := Report{
		RowsBefore:    ds.NumRows(),
		ColumnsBefore: ds.NumCols(),
		Steps:         make([]StepTiming, 0, len(p.steps)),
	}
	var stats Stats
	log := logging.FromContext(ctx)

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return nil, Report{}, err
		}

		start := time.Now()
		if err := runStep(ctx, step, ds, &stats); err != nil {
			if ctx.Err() != nil {
				return nil, Report{}, ctx.Err()
			}
			return nil, Report{}, apperror.Wrap(apperror.ProcessingError, "transform "+step.Name(), err)
		}
		if err := ds.Validate(); err != nil {
			return nil, Report{}, apperror.Wrap(apperror.ProcessingError, "transform "+step.Name(), err)
		}
		elapsed := time.Since(start)
		report.Steps = append(report.Steps, StepTiming{Step: step.Name(), Duration: elapsed})
		log.Debug("transform step done", "step", step.Name(), "rows", ds.NumRows(), logging.Duration("elapsed", elapsed))
	}

	report.RowsAfter = ds.NumRows()
	report.ColumnsAfter = ds.NumCols()
	report.DuplicatesRemoved = stats.DuplicatesRemoved
	report.EmptyRowsRemoved = stats.EmptyRowsRemoved
	report.ColumnsRenamed = stats.ColumnsRenamed
	report.CellsTrimmed = stats.CellsTrimmed
	return ds, report, nil
}

func runStep(ctx context.Context, step Step, ds *tabular.Dataset, stats *Stats) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).Error("transform step panicked",
				"step", step.Name(), "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return step.Apply(ctx, ds, stats)
}
