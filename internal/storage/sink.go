package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/user/post-scraper/internal/domain"
)

// Batch is the complete output of one successful run.
type Batch struct {
	RunID       string
	CompletedAt time.Time
	Records     []domain.PostRecord
}

// Sink receives the output of a run exactly once, after every stage has
// succeeded.
type Sink interface {
	Write(ctx context.Context, b Batch) error
}

// Discarder is a Sink that can remove a run it has already written.
type Discarder interface {
	Discard(ctx context.Context, runID string) error
}

// MultiSink writes to each sink in order and stops at the first error. Sinks
// written before the failing one are discarded, newest first.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, b Batch) error {
	for i, s := range m {
		if err := s.Write(ctx, b); err != nil {
			return errors.Join(err, discardAll(ctx, m[:i], b.RunID))
		}
	}
	return nil
}

// discardAll runs even when ctx is already cancelled, since cancellation is
// a common reason for getting here.
func discardAll(ctx context.Context, sinks []Sink, runID string) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(sinks) - 1; i >= 0; i-- {
		d, ok := sinks[i].(Discarder)
		if !ok {
			continue
		}
		if err := d.Discard(ctx, runID); err != nil {
			errs = append(errs, fmt.Errorf("discard run %s: %w", runID, err))
		}
	}
	return errors.Join(errs...)
}

// FileOutput wraps the other sinks around the JSON file: the document is
// encoded to a temp file, then Sinks are written, then the file is moved
// into place. A failure at any step leaves no sink holding the run.
type FileOutput struct {
	File  *JSONFileSink
	Sinks MultiSink
}

func (o FileOutput) Write(ctx context.Context, b Batch) error {
	staged, err := o.File.Stage(ctx, b)
	if err != nil {
		return err
	}
	defer staged.Abort()

	if err := o.Sinks.Write(ctx, b); err != nil {
		return err
	}
	if err := staged.Commit(); err != nil {
		return errors.Join(err, discardAll(ctx, o.Sinks, b.RunID))
	}
	return nil
}
