// Package report delivers analyzed sessions to their consumers.
package report

import (
	"context"
	"errors"
	"io"

	"github.com/verte-zerg/keytrace/internal/model"
	"github.com/verte-zerg/keytrace/internal/stats"
	"github.com/verte-zerg/keytrace/internal/store"
)

// Sink receives one finished report.
type Sink interface {
	Write(ctx context.Context, report model.Report) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, report model.Report) error

// Write calls f.
func (f SinkFunc) Write(ctx context.Context, report model.Report) error {
	return f(ctx, report)
}

// Multi writes to every sink and joins their errors.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, report model.Report) error {
		var errs []error
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.Write(ctx, report); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// TextSink renders the report as plain text with braille plots.
type TextSink struct {
	W      io.Writer
	Width  int
	Height int
	Color  bool
}

// Write renders report to W.
func (t TextSink) Write(_ context.Context, report model.Report) error {
	return stats.RenderReport(t.W, report, stats.RenderOptions{
		Width:  t.Width,
		Height: t.Height,
		Color:  t.Color,
	})
}

// StoreSink persists reports into the summary history.
type StoreSink struct {
	Store *store.Store
	// OnStored is called with the assigned session id.
	OnStored func(id string)
}

// Write inserts the report.
func (s StoreSink) Write(ctx context.Context, report model.Report) error {
	id, err := s.Store.InsertReport(ctx, report)
	if err != nil {
		return err
	}
	if s.OnStored != nil {
		s.OnStored(id)
	}
	return nil
}
