// Package panicerr turns panics in background workers into ordinary errors so
// a single misbehaving consumer cannot take the whole server down.
package panicerr

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/panics"
)

// Safe wraps fn, returning a recovered panic as an error.
func Safe(fn func() error) func() error {
	return func() error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn()
		})
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}

// SafeWorker wraps a context driven worker loop. A recovered panic is reported
// with the worker name so the log line points at the culprit.
func SafeWorker(name string, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn(ctx)
		})
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if rerr := catcher.Recovered().AsError(); rerr != nil {
			return fmt.Errorf("%s panicked: %w", name, rerr)
		}
		return nil
	}
}
