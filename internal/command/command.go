// Package command runs multi-step writes with compensating actions. A step
// that fails causes the completed steps to be undone in reverse order.
package command

import (
	"context"
	"errors"
	"fmt"
)

// Command is one step of an optimistic update. Undo may be nil for steps
// with nothing to compensate.
type Command struct {
	Name string
	Do   func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// Run executes cmds in order. When a command fails, Undo runs for every
// command that already succeeded, newest first. The returned error wraps the
// original failure joined with any compensation failures.
func Run(ctx context.Context, cmds ...Command) error {
	for i, cmd := range cmds {
		if err := cmd.Do(ctx); err != nil {
			failure := fmt.Errorf("%s: %w", cmd.Name, err)
			return errors.Join(failure, rollback(ctx, cmds[:i]))
		}
	}
	return nil
}

func rollback(ctx context.Context, done []Command) error {
	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		if done[i].Undo == nil {
			continue
		}
		if err := done[i].Undo(ctx); err != nil {
			errs = append(errs, fmt.Errorf("undo %s: %w", done[i].Name, err))
		}
	}
	return errors.Join(errs...)
}
