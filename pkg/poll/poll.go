// Package poll implements bounded waits for cloud and local state to
// converge after a mutation. Provider mutations are asynchronous, so
// every state-changing operation follows up with a wait on the state it
// expects to observe.
package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/johnlam90/aws-eni-manager/pkg/errors"
)

// DefaultInterval is the probe cadence used when a Spec does not set one.
const DefaultInterval = 100 * time.Millisecond

// Spec describes a bounded wait.
type Spec struct {
	// Description names the awaited condition in errors and logs.
	Description string
	// Timeout bounds the whole wait.
	Timeout time.Duration
	// Interval is the probe cadence. Zero means DefaultInterval.
	Interval time.Duration
	// Tolerate lists error kinds that count as "not yet" rather than
	// as failure of the wait.
	Tolerate []errors.Kind
}

// Condition reports whether the awaited state holds.
type Condition func(ctx context.Context) (bool, error)

// WaitUntil probes cond at a fixed cadence until it holds, fails with a
// non-tolerated error, or the timeout elapses. The first probe runs
// immediately. A timeout is reported as KindTimeout naming the awaited
// condition and wrapping the last tolerated failure, if any.
func WaitUntil(ctx context.Context, logger logr.Logger, spec Spec, cond Condition) error {
	interval := spec.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	log := logger.WithValues("condition", spec.Description, "timeout", spec.Timeout)
	log.V(1).Info("Waiting for condition")

	var lastErr error
	err := wait.PollImmediate(interval, spec.Timeout, func() (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		done, err := cond(ctx)
		if err != nil {
			if tolerated(spec.Tolerate, err) {
				lastErr = err
				log.V(1).Info("Tolerating failure while waiting", "error", err.Error())
				return false, nil
			}
			return false, err
		}
		return done, nil
	})

	if err == wait.ErrWaitTimeout {
		return errors.New(errors.KindTimeout,
			fmt.Sprintf("timed out waiting for %s", spec.Description),
			map[string]interface{}{"timeout": spec.Timeout.String()}, lastErr)
	}
	if err != nil {
		return err
	}

	log.V(1).Info("Condition holds")
	return nil
}

func tolerated(kinds []errors.Kind, err error) bool {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
