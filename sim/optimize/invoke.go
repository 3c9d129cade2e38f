package optimize

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Invoke runs solver on m with a wall-clock budget and classifies the
// outcome:
//   - the budget elapsing yields StatusTimeout, whatever the backend says
//   - parent cancellation yields StatusBackendError
//   - a backend panic yields StatusBackendError with the panic preserved
//   - unclassified statuses go through Classify
//
// Duration and Solver are always filled. Invoke returns as soon as the
// context is done even if the backend ignores cancellation.
func Invoke(ctx context.Context, solver Solver, m *Model, budget time.Duration) Result {
	if budget <= 0 {
		panic(fmt.Sprintf("Invoke: budget must be positive, got %v", budget))
	}
	start := time.Now()
	name := solver.Name()
	sctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Failure(StatusBackendError, "solver %s panicked: %v", name, r)
			}
		}()
		done <- solver.Solve(sctx, m)
	}()

	var res Result
	select {
	case res = <-done:
		// A result that arrives after the deadline is still a timeout.
		if sctx.Err() != nil {
			res = ctxFailure(ctx, sctx, res.Message)
		}
	case <-sctx.Done():
		res = ctxFailure(ctx, sctx, "")
	}

	if !IsValidStatus(res.Status) {
		native := string(res.Status)
		res.Status = Classify(native)
		if res.Status == StatusBackendError && res.Message == "" {
			res.Message = fmt.Sprintf("unrecognized backend status %q", native)
		}
	}
	if !res.Status.Success() {
		res.Objective = nil
		res.Assignment = nil
	}
	res.Duration = time.Since(start)
	res.Solver = name
	logrus.Debugf("solve %s with %s: %s", m.Name(), name, res)
	return res
}

func ctxFailure(parent, solve context.Context, diag string) Result {
	if parent.Err() != nil {
		msg := fmt.Sprintf("cancelled: %v", parent.Err())
		if diag != "" {
			msg += ": " + diag
		}
		return Failure(StatusBackendError, "%s", msg)
	}
	msg := fmt.Sprintf("time budget exceeded: %v", solve.Err())
	if diag != "" {
		msg += ": " + diag
	}
	return Failure(StatusTimeout, "%s", msg)
}
