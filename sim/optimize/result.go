package optimize

import (
	"fmt"
	"strings"
	"time"
)

// Status classifies a solve outcome independently of the backend.
type Status string

const (
	StatusOptimal      Status = "optimal"
	StatusFeasible     Status = "feasible"
	StatusInfeasible   Status = "infeasible"
	StatusUnbounded    Status = "unbounded"
	StatusTimeout      Status = "timeout"
	StatusBackendError Status = "backend-error"
)

// validStatuses is the closed set of classified outcomes.
var validStatuses = map[Status]bool{
	StatusOptimal:      true,
	StatusFeasible:     true,
	StatusInfeasible:   true,
	StatusUnbounded:    true,
	StatusTimeout:      true,
	StatusBackendError: true,
}

// IsValidStatus reports whether s is a classified status.
func IsValidStatus(s Status) bool { return validStatuses[s] }

// Success reports whether the result carries a usable assignment.
func (s Status) Success() bool { return s == StatusOptimal || s == StatusFeasible }

// Transient reports whether retrying the same model may succeed.
func (s Status) Transient() bool { return s == StatusTimeout || s == StatusBackendError }

// Modeling reports whether the model itself is at fault.
func (s Status) Modeling() bool { return s == StatusInfeasible || s == StatusUnbounded }

// nativeStatuses maps backend vocabularies onto Status. Keys are lower-case
// with separators removed.
var nativeStatuses = map[string]Status{
	"optimal":               StatusOptimal,
	"ok":                    StatusOptimal,
	"solved":                StatusOptimal,
	"globallyoptimal":       StatusOptimal,
	"locallyoptimal":        StatusFeasible,
	"feasible":              StatusFeasible,
	"feasiblesuboptimal":    StatusFeasible,
	"suboptimal":            StatusFeasible,
	"intermediate":          StatusFeasible,
	"infeasible":            StatusInfeasible,
	"primalinfeasible":      StatusInfeasible,
	"infeasibleorunbounded": StatusInfeasible,
	"unbounded":             StatusUnbounded,
	"dualinfeasible":        StatusUnbounded,
	"timeout":               StatusTimeout,
	"timelimit":             StatusTimeout,
	"maxtimelimit":          StatusTimeout,
	"error":                 StatusBackendError,
	"backenderror":          StatusBackendError,
	"solvererror":           StatusBackendError,
}

// Classify normalizes a backend-native status string. Unknown strings
// classify as backend-error.
func Classify(native string) Status {
	key := strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', ' ', '.':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(native)))
	if s, ok := nativeStatuses[key]; ok {
		return s
	}
	return StatusBackendError
}

// Result is the classified outcome of one solve.
type Result struct {
	Status     Status
	Objective  *float64 // nil unless Status.Success()
	Assignment map[string]float64
	Duration   time.Duration
	Message    string // backend diagnostic, preserved verbatim
	Solver     string
	Attempts   int
}

// ObjectiveValue returns the objective and whether one is set.
func (r Result) ObjectiveValue() (float64, bool) {
	if r.Objective == nil {
		return 0, false
	}
	return *r.Objective, true
}

func (r Result) String() string {
	if v, ok := r.ObjectiveValue(); ok {
		return fmt.Sprintf("%s obj=%g (%s, %v)", r.Status, v, r.Solver, r.Duration)
	}
	if r.Message != "" {
		return fmt.Sprintf("%s: %s (%s, %v)", r.Status, r.Message, r.Solver, r.Duration)
	}
	return fmt.Sprintf("%s (%s, %v)", r.Status, r.Solver, r.Duration)
}

// Failure builds a result carrying only a status and message.
func Failure(status Status, format string, args ...any) Result {
	return Result{Status: status, Message: fmt.Sprintf(format, args...)}
}

func success(status Status, objective float64, assignment map[string]float64) Result {
	return Result{Status: status, Objective: &objective, Assignment: assignment}
}
