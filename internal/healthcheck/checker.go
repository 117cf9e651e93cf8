// Package healthcheck aggregates runtime readiness checks for the ops server.
package healthcheck

import "context"

const (
	// StatusOK indicates check passed.
	StatusOK = "ok"
	// StatusWarn indicates the dependency is degraded but usable.
	StatusWarn = "warn"
	// StatusError indicates check failed.
	StatusError = "error"
)

// CheckResult is one runtime check item produced by a checker.
type CheckResult struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Summary string `json:"summary,omitempty"`
}

// Checker evaluates one dependency.
type Checker interface {
	Check(ctx context.Context) CheckResult
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) CheckResult

func (f CheckerFunc) Check(ctx context.Context) CheckResult {
	return f(ctx)
}

// Report is the aggregated result; Status is the worst of all items.
type Report struct {
	Status string        `json:"status"`
	Checks []CheckResult `json:"checks"`
}

// Run evaluates checkers in order. Nil checkers are skipped.
func Run(ctx context.Context, checkers ...Checker) Report {
	report := Report{Status: StatusOK, Checks: make([]CheckResult, 0, len(checkers))}
	for _, c := range checkers {
		if c == nil {
			continue
		}
		item := c.Check(ctx)
		if item.Status == "" {
			item.Status = StatusError
		}
		if rank(item.Status) > rank(report.Status) {
			report.Status = item.Status
		}
		report.Checks = append(report.Checks, item)
	}
	return report
}

func rank(status string) int {
	switch status {
	case StatusOK:
		return 0
	case StatusWarn:
		return 1
	default:
		return 2
	}
}
