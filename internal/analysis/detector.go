package analysis

import (
	"errors"
	"fmt"
)

// Checker inspects a reconstructed forest and reports structural findings
type Checker interface {
	// Check examines the top-level commands of one code unit. It must not
	// keep references to the forest.
	Check(unit string, forest []*Command) []Finding
}

// CheckerChain runs multiple checkers in sequence
type CheckerChain struct {
	checkers []Checker
}

// NewCheckerChain creates a new checker chain
func NewCheckerChain(checkers ...Checker) *CheckerChain {
	return &CheckerChain{
		checkers: checkers,
	}
}

// Check runs all checkers in sequence and concatenates their findings
func (cc *CheckerChain) Check(unit string, forest []*Command) []Finding {
	var findings []Finding
	for _, checker := range cc.checkers {
		findings = append(findings, checker.Check(unit, forest)...)
	}
	return findings
}

// CheckResults checks every successfully reconstructed unit.
func (cc *CheckerChain) CheckResults(results []Result) []Finding {
	var findings []Finding
	for _, r := range results {
		if r.Failed() {
			continue
		}
		findings = append(findings, cc.Check(r.Unit, r.Commands)...)
	}
	return findings
}

// FindingsError joins the error-severity findings into one error, or
// returns nil when there are none.
func FindingsError(findings []Finding) error {
	var errs []error
	for _, f := range findings {
		if f.Severity < SeverityError {
			continue
		}
		cause := f.Cause
		if cause == nil {
			cause = ErrCheckFailed
		}
		errs = append(errs, fmt.Errorf("%s: %w", f, cause))
	}
	return errors.Join(errs...)
}
