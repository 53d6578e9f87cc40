// Package detectors checks reconstructed command forests for structural
// problems the extractor itself tolerates: block openers that never met a
// closer, argument ordering and stack balance.
package detectors

import (
	"fmt"

	"unstack/internal/analysis"
)

// DanglingOpenerChecker reports block openers that ended up in the tree
// instead of being absorbed by a block closer.
type DanglingOpenerChecker struct {
	// Strict turns the findings into errors.
	Strict bool
}

// NewDanglingOpenerChecker creates a dangling opener checker.
func NewDanglingOpenerChecker(strict bool) *DanglingOpenerChecker {
	return &DanglingOpenerChecker{Strict: strict}
}

func (d *DanglingOpenerChecker) Check(unit string, forest []*analysis.Command) []analysis.Finding {
	var findings []analysis.Finding
	for _, root := range forest {
		root.Walk(func(cmd *analysis.Command, depth int) bool {
			if !cmd.Operation().OpensBlock() {
				return true
			}
			f := analysis.Finding{
				Check:    "dangling-opener",
				Unit:     unit,
				Offset:   cmd.Offset(),
				Opname:   cmd.Operation().Name(),
				Severity: analysis.SeverityWarning,
				Message:  "block opener has no matching closer",
			}
			if depth > 0 {
				f.Message = "block opener absorbed as an operand"
			}
			if d.Strict {
				f.Severity = analysis.SeverityError
				f.Cause = analysis.ErrDanglingBlockOpener
			}
			findings = append(findings, f)
			return true
		})
	}
	return findings
}

// OrderChecker verifies that every command's arguments precede it and
// appear in increasing offset order, and that top-level commands follow
// program order.
type OrderChecker struct{}

// NewOrderChecker creates an order checker.
func NewOrderChecker() *OrderChecker {
	return &OrderChecker{}
}

func (o *OrderChecker) Check(unit string, forest []*analysis.Command) []analysis.Finding {
	var findings []analysis.Finding
	report := func(cmd *analysis.Command, msg string) {
		findings = append(findings, analysis.Finding{
			Check:    "order",
			Unit:     unit,
			Offset:   cmd.Offset(),
			Opname:   cmd.Operation().Name(),
			Severity: analysis.SeverityError,
			Message:  msg,
		})
	}

	last := -1
	for _, root := range forest {
		if root.Offset() <= last {
			report(root, fmt.Sprintf("top-level command does not follow offset %d", last))
		}
		last = root.Offset()

		root.Walk(func(cmd *analysis.Command, _ int) bool {
			prev := -1
			for _, arg := range cmd.Arguments() {
				switch {
				case arg.Offset() >= cmd.Offset():
					report(cmd, fmt.Sprintf("argument at offset %d does not precede it", arg.Offset()))
				case arg.Offset() <= prev:
					report(cmd, fmt.Sprintf("argument at offset %d out of order after %d", arg.Offset(), prev))
				}
				prev = arg.Offset()
			}
			return true
		})
	}
	return findings
}

// BalanceChecker recomputes the stack balance each ordinary command closed
// on. A positive balance means operands are missing; a negative one means
// the last argument produced more than was asked for (typically an
// iterator or rotation left on the stack).
type BalanceChecker struct{}

// NewBalanceChecker creates a balance checker.
func NewBalanceChecker() *BalanceChecker {
	return &BalanceChecker{}
}

func (b *BalanceChecker) Check(unit string, forest []*analysis.Command) []analysis.Finding {
	var findings []analysis.Finding
	for _, root := range forest {
		root.Walk(func(cmd *analysis.Command, _ int) bool {
			op := cmd.Operation()
			if op.OpensBlock() || op.ClosesBlock() {
				return true
			}
			balance := Balance(cmd)
			if balance == 0 {
				return true
			}
			f := analysis.Finding{
				Check:  "balance",
				Unit:   unit,
				Offset: cmd.Offset(),
				Opname: op.Name(),
			}
			if balance > 0 {
				f.Severity = analysis.SeverityError
				f.Message = fmt.Sprintf("%d operand(s) missing", balance)
			} else {
				f.Severity = analysis.SeverityWarning
				f.Message = fmt.Sprintf("arguments overshoot by %d", -balance)
			}
			findings = append(findings, f)
			return true
		})
	}
	return findings
}

// Balance is the operation's consume count plus each argument's consume
// count minus its produce count.
func Balance(cmd *analysis.Command) int {
	balance := cmd.Operation().ConsumeCount()
	for _, arg := range cmd.Arguments() {
		balance += arg.ConsumeCount() - arg.ProduceCount()
	}
	return balance
}

// Default returns the standard checker chain.
func Default(strict bool) *analysis.CheckerChain {
	return analysis.NewCheckerChain(
		NewDanglingOpenerChecker(strict),
		NewOrderChecker(),
		NewBalanceChecker(),
	)
}
