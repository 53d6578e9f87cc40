package analysis

import "fmt"

// Severity ranks a Finding.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// Finding is a structural observation about a reconstructed forest.
type Finding struct {
	Check    string   // name of the checker that reported it
	Unit     string   // code unit name
	Offset   int      // offset of the command concerned
	Opname   string   // its operation
	Severity Severity // error findings fail strict runs
	Message  string
	Cause    error // sentinel matched by errors.Is, or nil
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s %s at offset %d: %s", f.Severity, f.Unit, f.Opname, f.Offset, f.Message)
}
