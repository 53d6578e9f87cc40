package render

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"unstack/internal/analysis"
	"unstack/internal/detectors"
	"unstack/internal/disasm"
)

func sampleReport(t *testing.T) Report {
	t.Helper()
	units := []disasm.CodeUnit{
		{Name: "<module>", Instructions: disasm.Stream{
			disasm.New(0, "LOAD_NAME").WithArg(0, "x").WithLine(1),
			disasm.New(3, "LOAD_CONST").WithArg(1, 1),
			disasm.New(6, "BINARY_ADD"),
			disasm.New(7, "STORE_NAME").WithArg(1, "y"),
			disasm.New(10, "SETUP_EXCEPT").WithArg(4, nil).WithLine(2),
		}},
		{Name: "broken", Instructions: disasm.Stream{disasm.New(0, "POP_TOP")}},
	}
	results, err := analysis.ReconstructAll(context.Background(), units, analysis.BatchOptions{KeepGoing: true})
	if err != nil {
		t.Fatalf("ReconstructAll failed: %v", err)
	}
	return NewReport(results, detectors.Default(false).CheckResults(results))
}

func TestNewReport(t *testing.T) {
	rep := sampleReport(t)
	if len(rep.Units) != 2 || rep.Failed() != 1 {
		t.Fatalf("units = %d, failed = %d", len(rep.Units), rep.Failed())
	}

	mod := rep.Units[0]
	if len(mod.Commands) != 2 {
		t.Fatalf("module commands = %d, want 2", len(mod.Commands))
	}
	store := mod.Commands[0]
	if store.Op != "STORE_NAME" || store.Value != "y" || len(store.Args) != 1 {
		t.Errorf("store = %+v", store)
	}
	add := store.Args[0]
	if add.Op != "BINARY_ADD" || add.Arg != nil || add.Consume != 2 || add.Produce != 3 {
		t.Errorf("add = %+v", add)
	}
	if add.Args[0].Line == nil || *add.Args[0].Line != 1 {
		t.Error("line number lost")
	}

	if len(rep.Findings) != 1 || rep.Findings[0].Op != "SETUP_EXCEPT" || rep.Findings[0].Severity != "warning" {
		t.Errorf("findings = %+v", rep.Findings)
	}
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, "text", sampleReport(t), Options{}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"<module>:\n",
		"    1:0          LOAD_NAME 0 (x)\n",
		"     :6      BINARY_ADD\n",
		"     :7  STORE_NAME 1 (y)\n",
		"broken: error: unit broken: structural underflow",
		"warning: <module> SETUP_EXCEPT at offset 10: block opener has no matching closer [dangling-opener]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, "json", sampleReport(t), Options{}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	var rep Report
	if err := json.Unmarshal(buf.Bytes(), &rep); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rep.Units[0].Commands[0].Args[0].Op != "BINARY_ADD" {
		t.Errorf("decoded report = %+v", rep.Units[0])
	}
	if !strings.Contains(buf.String(), `"error": "unit broken:`) {
		t.Error("unit error missing from JSON")
	}
}

func TestCBORIsDeterministic(t *testing.T) {
	rep := sampleReport(t)
	a, err := MarshalReport(rep)
	if err != nil {
		t.Fatalf("MarshalReport failed: %v", err)
	}
	b, err := MarshalReport(sampleReport(t))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("equal reports encoded differently")
	}

	decoded, err := UnmarshalReport(a)
	if err != nil {
		t.Fatalf("UnmarshalReport failed: %v", err)
	}
	if decoded.Units[0].Name != "<module>" || decoded.Units[0].Commands[0].Op != "STORE_NAME" {
		t.Errorf("decoded report = %+v", decoded.Units[0])
	}
	if decoded.Units[1].Error == "" {
		t.Error("unit error lost")
	}

	var buf bytes.Buffer
	if err := Write(&buf, "cbor", rep, Options{}); err != nil || !bytes.Equal(buf.Bytes(), a) {
		t.Errorf("Write cbor = %v", err)
	}
}

func TestMarkdownSource(t *testing.T) {
	md := MarkdownSource(sampleReport(t))
	for _, want := range []string{
		"| `<module>` | 5 | 5 | ok |",
		"| `broken` | 1 | 0 | failed |",
		"## `<module>`\n\n```text\n",
		"- **warning** `<module>` `SETUP_EXCEPT` at offset 10",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestMarkdownRendered(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, "markdown", sampleReport(t), Options{Width: 100}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !strings.Contains(buf.String(), "BINARY_ADD") {
		t.Errorf("rendered markdown lost the dump:\n%s", buf.String())
	}
}

func TestUnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, "xml", Report{}, Options{}); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestCommandCountMatchesTreeSize(t *testing.T) {
	rep := sampleReport(t)
	mod := rep.Units[0]
	total := 0
	for _, c := range mod.forest {
		total += c.Size()
	}
	if got := mod.CommandCount(); got != total || got != 5 {
		t.Errorf("CommandCount = %d, tree size %d, want 5", got, total)
	}
}
