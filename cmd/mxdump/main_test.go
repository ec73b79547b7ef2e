package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestDump(t *testing.T) {
	var buf bytes.Buffer
	if err := dump(&buf, testSource); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"Tokens (",
		"AST",
		"fn main -> matrix(2x2)",
		"Generated Assembly",
		"main:\n",
		"Machine Code (",
		"; 0x0000",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestDumpStopsAtFirstError(t *testing.T) {
	var buf bytes.Buffer
	err := dump(&buf, "fn main() { return x; }")
	if err == nil || !strings.Contains(err.Error(), "unbound identifier") {
		t.Fatalf("expected unbound identifier, got %v", err)
	}
	if strings.Contains(buf.String(), "Generated Assembly") {
		t.Error("code generation ran after a failed stage")
	}
}
