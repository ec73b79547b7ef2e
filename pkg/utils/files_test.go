package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.mx")
	if err := os.WriteFile(path, []byte("fn main() { return 1; }"), 0o644); err != nil {
		t.Fatal(err)
	}

	full, src, err := ReadSource(path)
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(full) {
		t.Errorf("expected an absolute path, got %q", full)
	}
	if src != "fn main() { return 1; }" {
		t.Errorf("unexpected source %q", src)
	}

	_, _, err = ReadSource(filepath.Join(dir, "missing.mx"))
	if err == nil || !strings.Contains(err.Error(), "read source") {
		t.Errorf("expected read error, got %v", err)
	}
}

func TestGetPathInfo(t *testing.T) {
	full, parent, err := GetPathInfo(filepath.Join("a", "..", "b", "c.mx"))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(full) != "c.mx" || filepath.Base(parent) != "b" {
		t.Errorf("got %q, %q", full, parent)
	}
}

func TestPathHelpers(t *testing.T) {
	tests := []struct {
		path, name, obj string
	}{
		{"examples/sum.mx", "sum", "examples/sum.mxo"},
		{"plain", "plain", "plain.mxo"},
		{"dir.v2/file.tar.mx", "file.tar", "dir.v2/file.tar.mxo"},
	}
	for _, tt := range tests {
		if got := ModuleName(tt.path); got != tt.name {
			t.Errorf("ModuleName(%q) = %q, want %q", tt.path, got, tt.name)
		}
		if got := ReplaceExt(tt.path, ".mxo"); got != tt.obj {
			t.Errorf("ReplaceExt(%q) = %q, want %q", tt.path, got, tt.obj)
		}
	}
}
