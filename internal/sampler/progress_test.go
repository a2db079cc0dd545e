package sampler

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProgressPrinterSilentOffTerminal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.out")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("expected temp file creation to succeed, got %v", err)
	}
	defer f.Close()

	p := newProgressPrinter(f, 10)
	p.update(3, 120)
	p.update(4, 240)
	p.finish()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected to read back the file, got %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected no progress output on a regular file, got %q", data)
	}
}
