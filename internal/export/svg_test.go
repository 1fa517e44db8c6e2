package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConvergenceSVG(t *testing.T) {
	svg := ConvergenceSVG([]float64{1.0, 1e-2, 1e-5, 1e-9}, 640, 320, "#00ff88")
	if !strings.HasPrefix(svg, `<?xml version="1.0"`) {
		t.Error("expected XML prolog")
	}
	if !strings.Contains(svg, "<path") || !strings.Contains(svg, "</svg>") {
		t.Error("expected a complete SVG path document")
	}
}

func TestConvergenceSVGTooShort(t *testing.T) {
	if svg := ConvergenceSVG([]float64{1.0}, 640, 320, "#fff"); svg != "" {
		t.Error("expected empty output for a single point")
	}
}

func TestWriteConvergenceSVG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv.svg")
	if err := WriteConvergenceSVG(path, []float64{1, 1e-4, 1e-8}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(data), "svg") {
		t.Error("expected svg content on disk")
	}

	if err := WriteConvergenceSVG(filepath.Join(t.TempDir(), "x.svg"), []float64{1}); err == nil {
		t.Error("expected error for short history")
	}
}
