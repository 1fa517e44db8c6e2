// Package export renders solver convergence histories as standalone
// SVG documents.
package export

import (
	"fmt"
	"math"
	"os"
	"strings"
)

// ConvergenceSVG plots a residual history as a polyline on a log10
// vertical axis. Returns the empty string for histories too short to
// plot.
func ConvergenceSVG(history []float64, width, height int, strokeColor string) string {
	if len(history) < 2 {
		return ""
	}

	logs := make([]float64, len(history))
	minY, maxY := math.Inf(1), math.Inf(-1)
	for i, r := range history {
		if r <= 0 {
			r = 1e-16
		}
		logs[i] = math.Log10(r)
		if logs[i] < minY {
			minY = logs[i]
		}
		if logs[i] > maxY {
			maxY = logs[i]
		}
	}
	rangeY := maxY - minY
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeY = maxY - minY

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="M`,
		width, height, width, height, strokeColor))

	for i, y := range logs {
		px := float64(i) / float64(len(logs)-1) * float64(width)
		py := float64(height) - (y-minY)/rangeY*float64(height)
		if i == 0 {
			sb.WriteString(fmt.Sprintf("%.1f,%.1f", px, py))
		} else {
			sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", px, py))
		}
	}

	sb.WriteString(`"/>
</svg>`)
	return sb.String()
}

// WriteConvergenceSVG writes the plot to a file.
func WriteConvergenceSVG(path string, history []float64) error {
	svg := ConvergenceSVG(history, 640, 320, "#00ff88")
	if svg == "" {
		return fmt.Errorf("export: history too short to plot (%d points)", len(history))
	}
	return os.WriteFile(path, []byte(svg), 0644)
}
