package main

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const histogramBins = 20

// writeHistogram renders latencies (seconds) as a millisecond histogram PNG.
func writeHistogram(latencies []float64, path string) error {
	if len(latencies) == 0 {
		return fmt.Errorf("no latency samples to plot")
	}
	ms := make(plotter.Values, len(latencies))
	for i, s := range latencies {
		ms[i] = s * 1000
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Detection latency (%d samples)", len(ms))
	p.X.Label.Text = "Latency (ms)"
	p.Y.Label.Text = "Requests"

	h, err := plotter.NewHist(ms, histogramBins)
	if err != nil {
		return fmt.Errorf("failed to build histogram: %w", err)
	}
	p.Add(h)

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save histogram %s: %w", path, err)
	}
	return nil
}
