package sim

import (
	"errors"
	"fmt"
	"image"

	"github.com/fogleman/gg"
)

const (
	plotWidth  = 1000
	plotHeight = 500
	plotMargin = 40
)

var ErrEmptyTrace = errors.New("trace has fewer than two samples")

// Plot renders the trace to a PNG: required carriage position in blue,
// actual in red, and the spindle position in grey on its own scale.
func Plot(trace []Sample, path string) error {
	img, err := Render(trace)
	if err != nil {
		return err
	}
	if err := gg.SavePNG(path, img); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}

// Render draws the trace and returns the image
func Render(trace []Sample) (image.Image, error) {
	if len(trace) < 2 {
		return nil, ErrEmptyTrace
	}

	t0 := trace[0].TimeUS
	span := float64(trace[len(trace)-1].TimeUS - t0)
	if span == 0 {
		span = 1
	}
	lo, hi := carriageRange(trace)
	slo, shi := spindleRange(trace)

	dc := gg.NewContext(plotWidth, plotHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	w := float64(plotWidth - 2*plotMargin)
	h := float64(plotHeight - 2*plotMargin)
	x := func(s Sample) float64 {
		return plotMargin + w*float64(s.TimeUS-t0)/span
	}
	scale := func(v, lo, hi float64) float64 {
		if hi == lo {
			return plotMargin + h/2
		}
		return plotMargin + h*(1-(v-lo)/(hi-lo))
	}

	// Axes
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1)
	dc.DrawLine(plotMargin, plotMargin, plotMargin, plotMargin+h)
	dc.DrawLine(plotMargin, plotMargin+h, plotMargin+w, plotMargin+h)
	dc.Stroke()
	dc.DrawString(fmt.Sprintf("%d", int64(hi)), 2, plotMargin)
	dc.DrawString(fmt.Sprintf("%d", int64(lo)), 2, plotMargin+h)
	dc.DrawString(fmt.Sprintf("%.3f s", span/1e6), plotMargin+w-60, plotMargin+h+20)

	series := []struct {
		r, g, b float64
		label   string
		value   func(Sample) float64
	}{
		{0.6, 0.6, 0.6, "spindle", func(s Sample) float64 { return scale(float64(s.Spindle), slo, shi) }},
		{0.1, 0.3, 0.9, "required", func(s Sample) float64 { return scale(float64(s.Required), lo, hi) }},
		{0.9, 0.1, 0.1, "actual", func(s Sample) float64 { return scale(float64(s.Actual), lo, hi) }},
	}
	for i, sr := range series {
		dc.SetRGB(sr.r, sr.g, sr.b)
		dc.SetLineWidth(1.5)
		dc.MoveTo(x(trace[0]), sr.value(trace[0]))
		for _, s := range trace[1:] {
			dc.LineTo(x(s), sr.value(s))
		}
		dc.Stroke()
		dc.DrawString(sr.label, plotMargin+10+float64(i)*90, plotMargin-12)
	}

	return dc.Image(), nil
}

func carriageRange(trace []Sample) (float64, float64) {
	lo, hi := float64(trace[0].Required), float64(trace[0].Required)
	for _, s := range trace {
		for _, v := range []float64{float64(s.Required), float64(s.Actual)} {
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}
	return lo, hi
}

func spindleRange(trace []Sample) (float64, float64) {
	lo, hi := float64(trace[0].Spindle), float64(trace[0].Spindle)
	for _, s := range trace {
		lo = min(lo, float64(s.Spindle))
		hi = max(hi, float64(s.Spindle))
	}
	return lo, hi
}
