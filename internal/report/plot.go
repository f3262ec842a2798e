package report

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	speedColor  = color.RGBA{R: 37, G: 99, B: 235, A: 255}
	limitColor  = color.RGBA{R: 220, G: 38, B: 38, A: 255}
	markerColor = color.RGBA{R: 120, G: 120, B: 120, A: 255}
)

// newProfilePlot draws speed and PSR against distance with a labelled
// vertical line at each station.
func newProfilePlot(s Series) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = s.Title
	p.X.Label.Text = "Distance (km)"
	p.Y.Label.Text = "Speed (km/h)"
	p.Y.Min = 0
	top := s.MaxSpeed() + 10
	p.Y.Max = top

	speedPts := make(plotter.XYs, 0, len(s.Points))
	for _, pt := range s.Points {
		speedPts = append(speedPts, plotter.XY{X: pt.KM, Y: pt.Speed})
	}
	if len(speedPts) > 0 {
		speedLine, err := plotter.NewLine(speedPts)
		if err != nil {
			return nil, err
		}
		speedLine.Color = speedColor
		speedLine.Width = vg.Points(1)
		p.Add(speedLine)
		p.Legend.Add("Speed", speedLine)
	}

	// PSR is drawn as separate runs so unknown stretches stay blank.
	legendAdded := false
	for _, run := range limitRuns(s.Points) {
		l, err := plotter.NewLine(run)
		if err != nil {
			return nil, err
		}
		l.Color = limitColor
		l.Width = vg.Points(1)
		l.StepStyle = plotter.PostStep
		p.Add(l)
		if !legendAdded {
			p.Legend.Add("PSR", l)
			legendAdded = true
		}
	}

	if len(s.Markers) > 0 {
		labels := plotter.XYLabels{}
		for _, m := range s.Markers {
			l, err := plotter.NewLine(plotter.XYs{{X: m.KM, Y: 0}, {X: m.KM, Y: top}})
			if err != nil {
				return nil, err
			}
			l.Color = markerColor
			l.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}
			p.Add(l)
			labels.XYs = append(labels.XYs, plotter.XY{X: m.KM, Y: top - 5})
			labels.Labels = append(labels.Labels, m.Station)
		}
		names, err := plotter.NewLabels(labels)
		if err != nil {
			return nil, err
		}
		p.Add(names)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func limitRuns(points []Point) []plotter.XYs {
	var out []plotter.XYs
	var cur plotter.XYs
	for _, pt := range points {
		if pt.PSR == nil {
			if len(cur) > 0 {
				out = append(out, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, plotter.XY{X: pt.KM, Y: *pt.PSR})
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// WritePNG renders the profile plot as a PNG.
func WritePNG(w io.Writer, s Series) error {
	p, err := newProfilePlot(s)
	if err != nil {
		return fmt.Errorf("build plot: %w", err)
	}
	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("encode plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePNG writes the profile plot to path, creating its directory.
func SavePNG(path string, s Series) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	p, err := newProfilePlot(s)
	if err != nil {
		return fmt.Errorf("build plot: %w", err)
	}
	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}
