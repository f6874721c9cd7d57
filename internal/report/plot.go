package report

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/lmb-freiburg/irocs/internal/fsutil"
	"github.com/lmb-freiburg/irocs/internal/monitoring"
)

var (
	colorRA   = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	colorRB   = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	colorTail = color.RGBA{R: 0x88, G: 0x88, B: 0x88, A: 0xff}
)

// profilePlot builds the radius-profile plot: blended semi-axes as lines,
// fitted control point semi-axes as markers, tails in grey.
func profilePlot(p *Profile, title string) (*plot.Plot, error) {
	pl := plot.New()
	pl.Title.Text = title
	pl.X.Label.Text = "Arc length"
	pl.Y.Label.Text = "Semi-axis"

	raPts := make(plotter.XYs, len(p.Samples))
	rbPts := make(plotter.XYs, len(p.Samples))
	for i, s := range p.Samples {
		raPts[i] = plotter.XY{X: s.Offset, Y: s.RA}
		rbPts[i] = plotter.XY{X: s.Offset, Y: s.RB}
	}

	for _, series := range []struct {
		label string
		pts   plotter.XYs
		color color.Color
	}{
		{"ra", raPts, colorRA},
		{"rb", rbPts, colorRB},
	} {
		line, err := plotter.NewLine(series.pts)
		if err != nil {
			return nil, err
		}
		line.Color = series.color
		line.Width = vg.Points(1)
		pl.Add(line)
		pl.Legend.Add(series.label, line)
	}

	var fitted, tails plotter.XYs
	for _, cp := range p.ControlPoints {
		for _, r := range []float64{cp.RA, cp.RB} {
			if cp.Tail {
				tails = append(tails, plotter.XY{X: cp.Offset, Y: r})
			} else {
				fitted = append(fitted, plotter.XY{X: cp.Offset, Y: r})
			}
		}
	}
	if len(fitted) > 0 {
		sc, err := plotter.NewScatter(fitted)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(2)
		pl.Add(sc)
		pl.Legend.Add("control points", sc)
	}
	if len(tails) > 0 {
		sc, err := plotter.NewScatter(tails)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Color = colorTail
		sc.GlyphStyle.Radius = vg.Points(2)
		pl.Add(sc)
		pl.Legend.Add("tails", sc)
	}

	pl.Add(plotter.NewGrid())
	pl.Legend.Top = true
	pl.Legend.Left = false
	pl.Legend.XOffs = -10
	pl.Legend.YOffs = -10
	return pl, nil
}

// WriteProfilePNG renders the radius profile as a PNG image.
func WriteProfilePNG(w io.Writer, p *Profile, title string) error {
	pl, err := profilePlot(p, title)
	if err != nil {
		return fmt.Errorf("failed to build profile plot: %w", err)
	}
	wt, err := pl.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render profile plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write profile plot: %w", err)
	}
	return nil
}

// SaveProfilePNG writes the radius profile PNG to path on fsys.
func SaveProfilePNG(fsys fsutil.FileSystem, path string, p *Profile, title string) error {
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteProfilePNG(f, p, title); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	monitoring.Logf("[report] wrote profile plot %s", path)
	return nil
}
