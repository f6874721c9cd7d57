package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/lmb-freiburg/irocs/internal/shell"
)

// viridis is the visual map palette shared by all charts.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// maxMeshPoints bounds the number of surface vertices sent to the browser.
const maxMeshPoints = 20000

func profileChart(p *Profile, title string) *charts.Line {
	x := make([]string, len(p.Samples))
	ra := make([]opts.LineData, len(p.Samples))
	rb := make([]opts.LineData, len(p.Samples))
	for i, s := range p.Samples {
		x[i] = strconv.FormatFloat(s.Offset, 'f', 1, 64)
		ra[i] = opts.LineData{Value: s.RA}
		rb[i] = opts.LineData{Value: s.RB}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title: title,
			Subtitle: fmt.Sprintf("length=%.2f mean ra=%.3f rb=%.3f aspect=%.3f",
				p.TotalLength, p.Summary.MeanRA, p.Summary.MeanRB, p.Summary.MeanAspect),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Arc length", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Semi-axis", NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(x).
		AddSeries("ra", ra).
		AddSeries("rb", rb).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))
	return line
}

// RenderProfileHTML renders the radius profile as an interactive line chart.
func RenderProfileHTML(w io.Writer, p *Profile, title string) error {
	if err := profileChart(p, title).Render(w); err != nil {
		return fmt.Errorf("failed to render profile chart: %w", err)
	}
	return nil
}

func meshChart(m *shell.Mesh, title string) *charts.Scatter3D {
	stride := 1
	if len(m.Vertices) > maxMeshPoints {
		stride = (len(m.Vertices) + maxMeshPoints - 1) / maxMeshPoints
	}

	data := make([]opts.Chart3DData, 0, len(m.Vertices)/stride+1)
	for i := 0; i < len(m.Vertices); i += stride {
		v := m.Vertices[i]
		data = append(data, opts.Chart3DData{Value: []interface{}{v.X, v.Y, v.Z}})
	}

	scatter := charts.NewScatter3D()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("rings=%d segments=%d points=%d stride=%d", m.Latitudes, m.Longitudes, len(data), stride),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minZ(m)),
			Max:        float32(maxZ(m)),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("surface", data)
	return scatter
}

func minZ(m *shell.Mesh) float64 {
	z := 0.0
	for i, v := range m.Vertices {
		if i == 0 || v.Z < z {
			z = v.Z
		}
	}
	return z
}

func maxZ(m *shell.Mesh) float64 {
	z := 0.0
	for i, v := range m.Vertices {
		if i == 0 || v.Z > z {
			z = v.Z
		}
	}
	return z
}

// RenderMeshHTML renders the surface vertices as a 3-D scatter chart.
func RenderMeshHTML(w io.Writer, m *shell.Mesh, title string) error {
	if err := meshChart(m, title).Render(w); err != nil {
		return fmt.Errorf("failed to render mesh chart: %w", err)
	}
	return nil
}

// RenderReportHTML renders the profile and surface charts on one page.
func RenderReportHTML(w io.Writer, p *Profile, m *shell.Mesh, title string) error {
	page := components.NewPage()
	page.AddCharts(profileChart(p, title+" profile"), meshChart(m, title+" surface"))
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	return nil
}
