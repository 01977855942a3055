// Package report renders finished searches: a convergence PNG for quick
// inspection and an interactive HTML report with per-parameter panels.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/cwbudde/hypertune/space"
	"github.com/cwbudde/hypertune/trial"
)

const (
	// ConvergencePNG is the static convergence plot file name.
	ConvergencePNG = "convergence.png"

	// ReportHTML is the interactive report file name.
	ReportHTML = "report.html"
)

// Info carries everything the renderers need about a finished search.
// Space is optional; without it the HTML report omits the per-parameter
// panels.
type Info struct {
	Algorithm string
	Backend   string
	Trials    []trial.Trial
	Space     *space.Space
}

// Convergence writes a PNG of per-trial objective values with the
// running best overlaid.
func Convergence(dir string, trials []trial.Trial) error {
	if len(trials) == 0 {
		return errors.New("report: no trials to plot")
	}

	p := plot.New()
	p.Title.Text = "Convergence"
	p.X.Label.Text = "Trial"
	p.Y.Label.Text = "Objective"

	values := make(plotter.XYs, len(trials))
	running := make(plotter.XYs, len(trials))
	best := math.Inf(1)
	for i, t := range trials {
		values[i] = plotter.XY{X: float64(i), Y: t.Value}
		if t.Value < best {
			best = t.Value
		}
		running[i] = plotter.XY{X: float64(i), Y: best}
	}

	valueLine, err := plotter.NewLine(values)
	if err != nil {
		return fmt.Errorf("failed to build value line: %w", err)
	}
	valueLine.Color = color.RGBA{R: 158, G: 158, B: 158, A: 255}
	valueLine.Width = vg.Points(1)

	bestLine, err := plotter.NewLine(running)
	if err != nil {
		return fmt.Errorf("failed to build best line: %w", err)
	}
	bestLine.Color = color.RGBA{R: 255, G: 82, B: 82, A: 255}
	bestLine.Width = vg.Points(2)

	p.Add(valueLine, bestLine)
	p.Legend.Add("value", valueLine)
	p.Legend.Add("best", bestLine)
	p.Legend.Top = true

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(dir, ConvergencePNG)
	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save convergence plot: %w", err)
	}

	slog.Debug("convergence plot saved", "path", path, "trials", len(trials))
	return nil
}

// HTML writes the interactive report: a convergence line chart plus one
// objective-vs-parameter scatter per numeric dimension.
func HTML(dir string, info Info) error {
	if len(info.Trials) == 0 {
		return errors.New("report: no trials to report")
	}

	page := components.NewPage()
	page.PageTitle = "hypertune report"
	page.AddCharts(convergenceChart(info))

	if info.Space != nil {
		names := info.Space.Names()
		for i, kind := range info.Space.Kinds() {
			if kind == space.KindCategorical {
				continue
			}
			page.AddCharts(paramChart(names[i], info.Trials))
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(dir, ReportHTML)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := page.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to render report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close report file: %w", err)
	}

	slog.Debug("html report saved", "path", path, "trials", len(info.Trials))
	return nil
}

func convergenceChart(info Info) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Convergence",
			Subtitle: fmt.Sprintf("algorithm=%s backend=%s trials=%d", info.Algorithm, info.Backend, len(info.Trials)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "trial"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "objective"}),
	)

	x := make([]string, len(info.Trials))
	values := make([]opts.LineData, len(info.Trials))
	running := make([]opts.LineData, len(info.Trials))
	best := math.Inf(1)
	for i, t := range info.Trials {
		x[i] = strconv.Itoa(i)
		values[i] = opts.LineData{Value: t.Value}
		if t.Value < best {
			best = t.Value
		}
		running[i] = opts.LineData{Value: best}
	}

	line.SetXAxis(x).
		AddSeries("value", values).
		AddSeries("best", running)
	return line
}

func paramChart(name string, trials []trial.Trial) *charts.Scatter {
	data := make([]opts.ScatterData, 0, len(trials))
	for _, t := range trials {
		raw, ok := t.Params.Get(name)
		if !ok {
			continue
		}
		v, ok := floatValue(raw)
		if !ok {
			continue
		}
		data = append(data, opts.ScatterData{Value: []interface{}{v, t.Value}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "600px", Height: "450px"}),
		charts.WithTitleOpts(opts.Title{Title: name}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: name}),
		charts.WithYAxisOpts(opts.YAxis{Name: "objective"}),
	)
	scatter.AddSeries("trials", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	return scatter
}

func floatValue(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
