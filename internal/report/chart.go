package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// RenderHTML writes an interactive speed and PSR profile against distance.
// Stations are vertical mark lines and overspeed stretches are shaded.
func RenderHTML(w io.Writer, s Series) error {
	speed := make([]opts.LineData, 0, len(s.Points))
	limit := make([]opts.LineData, 0, len(s.Points))
	for _, p := range s.Points {
		speed = append(speed, opts.LineData{Value: []interface{}{p.KM, p.Speed}})
		if p.PSR != nil {
			limit = append(limit, opts.LineData{Value: []interface{}{p.KM, *p.PSR}})
		} else {
			limit = append(limit, opts.LineData{Value: []interface{}{p.KM, nil}})
		}
	}

	top := s.MaxSpeed() + 10

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: s.Title, Width: "100%", Height: "640px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: s.Title, Subtitle: s.Subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Distance (km)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Speed (km/h)", Min: 0, Max: top}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
	)

	speedOpts := []charts.SeriesOpts{
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithMarkLineStyleOpts(opts.MarkLineStyle{
			Symbol: []string{"none", "none"},
			Label:  &opts.Label{Show: opts.Bool(true), Formatter: "{b}"},
		}),
	}
	for _, m := range s.Markers {
		name := m.Station
		if m.EntrySpeed != nil {
			name = fmt.Sprintf("%s (%.0f)", m.Station, *m.EntrySpeed)
		}
		speedOpts = append(speedOpts, charts.WithMarkLineNameXAxisItemOpts(opts.MarkLineNameXAxisItem{Name: name, XAxis: m.KM}))
	}
	for _, b := range s.Overspeed {
		speedOpts = append(speedOpts, charts.WithMarkAreaNameCoordItemOpts(opts.MarkAreaNameCoordItem{
			Name:        b.Label,
			Coordinate0: []interface{}{b.StartKM, 0},
			Coordinate1: []interface{}{b.EndKM, top},
			ItemStyle:   &opts.ItemStyle{Color: "rgba(220, 38, 38, 0.15)"},
		}))
	}

	line.AddSeries("Speed", speed, speedOpts...)
	line.AddSeries("PSR", limit,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false), Step: "end"}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: "#dc2626", Type: "dashed"}),
	)

	if err := line.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
