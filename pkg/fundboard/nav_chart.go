package fundboard

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// RenderNAVChart renders NAV history as a PNG line chart.
func RenderNAVChart(title string, history []NAVPoint) ([]byte, error) {
	xValues := make([]time.Time, 0, len(history))
	yValues := make([]float64, 0, len(history))
	for _, p := range history {
		t, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			continue
		}
		nav, _ := p.NAV.Float64()
		xValues = append(xValues, t)
		yValues = append(yValues, nav)
	}
	if len(xValues) < 2 {
		return nil, invalidInput(fmt.Sprintf("need at least 2 NAV points, got %d", len(xValues)))
	}

	series := chart.TimeSeries{
		Name: "NAV",
		Style: chart.Style{
			StrokeColor: drawing.ColorFromHex("dc2626"),
			StrokeWidth: 2,
		},
		XValues: xValues,
		YValues: yValues,
	}

	graph := chart.Chart{
		Title:  title,
		Width:  900,
		Height: 360,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return chart.TimeFromFloat64(f).Format("2006-01")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.4f", f)
				}
				return ""
			},
		},
		Series: []chart.Series{series},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}

// FundNAVChart renders the NAV history of one of the user's funds.
func (c *Core) FundNAVChart(ctx context.Context, userID, fundID int64) ([]byte, error) {
	detail, err := c.GetFundDetail(ctx, userID, fundID)
	if err != nil {
		return nil, err
	}
	// The bundled chart font has no CJK glyphs, so the title uses the code only.
	return RenderNAVChart(detail.FundCode+" NAV", detail.Details.History)
}
