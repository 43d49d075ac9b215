package charts

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"

	"spendwise/internal/expenses"
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("no data to chart")

var background = chart.Style{
	Padding: chart.Box{
		Top:    30,
		Left:   30,
		Right:  30,
		Bottom: 30,
	},
	FillColor: chart.ColorWhite,
}

// CategoryPie renders the per-category share of spending as a PNG pie chart.
func CategoryPie(sum expenses.Summary, currency string) ([]byte, error) {
	values := make([]chart.Value, 0, len(sum.Categories))
	for _, c := range sum.ByCategory() {
		amount := c.Total.InexactFloat64()
		if amount <= 0 {
			continue
		}
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s: %s%s", c.Category, currency, c.Total.StringFixed(2)),
			Value: amount,
			Style: chart.Style{
				FontSize:  10,
				FontColor: chart.ColorBlack,
			},
		})
	}
	if len(values) == 0 {
		return nil, ErrNoData
	}

	pie := chart.PieChart{
		Width:      600,
		Height:     600,
		Values:     values,
		Background: background,
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := pie.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("render category pie chart: %w", err)
	}
	return buffer.Bytes(), nil
}

// MonthlyTrend renders total spending per month as a PNG bar chart.
func MonthlyTrend(sum expenses.Summary, currency string) ([]byte, error) {
	months := sum.ByMonth()
	if len(months) == 0 {
		return nil, ErrNoData
	}

	bars := make([]chart.Value, 0, len(months))
	top := 0.0
	for _, m := range months {
		amount := m.Total.InexactFloat64()
		top = max(top, amount)
		bars = append(bars, chart.Value{
			Label: m.Month,
			Value: amount,
			Style: chart.Style{
				StrokeColor: chart.ColorBlue,
				FillColor:   chart.ColorBlue.WithAlpha(160),
			},
		})
	}
	if top <= 0 {
		top = 1
	}

	graph := chart.BarChart{
		Width:      800,
		Height:     400,
		BarWidth:   40,
		Background: background,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: top * 1.1},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%s%.0f", currency, f)
				}
				return ""
			},
			Style: chart.Style{
				FontSize:  10,
				FontColor: chart.ColorBlack,
			},
		},
		Bars: bars,
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("render monthly trend chart: %w", err)
	}
	return buffer.Bytes(), nil
}
