package report

import (
	"errors"
	"io"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/opeprep/opexam/internal/model"
)

// ErrNoAttempts reports a chart request with an empty history.
var ErrNoAttempts = errors.New("no attempts to chart")

const (
	chartWidth  = 640
	chartHeight = 400
)

// ScoreChart renders the score-over-attempts line as PNG.
func ScoreChart(w io.Writer, attempts []model.Attempt) error {
	if len(attempts) == 0 {
		return ErrNoAttempts
	}

	xs := make([]float64, len(attempts))
	ys := make([]float64, len(attempts))
	for i, a := range attempts {
		xs[i] = float64(i + 1)
		ys[i] = a.Score
	}

	graph := chart.Chart{
		Title:  "Score evolution",
		Width:  chartWidth,
		Height: chartHeight,
		XAxis: chart.XAxis{
			Name: "Attempt",
			// Explicit ranges keep a single-attempt history renderable.
			Range: &chart.ContinuousRange{Min: 0, Max: float64(len(attempts)) + 1},
		},
		YAxis: chart.YAxis{
			Name:  "Score",
			Range: &chart.ContinuousRange{Min: 0, Max: 10},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeWidth: 2,
					DotWidth:    4,
				},
			},
		},
	}
	return graph.Render(chart.PNG, w)
}

// BreakdownChart renders stacked correct/wrong bars per attempt as PNG.
func BreakdownChart(w io.Writer, attempts []model.Attempt) error {
	if len(attempts) == 0 {
		return ErrNoAttempts
	}

	bars := make([]chart.StackedBar, len(attempts))
	for i, a := range attempts {
		bars[i] = chart.StackedBar{
			Name:  strconv.Itoa(i + 1),
			Width: 40,
			Values: []chart.Value{
				{
					Label: "correct",
					Value: float64(a.Correct),
					Style: chart.Style{FillColor: chart.ColorGreen, StrokeColor: chart.ColorGreen},
				},
				{
					Label: "wrong",
					Value: float64(a.Wrong),
					Style: chart.Style{FillColor: chart.ColorRed, StrokeColor: chart.ColorRed},
				},
			},
		}
	}

	graph := chart.StackedBarChart{
		Title:      "Correct vs wrong",
		Width:      chartWidth,
		Height:     chartHeight,
		BarSpacing: 24,
		Bars:       bars,
	}
	return graph.Render(chart.PNG, w)
}
