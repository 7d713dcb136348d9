package render

import "github.com/seven320/pose-net-correction/internal/model"

type Dataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BackgroundColor []string  `json:"backgroundColor,omitempty"`
	BorderColor     []string  `json:"borderColor,omitempty"`
}

type Ticks struct {
	SuggestedMin float64 `json:"suggestedMin"`
	SuggestedMax float64 `json:"suggestedMax,omitempty"`
	StepSize     float64 `json:"stepSize"`
}

type Axes struct {
	X Ticks `json:"x"`
	Y Ticks `json:"y"`
}

// Chart is a line-chart configuration consumable by Chart.js style clients.
type Chart struct {
	Type     string    `json:"type"`
	Labels   []int     `json:"labels"`
	Datasets []Dataset `json:"datasets"`
	Axes     Axes      `json:"axes"`
}

const (
	HistoryLabel  = "eye distance (px)"
	BaselineLabel = "baseline"
)

// ChartOf plots the smoothed history and, once armed, a flat baseline.
func ChartOf(snap model.Snapshot) Chart {
	n := len(snap.History)
	labels := make([]int, n)
	history := make([]float64, n)
	for i, v := range snap.History {
		labels[i] = i
		history[i] = float64(v)
	}

	c := Chart{
		Type:   "line",
		Labels: labels,
		Datasets: []Dataset{{
			Label:           HistoryLabel,
			Data:            history,
			BackgroundColor: []string{"rgba(255, 99, 132, 0.2)"},
			BorderColor:     []string{"rgba(255,99,132,1)"},
		}},
		Axes: Axes{
			X: Ticks{SuggestedMin: 10, StepSize: 5},
			Y: Ticks{SuggestedMin: 0, SuggestedMax: 150, StepSize: 10},
		},
	}

	if snap.Baseline != nil {
		flat := make([]float64, n)
		for i := range flat {
			flat[i] = *snap.Baseline
		}
		c.Datasets = append(c.Datasets, Dataset{Label: BaselineLabel, Data: flat})
	}
	return c
}
