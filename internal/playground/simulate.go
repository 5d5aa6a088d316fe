// Package playground generates and stores strategy back-test simulation runs
// for the lab page. Runs are synthetic: a model-weighted trend curve with
// noise, not a real back-test engine.
package playground

import (
	"math"
	"math/rand"
	"time"

	"github.com/quantgens/quantgens-server/internal/market"
)

// Params are the tunable inputs of a simulation run.
type Params struct {
	LookbackPeriod  int     `json:"lookbackPeriod"`
	ConfidenceLevel float64 `json:"confidenceLevel"`
	LearningRate    float64 `json:"learningRate"`
	Regularization  float64 `json:"regularization"`
}

// DataPoint is one day of the simulated equity curve.
type DataPoint struct {
	Day       int     `json:"day"`
	Strategy  float64 `json:"strategy"`
	Benchmark float64 `json:"benchmark"`
}

// RunStatus is the lifecycle state of a run. Simulation is synchronous, so
// stored runs are always completed.
type RunStatus string

const StatusCompleted RunStatus = "completed"

// Run is one stored simulation.
type Run struct {
	ID          string      `json:"id"`
	Model       string      `json:"model"`
	Parameters  Params      `json:"parameters"`
	Status      RunStatus   `json:"status"`
	FinalReturn float64     `json:"finalReturn"`
	DataPoints  []DataPoint `json:"dataPoints"`
	StartedAt   time.Time   `json:"startedAt"`
	CompletedAt time.Time   `json:"completedAt"`
}

// modelMultipliers weight the strategy curve per model family. Unknown models
// fall back to 1.0.
var modelMultipliers = map[string]float64{
	"lstm":              1.35,
	"transformer":       1.4,
	"garch":             1.15,
	"xgboost":           1.25,
	"random-forest":     1.2,
	"arima":             1.1,
	"kalman-filter":     1.08,
	"linear-regression": 1.05,
}

const maxSimulationDays = 90

// Simulate produces the equity curve for a model and parameter set. The
// horizon is the lookback period clamped to [1, 90] days. rng supplies the
// noise terms; a nil rng gets a time-seeded one.
func Simulate(model string, p Params, rng *rand.Rand) []DataPoint {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	baseMultiplier, ok := modelMultipliers[model]
	if !ok {
		baseMultiplier = 1.0
	}
	paramEffect := (p.LearningRate*5 + (100-p.ConfidenceLevel)*0.02) * baseMultiplier
	volatility := (100 - p.ConfidenceLevel) * 0.03

	days := p.LookbackPeriod
	if days > maxSimulationDays {
		days = maxSimulationDays
	}
	if days < 1 {
		days = 1
	}

	points := make([]DataPoint, 0, days)
	for i := 0; i < days; i++ {
		noise := (rng.Float64() - 0.5) * volatility
		trend := math.Sin(float64(i)/15)*2 + float64(i)*paramEffect*0.01
		benchmarkNoise := (rng.Float64() - 0.5) * 1.5

		strategy := 100 + trend + noise + float64(i)*0.05*baseMultiplier
		benchmark := 100 + math.Sin(float64(i)/20)*1.5 + benchmarkNoise + float64(i)*0.02

		points = append(points, DataPoint{
			Day:       i + 1,
			Strategy:  market.Round2(strategy),
			Benchmark: market.Round2(benchmark),
		})
	}
	return points
}

// FinalReturn is the strategy's percentage return over the run.
func FinalReturn(points []DataPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	return market.Round2(points[len(points)-1].Strategy - 100)
}
