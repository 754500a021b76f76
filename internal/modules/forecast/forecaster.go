// README: Demand/supply forecasting with recency-weighted blending.
package forecast

import (
	"time"

	"roam/internal/config"
	"roam/internal/grid"
	"roam/internal/modules/samples"
)

// HistoryReader is the slice of the sample store the forecaster needs.
type HistoryReader interface {
	DemandHistory(cellKey string, day time.Weekday, bucket int) []samples.DemandSupplySample
	DemandRecent(cellKey string, cutoff time.Time) []samples.DemandSupplySample
}

// Forecast describes expected conditions in a cell at arrival time.
type Forecast struct {
	PredictedEarningsPerHour float64      `json:"predicted_earnings_per_hour"`
	Confidence               float64      `json:"confidence"`
	DemandScore              float64      `json:"demand_score"`
	SupplyScore              float64      `json:"supply_score"`
	ArrivalDay               time.Weekday `json:"arrival_day"`
	ArrivalBucket            int          `json:"arrival_bucket"`
	TravelTimeMinutes        float64      `json:"travel_time_minutes"`
}

// Forecaster predicts demand and supply for a destination cell at the
// moment the driver would arrive there. Historical slot data and very
// recent live samples are blended, weighted by how far away the
// destination is: the shorter the drive, the more the last half hour
// matters.
type Forecaster struct {
	store HistoryReader
	cfg   config.EngineConfig
	now   func() time.Time
}

func NewForecaster(store HistoryReader, cfg config.EngineConfig) *Forecaster {
	return &Forecaster{store: store, cfg: cfg, now: time.Now}
}

// Forecast computes the arrival-time outlook for a cell. Returns false
// when the cell has no historical and no recent samples; such a
// destination carries no signal and must be excluded from ranking.
func (f *Forecaster) Forecast(cellKey string, travelTimeMinutes float64, bucketWidthMinutes int) (Forecast, bool) {
	now := f.now()
	arrival := now.Add(time.Duration(travelTimeMinutes * float64(time.Minute)))
	day := arrival.Weekday()
	bucket := grid.BucketOf(arrival.Hour(), arrival.Minute(), bucketWidthMinutes)

	historical := f.store.DemandHistory(cellKey, day, bucket)
	recent := f.store.DemandRecent(cellKey, now.Add(-f.cfg.RecentWindow))
	if len(historical) == 0 && len(recent) == 0 {
		return Forecast{}, false
	}

	histDemand, histSupply := meanCounts(historical)
	recentDemand, recentSupply := meanCounts(recent)

	wRecent := f.recencyWeight(travelTimeMinutes)
	wHist := 1 - wRecent
	demand := recentDemand*wRecent + histDemand*wHist
	supply := recentSupply*wRecent + histSupply*wHist

	ratio := demand
	if supply > 0 {
		ratio = demand / supply
	}

	earnings := f.cfg.BaseHourlyRate * (1 + ratio*f.cfg.RatioGain) * f.timeMultiplier(arrival.Hour())

	confidence := float64(len(historical)+len(recent)) / f.cfg.ConfidenceDivisor
	if confidence > 1 {
		confidence = 1
	}
	if len(recent) > 0 {
		confidence += f.cfg.RecentBonus
	}
	if confidence > 1 {
		confidence = 1
	}

	return Forecast{
		PredictedEarningsPerHour: earnings,
		Confidence:               confidence,
		DemandScore:              demand,
		SupplyScore:              supply,
		ArrivalDay:               day,
		ArrivalBucket:            bucket,
		TravelTimeMinutes:        travelTimeMinutes,
	}, true
}

// recencyWeight grows as the destination gets closer; live state says
// little about a cell half an hour away. Thresholds and weights come
// from configuration; the last weight covers everything beyond the
// final threshold.
func (f *Forecaster) recencyWeight(travelTimeMinutes float64) float64 {
	weights := f.cfg.RecencyWeights
	for i, th := range f.cfg.RecencyThresholdsMin {
		if travelTimeMinutes <= th {
			return weights[i]
		}
	}
	return weights[len(weights)-1]
}

// timeMultiplier scales earnings by the arrival hour: configured rush
// hours pay more, configured night hours pay less.
func (f *Forecaster) timeMultiplier(hour int) float64 {
	switch {
	case containsHour(f.cfg.RushHours, hour):
		return f.cfg.RushMultiplier
	case containsHour(f.cfg.NightHours, hour):
		return f.cfg.NightMultiplier
	default:
		return 1.0
	}
}

func containsHour(hours []int, hour int) bool {
	for _, h := range hours {
		if h == hour {
			return true
		}
	}
	return false
}

func meanCounts(pool []samples.DemandSupplySample) (demand, supply float64) {
	if len(pool) == 0 {
		return 0, 0
	}
	for _, s := range pool {
		demand += float64(s.Passengers)
		supply += float64(s.Drivers)
	}
	n := float64(len(pool))
	return demand / n, supply / n
}
