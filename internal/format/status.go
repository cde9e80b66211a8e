package format

import "grid_adequacy/internal/models"

// Status labels.
const (
	StatusLoading     = "Loading"
	StatusStressed    = "Stressed"
	StatusBalanced    = "Balanced"
	StatusSurplus     = "Surplus"
	StatusUnavailable = "Unavailable"
)

// Band cut points on the adequacy index.
const (
	StressedBelow = -0.1
	BalancedBelow = 0.05
)

// Classify derives the status label. loading overrides any adequacy value.
func Classify(adequacy float64, loading bool) string {
	switch {
	case loading:
		return StatusLoading
	case adequacy < StressedBelow:
		return StatusStressed
	case adequacy < BalancedBelow:
		return StatusBalanced
	default:
		return StatusSurplus
	}
}

// ClassifyPhase is Classify keyed by session phase; a failed load has no meaningful band.
func ClassifyPhase(adequacy float64, phase models.Phase) string {
	if phase == models.PhaseFailed {
		return StatusUnavailable
	}
	return Classify(adequacy, phase == models.PhaseLoading)
}

// KPIsFor builds the formatted KPI block for one year's metrics.
func KPIsFor(m models.Metrics, phase models.Phase) models.KPIs {
	return models.KPIs{
		AvailableSupply: FormatMetric(m, models.MetricAvailableSupply),
		PeakDemand:      FormatMetric(m, models.MetricPeakDemand),
		TotalGeneration: FormatMetric(m, models.MetricTotalGeneration),
		Status:          ClassifyPhase(m[models.MetricAdequacyIndex], phase),
	}
}
