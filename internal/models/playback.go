package models

import "time"

// Phase is the load lifecycle of a session.
type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseFailed  Phase = "failed"
)

// PlaybackState is the cursor into the FrameSet. Index is meaningless while the set is empty.
type PlaybackState struct {
	Index   int  `json:"index"`
	Playing bool `json:"playing"`
}

// KPIs holds the formatted figures shown next to the map.
type KPIs struct {
	AvailableSupply string `json:"available_supply"`
	PeakDemand      string `json:"peak_demand"`
	TotalGeneration string `json:"total_generation"`
	Status          string `json:"status"`
}

// Snapshot is the presentation view of one session at a point in time.
type Snapshot struct {
	SessionID   string    `json:"session_id"`
	Phase       Phase     `json:"phase"`
	Index       int       `json:"index"`
	Playing     bool      `json:"playing"`
	Year        Year      `json:"year,omitempty"`
	FirstYear   Year      `json:"first_year,omitempty"`
	LastYear    Year      `json:"last_year,omitempty"`
	Count       int       `json:"count"`
	Metrics     Metrics   `json:"metrics,omitempty"`
	KPIs        KPIs      `json:"kpis"`
	AdequacyPct int       `json:"adequacy_pct"`
	BadgeColor  string    `json:"badge_color"`
	HeatYear    Year      `json:"heat_year,omitempty"` // year currently on the map, 0 if none
	Error       string    `json:"error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
