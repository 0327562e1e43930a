package models

// SessionData summarizes the session documents a FeatureVector was built from.
type SessionData struct {
	TotalSessions         int      `json:"total_sessions"`
	CompletedSessions     int      `json:"completed_sessions"`
	SessionSummariesCount int      `json:"session_summaries_count"`
	SessionEndsCount      int      `json:"session_ends_count"`
	UniqueSessionIDs      []string `json:"unique_session_ids"`
}

// FeatureVector is the behavioral summary handed to the classifier. It is
// recomputed from stored events and sessions on every request.
type FeatureVector struct {
	NumberOfClicksBuy             int64          `json:"number_of_clicks_buy"`
	NumberOfClicksSell            int64          `json:"number_of_clicks_sell"`
	AverageHoverBuyDuration       int64          `json:"average_hover_buy_duration"`
	AverageHoverSellDuration      int64          `json:"average_hover_sell_duration"`
	Percentile95HoverBuyDuration  int64          `json:"percentile95_hover_buy_duration"`
	Percentile95HoverSellDuration int64          `json:"percentile95_hover_sell_duration"`
	AverageSessionDurationMs      int64          `json:"average_session_duration_ms"`
	PeakActivityHour              *int           `json:"peak_activity_hour"`
	TotalSessions                 int            `json:"total_sessions"`
	TotalEvents                   int            `json:"total_events"`
	PrimaryDevice                 *string        `json:"primary_device"`
	PrimaryBrowser                *string        `json:"primary_browser"`
	DeviceDistribution            map[string]int `json:"device_distribution"`
	BrowserDistribution           map[string]int `json:"browser_distribution"`
	SessionData                   SessionData    `json:"session_data"`
}
