// Package features turns a user's stored interaction history into the
// fixed-shape FeatureVector consumed by the profile classifier.
//
// Aggregation is a pure function of its inputs: it never touches storage and
// holds no state, so it can run concurrently for any number of users.
package features

import (
	"math"
	"sort"
	"strings"
	"time"

	"fakebroker/api/models"
)

// FilterAll selects every session of a user.
const FilterAll = "all"

const unknown = "unknown"

// Aggregator builds FeatureVectors.
type Aggregator struct {
	// Location is used to read the hour of day of session starts.
	// Nil means time.Local.
	Location *time.Location
}

// Build computes features with the zero Aggregator.
func Build(events []models.Event, sessions []models.SessionRecord) models.FeatureVector {
	return Aggregator{}.Build(events, sessions)
}

// Build computes the FeatureVector for one user's events and session documents.
// Click and hover figures come from session summaries only; raw events are
// never recounted, since the summaries already absorbed them at ingest.
func (a Aggregator) Build(events []models.Event, sessions []models.SessionRecord) models.FeatureVector {
	var summaries, starts, ends []models.SessionRecord
	for _, s := range sessions {
		switch s.Type {
		case models.SessionSummary:
			summaries = append(summaries, s)
		case models.SessionStart:
			starts = append(starts, s)
		case models.SessionEnd:
			ends = append(ends, s)
		}
	}

	var clicksBuy, clicksSell int64
	var hoversBuy, hoversSell []float64
	var durations []float64
	for _, s := range summaries {
		clicksBuy += s.ClicksBuy
		clicksSell += s.ClicksSell
		hoversBuy = append(hoversBuy, s.HoversBuy...)
		hoversSell = append(hoversSell, s.HoversSell...)
		if s.Completed && s.DurationMs != nil {
			durations = append(durations, float64(*s.DurationMs))
		}
	}

	loc := a.Location
	if loc == nil {
		loc = time.Local
	}
	hours := make([]int, 0, len(starts))
	for _, s := range starts {
		hours = append(hours, s.Timestamp.In(loc).Hour())
	}

	// User agents live on summaries; older data only has them on the starts.
	uaSource := summaries
	if len(uaSource) == 0 {
		uaSource = starts
	}
	devices := make(map[string]int)
	browsers := make(map[string]int)
	for _, s := range uaSource {
		if s.UserAgent == nil {
			continue
		}
		devices[deviceName(s.UserAgent)]++
		browsers[browserName(s.UserAgent)]++
	}

	return models.FeatureVector{
		NumberOfClicksBuy:             clicksBuy,
		NumberOfClicksSell:            clicksSell,
		AverageHoverBuyDuration:       round(Average(hoversBuy)),
		AverageHoverSellDuration:      round(Average(hoversSell)),
		Percentile95HoverBuyDuration:  round(Percentile95(hoversBuy)),
		Percentile95HoverSellDuration: round(Percentile95(hoversSell)),
		AverageSessionDurationMs:      round(Average(durations)),
		PeakActivityHour:              peakHour(hours),
		TotalSessions:                 len(starts),
		TotalEvents:                   len(events),
		PrimaryDevice:                 mode(devices),
		PrimaryBrowser:                mode(browsers),
		DeviceDistribution:            devices,
		BrowserDistribution:           browsers,
		SessionData: models.SessionData{
			TotalSessions:         len(starts),
			CompletedSessions:     len(durations),
			SessionSummariesCount: len(summaries),
			SessionEndsCount:      len(ends),
			UniqueSessionIDs:      sessionIDs(starts),
		},
	}
}

// FilterBySession restricts events and sessions to a single session id.
// An empty filter or FilterAll returns the inputs unchanged.
func FilterBySession(events []models.Event, sessions []models.SessionRecord, filter string) ([]models.Event, []models.SessionRecord) {
	if filter == "" || filter == FilterAll {
		return events, sessions
	}
	fe := make([]models.Event, 0)
	for _, e := range events {
		if e.SessionID == filter {
			fe = append(fe, e)
		}
	}
	fs := make([]models.SessionRecord, 0)
	for _, s := range sessions {
		if s.SessionID == filter {
			fs = append(fs, s)
		}
	}
	return fe, fs
}

// Average is the arithmetic mean of xs, or 0 when xs is empty.
func Average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Percentile95 returns the nearest-rank 95th percentile of xs: the element at
// index floor(0.95*(n-1)) of the ascending sort. It returns 0 for empty input
// and does not modify xs.
func Percentile95(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	return sorted[int(math.Floor(0.95*float64(len(sorted)-1)))]
}

// round rounds half up, matching how the dashboards display durations.
func round(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}

// peakHour returns the most frequent hour. Ties go to the earliest hour.
func peakHour(hours []int) *int {
	if len(hours) == 0 {
		return nil
	}
	var counts [24]int
	for _, h := range hours {
		counts[h]++
	}
	best := 0
	for h := 1; h < len(counts); h++ {
		if counts[h] > counts[best] {
			best = h
		}
	}
	return &best
}

// mode returns the key with the highest count. Ties go to the
// lexicographically smallest key.
func mode(dist map[string]int) *string {
	if len(dist) == 0 {
		return nil
	}
	keys := make([]string, 0, len(dist))
	for k := range dist {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best := keys[0]
	for _, k := range keys[1:] {
		if dist[k] > dist[best] {
			best = k
		}
	}
	return &best
}

func deviceName(ua *models.UserAgent) string {
	if ua.Device != "" {
		return ua.Device
	}
	return unknown
}

func browserName(ua *models.UserAgent) string {
	if ua.Browser != nil && ua.Browser.Browser != "" {
		return ua.Browser.Browser
	}
	for _, raw := range []string{ua.FullUA, ua.Raw} {
		if fields := strings.Fields(raw); len(fields) > 0 {
			return fields[0]
		}
	}
	return unknown
}

func sessionIDs(starts []models.SessionRecord) []string {
	ids := make([]string, 0, len(starts))
	seen := make(map[string]bool, len(starts))
	for _, s := range starts {
		if s.SessionID == "" || seen[s.SessionID] {
			continue
		}
		seen[s.SessionID] = true
		ids = append(ids, s.SessionID)
	}
	return ids
}
