package utils

// IsValidInterval reports whether interval is a ClickHouse toStartOf<Unit>
// suffix. The value is interpolated into SQL.
func IsValidInterval(interval string) bool {
	switch interval {
	case "Minute", "Hour", "Day", "Week", "Month", "Quarter", "Year":
		return true
	default:
		return false
	}
}
