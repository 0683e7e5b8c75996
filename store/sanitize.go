package store

// DefaultMaxPayloadBytes is the fallback byte ceiling for free-text payloads
const DefaultMaxPayloadBytes = 50 * 1024

// TruncationMarker is appended to any payload cut at the byte ceiling
const TruncationMarker = "...[truncated]"

// Truncate cuts s at the max byte boundary and appends the truncation marker.
// Strings within the ceiling are returned unchanged. This bounds storage
// growth when a tool produces a pathological amount of output.
func Truncate(s string, max int) string {
	if max <= 0 {
		max = DefaultMaxPayloadBytes
	}
	if len(s) <= max {
		return s
	}
	return s[:max] + TruncationMarker
}
