package domain

import "strings"

// Quake is the canonical event record built from one upstream feed item.
// It is immutable once constructed: the same value is appended to the raw
// stream, pushed onto the recent list, and broadcast to subscribers.
type Quake struct {
	ID     string   `json:"id"`
	Mag    *float64 `json:"mag"` // nil when the feed omits a magnitude
	Place  string   `json:"place"`
	Region string   `json:"region"`
	Lat    float64  `json:"lat"`
	Lon    float64  `json:"lon"`
	TS     int64    `json:"ts"` // event time, epoch milliseconds
}

// DeriveRegion reduces a free-text place description to a coarse region label.
// USGS place strings usually end with ", <region>" ("10km SE of Example, Alaska");
// some use a "NN km <compass> of <region>" form with no comma. Everything else
// falls through to the trimmed string, with "Unknown" for empty input.
func DeriveRegion(place string) string {
	if place == "" {
		return "Unknown"
	}
	if idx := strings.LastIndex(place, ","); idx != -1 {
		return strings.TrimSpace(place[idx+1:])
	}
	if idx := strings.Index(strings.ToLower(place), " of "); idx != -1 {
		return strings.TrimSpace(place[idx+4:])
	}
	return strings.TrimSpace(place)
}
