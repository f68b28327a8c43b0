// Package domain models USGS earthquake feed data and the time partitions
// used to aggregate it.
//
// # Data Source
//
// Events come from the USGS real-time GeoJSON summary feeds
// (https://earthquake.usgs.gov/earthquakes/feed/v1.0/). Each feature carries
// a source-assigned globally unique id, an event timestamp in epoch
// milliseconds, an optional magnitude, a free-text place description, and a
// [lon, lat, depth] coordinate triple. The feed is a rolling window: the same
// event is re-delivered across polls until it ages out upstream, so ingestion
// deduplicates on the feature id.
//
// # Region Derivation
//
// Place strings follow a few loose conventions:
//
//	"10km SE of Example, Country"  →  region "Country" (after the last comma)
//	"South of the Fiji Islands"    →  region "the Fiji Islands" (after " of ")
//	"Example Ridge"                →  region "Example Ridge" (whole string)
//
// The label is heuristic and only used for coarse leaderboards; anything
// unparseable maps to "Unknown". See [DeriveRegion].
//
// # Minute Buckets
//
// Counters and associations are sharded by UTC minute, keyed yyyymmddHHmm.
// The fixed-width most-significant-first encoding makes string order equal
// chronological order, so bucket ranges can be enumerated and compared
// without parsing. [BucketTime] round-trips a bucket to the top of its
// minute.
//
// # Magnitude Bins
//
// Histograms use half-open unit intervals labelled "{floor}-{floor+1}", with
// three sentinel bins: "unknown" for missing/NaN magnitudes, "<0" for
// negative magnitudes (possible for very small quakes), and "9+" as the
// open-ended top bin.
package domain
