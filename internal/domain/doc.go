// Package domain models hazard alerts for the Guadeloupe (Karukera) region and
// the earthquake feed they are derived from.
//
// # Alert Model
//
// An [Alert] is a tagged variant: every alert carries the shared field set
// (identity, type tag, severity, title, source, location, lifecycle timestamps,
// active flag, free-form metadata) and a kind-specific payload selected by the
// type tag. Only the earthquake kind has a payload today ([Earthquake]).
//
// Construction runs validation first and then an explicit derivation sequence:
//
//  1. severity: recomputed from the kind payload ([DeriveSeverity]); for
//     earthquakes magnitude is the only driver and any supplied severity is ignored
//  2. active status: an alert whose ExpiresAt is strictly in the past is forced
//     inactive ([DeriveActive]), whatever flag the caller supplied
//
// [Alert.Revalidate] re-runs the same sequence on an existing value.
//
// # Data Source
//
// Earthquake events come from the USGS FDSN event web service:
//
//	https://earthquake.usgs.gov/fdsnws/event/1/query?format=geojson&...
//
// The response is a GeoJSON FeatureCollection. Relevant fields per feature:
//
//	properties.mag       magnitude (required)
//	properties.time      origin time, milliseconds since the Unix epoch (required)
//	properties.place     human-readable epicenter description, e.g. "45 km NE of Le Moule"
//	properties.magType   magnitude scale, e.g. "ml", "mb", "mww" (default "ml")
//	properties.felt      number of "Did You Feel It?" reports, null when none
//	properties.tsunami   1 when a tsunami bulletin exists, else 0
//	properties.url       event page
//	properties.title     feed title, used as the alert description
//	geometry.coordinates [longitude, latitude, depth_km] (required)
//
// Features that cannot be mapped are reported as [FeedMappingError] and never
// abort the rest of the batch.
//
// # Severity Classification
//
// Magnitude bands, lower bound inclusive, evaluated top-down:
//
//	M >= 6.0 emergency | M >= 5.0 critical | M >= 4.0 warning | otherwise info
//
// # ID Generation
//
// Alerts built from the feed get a SHA-1 namespace UUID of the USGS event page
// URL, so re-polling the same event upserts the same store row. Alerts built
// directly by callers get a random UUID.
package domain
