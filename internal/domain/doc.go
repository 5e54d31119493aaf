// Package domain models the inputs and output of a stargazing forecast.
//
// # Sources
//
// A forecast fuses four independent sources for one observer location:
//
//   - Gridded astronomical fields (seeing and transparency) from a regional
//     deterministic prediction model, read as one layer per forecast step.
//   - A point forecast for sky cover, temperature, dewpoint, precipitation
//     probability and wind, delivered as ISO-8601 intervals ("start/duration").
//   - The planetary Kp index: recent observations as a JSON table and a
//     3-day prediction as a plain-text bulletin.
//   - Sun and Moon ephemeris, computed locally (see package ephemeris).
//
// # Conventions
//
// Interval strings look like:
//
//	2024-01-01T00:00:00+00:00/PT3H
//
// The start is RFC 3339. The duration supports weeks, days, hours, minutes
// and seconds; months and years are rejected because their length depends on
// the calendar.
//
// Kp bulletin day columns carry no year ("Dec 31", "Jan 01"). The year is
// taken from the caller's "now" unless that places the date too far in the
// past, in which case the column belongs to next year. See [ParsePredictions].
//
// Storm levels follow the NOAA G-scale:
//
//	Kp < 4.5 none | < 5.5 G1 | < 6.5 G2 | < 7.5 G3 | < 9 G4 | otherwise G5
//
// # Grids
//
// Grid cells are matched to an observer by Euclidean distance in the
// spherical web-Mercator projection (EPSG:3857), which is what the upstream
// tooling used. Ties resolve to the first cell in row-major order.
package domain
