package domain

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Point forecast variables.
const (
	VarCloudCover        = "cloud_cover"
	VarTemperature       = "temperature"
	VarDewpoint          = "dewpoint"
	VarPrecipProbability = "precip_probability"
	VarWindSpeed         = "wind_speed"
	VarWindGust          = "wind_gust"
	VarWindDirection     = "wind_direction"
	VarSeeing            = "seeing"
	VarTransparency      = "transparency"
)

// PointVariables lists the variables a point forecast must supply.
var PointVariables = []string{
	VarCloudCover,
	VarTemperature,
	VarDewpoint,
	VarPrecipProbability,
	VarWindSpeed,
	VarWindGust,
	VarWindDirection,
}

// RawInterval is one upstream value keyed by an ISO-8601 "start/duration" string.
type RawInterval struct {
	ValidTime string
	Value     float64
}

// RawSeries is an un-normalized upstream series with its source unit.
type RawSeries struct {
	Unit      Unit
	Intervals []RawInterval
}

// Record is one value valid over [Start, Start+Duration).
type Record struct {
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
	Value    float64       `json:"value"`
}

// End returns the exclusive end of the record's validity.
func (r Record) End() time.Time { return r.Start.Add(r.Duration) }

// TimeSeries is an ordered, unit-tagged series expressed in a single timezone.
// Starts are strictly increasing.
type TimeSeries struct {
	Variable string   `json:"variable"`
	Unit     Unit     `json:"unit"`
	TimeZone string   `json:"timezone"`
	Records  []Record `json:"records"`
}

// Len returns the number of records.
func (ts TimeSeries) Len() int { return len(ts.Records) }

// Span returns the start of the first record and the end of the last.
func (ts TimeSeries) Span() (start, end time.Time, ok bool) {
	if len(ts.Records) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return ts.Records[0].Start, ts.Records[len(ts.Records)-1].End(), true
}

// Clip keeps the records overlapping w. The receiver is not modified.
func (ts TimeSeries) Clip(w Window) TimeSeries {
	out := ts
	out.Records = nil
	for _, r := range ts.Records {
		if r.Start.Before(w.End) && r.End().After(w.Start) {
			out.Records = append(out.Records, r)
		}
	}
	return out
}

// Normalize turns raw intervals into a TimeSeries: starts are converted to tz,
// values from source to target unit, and records sorted ascending by start.
// Two intervals with the same start are rejected.
func Normalize(variable string, raw []RawInterval, source, target Unit, tz *time.Location) (TimeSeries, error) {
	if tz == nil {
		return TimeSeries{}, fmt.Errorf("%w: %s: nil timezone", ErrValidation, variable)
	}

	records := make([]Record, 0, len(raw))
	for _, in := range raw {
		start, dur, err := ParseInterval(in.ValidTime)
		if err != nil {
			return TimeSeries{}, fmt.Errorf("%s: %w", variable, err)
		}
		v, err := Convert(in.Value, source, target)
		if err != nil {
			return TimeSeries{}, fmt.Errorf("%s: %w", variable, err)
		}
		records = append(records, Record{Start: start.In(tz), Duration: dur, Value: v})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Start.Before(records[j].Start)
	})
	for i := 1; i < len(records); i++ {
		if records[i].Start.Equal(records[i-1].Start) {
			return TimeSeries{}, fmt.Errorf("%w: %s: duplicate interval start %s",
				ErrMalformedFeed, variable, records[i].Start.Format(time.RFC3339))
		}
	}

	return TimeSeries{Variable: variable, Unit: target, TimeZone: tz.String(), Records: records}, nil
}

// ParseInterval splits "start/duration" into its parts.
func ParseInterval(s string) (time.Time, time.Duration, error) {
	startStr, durStr, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return time.Time{}, 0, fmt.Errorf("%w: interval %q has no duration", ErrMalformedFeed, s)
	}
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("%w: interval start %q: %v", ErrMalformedFeed, startStr, err)
	}
	dur, err := ParseISODuration(durStr)
	if err != nil {
		return time.Time{}, 0, err
	}
	return start, dur, nil
}

const maxDuration = time.Duration(math.MaxInt64)

var isoDurationRe = regexp.MustCompile(`^P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseISODuration parses the fixed-length subset of ISO-8601 durations
// (weeks, days, hours, minutes, seconds). Months and years are rejected.
func ParseISODuration(s string) (time.Duration, error) {
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil || s == "P" || strings.HasSuffix(s, "T") {
		return 0, fmt.Errorf("%w: unsupported duration %q", ErrMalformedFeed, s)
	}

	units := []time.Duration{7 * 24 * time.Hour, 24 * time.Hour, time.Hour, time.Minute}
	var total time.Duration
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: duration %q: %v", ErrMalformedFeed, s, err)
		}
		if n > int64((maxDuration-total)/unit) {
			return 0, fmt.Errorf("%w: duration %q out of range", ErrMalformedFeed, s)
		}
		total += time.Duration(n) * unit
	}
	if m[5] != "" {
		secs, err := strconv.ParseFloat(m[5], 64)
		if err != nil {
			return 0, fmt.Errorf("%w: duration %q: %v", ErrMalformedFeed, s, err)
		}
		if secs >= float64(maxDuration-total)/float64(time.Second) {
			return 0, fmt.Errorf("%w: duration %q out of range", ErrMalformedFeed, s)
		}
		total += time.Duration(secs * float64(time.Second))
	}
	if total <= 0 {
		return 0, fmt.Errorf("%w: non-positive duration %q", ErrMalformedFeed, s)
	}
	return total, nil
}

// Extrema returns the strict local maxima and minima among the records
// starting at or after from. The first and last of those are never reported.
func Extrema(ts TimeSeries, from time.Time) (highs, lows []Record) {
	var r []Record
	for _, rec := range ts.Records {
		if !rec.Start.Before(from) {
			r = append(r, rec)
		}
	}
	for i := 1; i+1 < len(r); i++ {
		switch {
		case r[i].Value > r[i-1].Value && r[i].Value > r[i+1].Value:
			highs = append(highs, r[i])
		case r[i].Value < r[i-1].Value && r[i].Value < r[i+1].Value:
			lows = append(lows, r[i])
		}
	}
	return highs, lows
}
