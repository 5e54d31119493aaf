package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// StormThreshold is the Kp value at which activity counts as a geomagnetic storm.
const StormThreshold = 5.0

// Default windows for the geomagnetic feeds.
const (
	DefaultObservationWindow   = 48 * time.Hour
	DefaultPredictionTolerance = 48 * time.Hour
)

// StormLevel is the NOAA G-scale level.
type StormLevel int

const (
	StormNone StormLevel = iota
	StormG1
	StormG2
	StormG3
	StormG4
	StormG5
)

func (l StormLevel) String() string {
	if l == StormNone {
		return "None"
	}
	return fmt.Sprintf("G%d", int(l))
}

func (l StormLevel) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *StormLevel) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "None" {
		*l = StormNone
		return nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "G%d", &n); err != nil || n < int(StormG1) || n > int(StormG5) || s != fmt.Sprintf("G%d", n) {
		return fmt.Errorf("%w: storm level %q", ErrValidation, s)
	}
	*l = StormLevel(n)
	return nil
}

// KpClass is the storm classification of a Kp value, with its display colour.
type KpClass struct {
	Level    StormLevel `json:"level"`
	Severity string     `json:"severity"`
	Color    string     `json:"color"`
}

// ClassifyKp maps a Kp value onto the G-scale. The function is total:
// values outside [0, 9] fall into the nearest band.
func ClassifyKp(kp float64) KpClass {
	switch {
	case kp < 4.5:
		return KpClass{StormNone, "None", "#92d050"}
	case kp < 5.5:
		return KpClass{StormG1, "Minor", "#f6eb14"}
	case kp < 6.5:
		return KpClass{StormG2, "Moderate", "#ffc800"}
	case kp < 7.5:
		return KpClass{StormG3, "Strong", "#ff9600"}
	case kp < 9:
		return KpClass{StormG4, "Severe", "#ff0000"}
	default:
		return KpClass{StormG5, "Extreme", "#c80000"}
	}
}

// describe renders "G1: Minor", or "None" when there is no storm.
func (c KpClass) describe() string {
	if c.Level == StormNone {
		return c.Severity
	}
	return fmt.Sprintf("%s: %s", c.Level, c.Severity)
}

// KpSample is one 3-hour Kp value, observed or predicted.
type KpSample struct {
	Time       time.Time  `json:"time"`
	Kp         float64    `json:"kp"`
	Level      StormLevel `json:"storm_level"`
	Annotation string     `json:"annotation,omitempty"`
	Predicted  bool       `json:"predicted"`
}

func newKpSample(t time.Time, kp float64, annotation string, predicted bool) KpSample {
	return KpSample{Time: t, Kp: kp, Level: ClassifyKp(kp).Level, Annotation: annotation, Predicted: predicted}
}

var observationLayouts = []string{
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

func parseObservationTime(s string) (time.Time, error) {
	for _, layout := range observationLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: observation time %q", ErrMalformedFeed, s)
}

// ParseObservations reads the planetary Kp observation table. Both the
// header-row array form and the array-of-objects form are accepted. Only
// samples newer than latest-window are returned, oldest first.
func ParseObservations(raw []byte, window time.Duration) ([]KpSample, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: kp observations: %v", ErrMalformedFeed, err)
	}

	var samples []KpSample
	var err error
	if len(rows) > 0 && bytes.HasPrefix(bytes.TrimSpace(rows[0]), []byte("[")) {
		samples, err = parseObservationTable(rows)
	} else {
		samples, err = parseObservationObjects(rows)
	}
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: kp observations: no data rows", ErrMalformedFeed)
	}

	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Time.Before(samples[j].Time) })
	cutoff := samples[len(samples)-1].Time.Add(-window)
	out := samples[:0]
	for _, s := range samples {
		if s.Time.After(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

func parseObservationTable(rows []json.RawMessage) ([]KpSample, error) {
	var header []string
	if err := json.Unmarshal(rows[0], &header); err != nil {
		return nil, fmt.Errorf("%w: kp observations header: %v", ErrMalformedFeed, err)
	}
	timeCol, kpCol := -1, -1
	for i, h := range header {
		switch h {
		case "time_tag":
			timeCol = i
		case "Kp", "kp_index":
			kpCol = i
		}
	}
	if timeCol < 0 || kpCol < 0 {
		return nil, fmt.Errorf("%w: kp observations header %v lacks time_tag or Kp", ErrMalformedFeed, header)
	}

	samples := make([]KpSample, 0, len(rows)-1)
	for n, raw := range rows[1:] {
		var row []any
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("%w: kp observations row %d: %v", ErrMalformedFeed, n+1, err)
		}
		if len(row) <= timeCol || len(row) <= kpCol {
			return nil, fmt.Errorf("%w: kp observations row %d is short", ErrMalformedFeed, n+1)
		}
		s, err := observationSample(row[timeCol], row[kpCol])
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func parseObservationObjects(rows []json.RawMessage) ([]KpSample, error) {
	samples := make([]KpSample, 0, len(rows))
	for n, raw := range rows {
		var row map[string]any
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("%w: kp observations row %d: %v", ErrMalformedFeed, n, err)
		}
		kp, ok := row["Kp"]
		if !ok {
			kp = row["kp_index"]
		}
		s, err := observationSample(row["time_tag"], kp)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func observationSample(rawTime, rawKp any) (KpSample, error) {
	ts, ok := rawTime.(string)
	if !ok {
		return KpSample{}, fmt.Errorf("%w: observation time %v", ErrMalformedFeed, rawTime)
	}
	t, err := parseObservationTime(ts)
	if err != nil {
		return KpSample{}, err
	}
	var kp float64
	switch v := rawKp.(type) {
	case float64:
		kp = v
	case string:
		kp, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return KpSample{}, fmt.Errorf("%w: kp value %q", ErrMalformedFeed, v)
		}
	default:
		return KpSample{}, fmt.Errorf("%w: kp value %v", ErrMalformedFeed, rawKp)
	}
	if math.IsNaN(kp) || math.IsInf(kp, 0) || kp < 0 {
		return KpSample{}, fmt.Errorf("%w: kp value %v", ErrMalformedFeed, kp)
	}
	return newKpSample(t, kp, "", false), nil
}

const (
	predictionStartMarker = "NOAA Kp index breakdown"
	predictionEndMarker   = "Rationale:"
)

var (
	columnSplitRe = regexp.MustCompile(` {2,}`)
	kpCellRe      = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(?:\(([^)]*)\))?$`)
)

// ParsePredictions reads the 3-day Kp forecast bulletin. Day columns carry no
// year: the year of now is assumed unless the date would fall more than
// tolerance before now, in which case it belongs to next year. A December
// column read in early January falls back to the previous year.
func ParsePredictions(raw string, now time.Time, tolerance time.Duration) ([]KpSample, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	start := -1
	for i, l := range lines {
		if strings.Contains(l, predictionStartMarker) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil, fmt.Errorf("%w: kp predictions: %q marker not found", ErrMalformedFeed, predictionStartMarker)
	}

	var table []string
	closed := false
	for _, l := range lines[start:] {
		if strings.HasPrefix(strings.TrimSpace(l), predictionEndMarker) {
			closed = true
			break
		}
		if strings.TrimSpace(l) != "" {
			table = append(table, l)
		}
	}
	if !closed {
		return nil, fmt.Errorf("%w: kp predictions: %q marker not found", ErrMalformedFeed, predictionEndMarker)
	}
	if len(table) < 2 {
		return nil, fmt.Errorf("%w: kp predictions: empty table", ErrMalformedFeed)
	}

	days := splitColumns(table[0])
	now = now.UTC()
	var samples []KpSample
	for _, line := range table[1:] {
		cells := splitColumns(line)
		if len(cells) != len(days)+1 {
			return nil, fmt.Errorf("%w: kp predictions: row %q has %d cells, want %d",
				ErrMalformedFeed, line, len(cells), len(days)+1)
		}
		hour, err := parsePredictionHour(cells[0])
		if err != nil {
			return nil, err
		}
		for i, day := range days {
			t, err := resolvePredictionDate(day, hour, now, tolerance)
			if err != nil {
				return nil, err
			}
			kp, annotation, err := parseKpCell(cells[i+1])
			if err != nil {
				return nil, err
			}
			samples = append(samples, newKpSample(t, kp, annotation, true))
		}
	}

	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Time.Before(samples[j].Time) })
	return samples, nil
}

func splitColumns(line string) []string {
	var out []string
	for _, c := range columnSplitRe.Split(strings.TrimSpace(line), -1) {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// parsePredictionHour reads the start hour of a row label such as "00-03UT".
func parsePredictionHour(label string) (int, error) {
	h, _, ok := strings.Cut(label, "-")
	if !ok {
		return 0, fmt.Errorf("%w: kp predictions: row label %q", ErrMalformedFeed, label)
	}
	hour, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w: kp predictions: row label %q", ErrMalformedFeed, label)
	}
	return hour, nil
}

func resolvePredictionDate(day string, hour int, now time.Time, tolerance time.Duration) (time.Time, error) {
	md, err := time.Parse("Jan 2", strings.Join(strings.Fields(day), " "))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: kp predictions: day column %q", ErrMalformedFeed, day)
	}
	at := func(year int) time.Time {
		return time.Date(year, md.Month(), md.Day(), hour, 0, 0, 0, time.UTC)
	}

	t := at(now.Year())
	switch {
	case now.Sub(t) > tolerance:
		t = at(now.Year() + 1)
	case t.Sub(now) > 183*24*time.Hour:
		t = at(now.Year() - 1)
	}
	return t, nil
}

func parseKpCell(cell string) (float64, string, error) {
	m := kpCellRe.FindStringSubmatch(cell)
	if m == nil {
		return 0, "", fmt.Errorf("%w: kp predictions: cell %q", ErrMalformedFeed, cell)
	}
	kp, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: kp predictions: cell %q", ErrMalformedFeed, cell)
	}
	return kp, strings.TrimSpace(m[2]), nil
}

// KpSummary is a human-readable digest of recent geomagnetic activity.
type KpSummary struct {
	IsStorm bool     `json:"is_storm"`
	Header  string   `json:"header"`
	Message string   `json:"message"`
	Current KpSample `json:"current"`
	Maximum KpSample `json:"maximum"`
}

const (
	kpSourceURL     = "https://www.swpc.noaa.gov/products/planetary-k-index"
	auroraSourceURL = "https://www.swpc.noaa.gov/products/aurora-30-minute-forecast"
)

// SummarizeKp reports the latest observation and the maximum over the window.
// The first of several equal maxima wins.
func SummarizeKp(observations []KpSample) (KpSummary, error) {
	if len(observations) == 0 {
		return KpSummary{}, fmt.Errorf("%w: no kp observations to summarize", ErrMalformedFeed)
	}

	current := observations[0]
	maximum := observations[0]
	for _, s := range observations[1:] {
		if !s.Time.Before(current.Time) {
			current = s
		}
		if s.Kp > maximum.Kp {
			maximum = s
		}
	}

	cur := ClassifyKp(current.Kp)
	peak := ClassifyKp(maximum.Kp)

	header := "Geomagnetic Activity: None"
	if cur.Level != StormNone {
		header = fmt.Sprintf("Geomagnetic Storm Alert: %s (%s)", cur.Level, cur.Severity)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Current Kp: %.2f (%s)\n", current.Kp, cur.describe())
	fmt.Fprintf(&b, "Recent Maximum Kp: %.2f (%s) at %s\n\n",
		maximum.Kp, peak.describe(), maximum.Time.UTC().Format("2006-01-02 15:04 UTC"))
	fmt.Fprintf(&b, "Source: %s\n", kpSourceURL)
	fmt.Fprintf(&b, "Aurora forecast: %s", auroraSourceURL)

	return KpSummary{
		IsStorm: current.Kp >= StormThreshold,
		Header:  header,
		Message: b.String(),
		Current: current,
		Maximum: maximum,
	}, nil
}
