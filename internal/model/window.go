package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// TimestampLayout is the layout accepted on the command line and passed to
// the retrieval tool.
const TimestampLayout = "2006-01-02 15:04:05"

// stampLayout is the filename-safe rendering used in default artifact names.
const stampLayout = "20060102_15-04-05"

// CanaryDuration is the length of the schema probe window.
const CanaryDuration = time.Second

// TimeWindow is a retrieval interval with second resolution. The retrieval
// tool treats both ends as inclusive.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ParseTimestamp parses a "YYYY-MM-DD HH:MM:SS" value.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "model: parse timestamp %q", s)
	}
	return t, nil
}

// ParseWindow parses both ends of a window and rejects an end before the start.
func ParseWindow(start, end string) (TimeWindow, error) {
	s, err := ParseTimestamp(start)
	if err != nil {
		return TimeWindow{}, err
	}
	e, err := ParseTimestamp(end)
	if err != nil {
		return TimeWindow{}, err
	}
	w := TimeWindow{Start: s, End: e}
	if err := w.Validate(); err != nil {
		return TimeWindow{}, err
	}
	return w, nil
}

// Validate reports whether the window is usable.
func (w TimeWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return eris.New("model: window start and end are required")
	}
	if w.End.Before(w.Start) {
		return eris.Errorf("model: window end %s is before start %s", w.FormatEnd(), w.FormatStart())
	}
	return nil
}

// Canary returns the one-second probe window starting at w.Start. The
// requested end time plays no part in it.
func (w TimeWindow) Canary() TimeWindow {
	return TimeWindow{Start: w.Start, End: w.Start.Add(CanaryDuration)}
}

// FormatStart renders the start in TimestampLayout.
func (w TimeWindow) FormatStart() string { return w.Start.Format(TimestampLayout) }

// FormatEnd renders the end in TimestampLayout.
func (w TimeWindow) FormatEnd() string { return w.End.Format(TimestampLayout) }

// Stamp renders the window as "<start>_to_<end>" for artifact names.
func (w TimeWindow) Stamp() string {
	return w.Start.Format(stampLayout) + "_to_" + w.End.Format(stampLayout)
}

func (w TimeWindow) String() string {
	return w.FormatStart() + "-" + w.FormatEnd()
}
