package headers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bluenviron/mediastream/pkg/base"
)

const rangeClockLayout = "20060102T150405Z"

// RangeValue is the value of a Range header. It can be
// - RangeNPT
// - RangeUTC
type RangeValue interface {
	unmarshal(start, end string) error
	marshal() string
}

// RangeNPT is a range expressed in normal play time.
type RangeNPT struct {
	// range starts at the live point.
	Now bool

	Start time.Duration
	End   *time.Duration
}

// parseNPT parses "[[hh:]mm:]ss[.fraction]".
func parseNPT(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid NPT time (%v)", s)
	}

	secs, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("invalid NPT time (%v)", s)
	}

	var whole uint64
	for _, p := range parts[:len(parts)-1] {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid NPT time (%v)", s)
		}
		whole = whole*60 + v
	}

	return time.Duration(whole)*time.Minute + time.Duration(secs*float64(time.Second)), nil
}

func (r *RangeNPT) unmarshal(start, end string) error {
	if start == "now" {
		r.Now = true
	} else {
		d, err := parseNPT(start)
		if err != nil {
			return err
		}
		r.Start = d
	}

	if end != "" {
		d, err := parseNPT(end)
		if err != nil {
			return err
		}
		r.End = &d
	}

	return nil
}

func (r RangeNPT) marshal() string {
	var b strings.Builder
	b.WriteString("npt=")

	if r.Now {
		b.WriteString("now")
	} else {
		b.WriteString(strconv.FormatFloat(r.Start.Seconds(), 'f', -1, 64))
	}

	b.WriteByte('-')

	if r.End != nil {
		b.WriteString(strconv.FormatFloat(r.End.Seconds(), 'f', -1, 64))
	}

	return b.String()
}

// RangeUTC is a range expressed in absolute time.
type RangeUTC struct {
	Start time.Time
	End   *time.Time
}

func (r *RangeUTC) unmarshal(start, end string) error {
	var err error
	r.Start, err = time.Parse(rangeClockLayout, start)
	if err != nil {
		return err
	}

	if end != "" {
		t, err := time.Parse(rangeClockLayout, end)
		if err != nil {
			return err
		}
		r.End = &t
	}

	return nil
}

func (r RangeUTC) marshal() string {
	ret := "clock=" + r.Start.Format(rangeClockLayout) + "-"
	if r.End != nil {
		ret += r.End.Format(rangeClockLayout)
	}
	return ret
}

// Range is a Range header.
type Range struct {
	Value RangeValue

	// time at which the range becomes effective.
	Time *time.Time
}

// Unmarshal decodes a Range header.
func (h *Range) Unmarshal(v base.HeaderValue) error {
	if len(v) == 0 {
		return fmt.Errorf("value not provided")
	}

	if len(v) > 1 {
		return fmt.Errorf("value provided multiple times (%v)", v)
	}

	for _, param := range strings.Split(v[0], ";") {
		key, val, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok {
			return fmt.Errorf("invalid parameter (%v)", param)
		}

		switch key {
		case "npt", "clock":
			var rv RangeValue
			if key == "npt" {
				rv = &RangeNPT{}
			} else {
				rv = &RangeUTC{}
			}

			start, end, ok := strings.Cut(val, "-")
			if !ok {
				return fmt.Errorf("invalid value (%v)", val)
			}

			err := rv.unmarshal(start, end)
			if err != nil {
				return err
			}
			h.Value = rv

		case "time":
			t, err := time.Parse(rangeClockLayout, val)
			if err != nil {
				return err
			}
			h.Time = &t
		}
	}

	if h.Value == nil {
		return fmt.Errorf("unsupported range (%v)", v[0])
	}

	return nil
}

// Marshal encodes a Range header.
func (h Range) Marshal() base.HeaderValue {
	v := h.Value.marshal()
	if h.Time != nil {
		v += ";time=" + h.Time.Format(rangeClockLayout)
	}
	return base.HeaderValue{v}
}
