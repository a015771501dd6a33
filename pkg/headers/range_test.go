package headers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/mediastream/pkg/base"
)

func durationPtr(v time.Duration) *time.Duration {
	return &v
}

func timePtr(v time.Time) *time.Time {
	return &v
}

var casesRange = []struct {
	name string
	vin  base.HeaderValue
	vout base.HeaderValue
	h    Range
}{
	{
		"npt",
		base.HeaderValue{`npt=123.45-125`},
		base.HeaderValue{`npt=123.45-125`},
		Range{
			Value: &RangeNPT{
				Start: time.Duration(123.45 * float64(time.Second)),
				End:   durationPtr(125 * time.Second),
			},
		},
	},
	{
		"npt hours",
		base.HeaderValue{`npt=12:05:35.3-`},
		base.HeaderValue{`npt=43535.3-`},
		Range{
			Value: &RangeNPT{
				Start: time.Duration(float64(12*3600+5*60+35.3) * float64(time.Second)),
			},
		},
	},
	{
		"npt minutes",
		base.HeaderValue{`npt=2:30-`},
		base.HeaderValue{`npt=150-`},
		Range{
			Value: &RangeNPT{
				Start: 150 * time.Second,
			},
		},
	},
	{
		"npt now",
		base.HeaderValue{`npt=now-`},
		base.HeaderValue{`npt=now-`},
		Range{
			Value: &RangeNPT{
				Now: true,
			},
		},
	},
	{
		"npt zero",
		base.HeaderValue{`npt=0-`},
		base.HeaderValue{`npt=0-`},
		Range{
			Value: &RangeNPT{},
		},
	},
	{
		"clock",
		base.HeaderValue{`clock=20240108T142300Z-20240108T143520Z`},
		base.HeaderValue{`clock=20240108T142300Z-20240108T143520Z`},
		Range{
			Value: &RangeUTC{
				Start: time.Date(2024, 1, 8, 14, 23, 0, 0, time.UTC),
				End:   timePtr(time.Date(2024, 1, 8, 14, 35, 20, 0, time.UTC)),
			},
		},
	},
	{
		"clock with time",
		base.HeaderValue{`clock=20240108T142300Z-;time=20240109T000000Z`},
		base.HeaderValue{`clock=20240108T142300Z-;time=20240109T000000Z`},
		Range{
			Value: &RangeUTC{
				Start: time.Date(2024, 1, 8, 14, 23, 0, 0, time.UTC),
			},
			Time: timePtr(time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)),
		},
	},
}

func TestRangeUnmarshal(t *testing.T) {
	for _, ca := range casesRange {
		t.Run(ca.name, func(t *testing.T) {
			var h Range
			err := h.Unmarshal(ca.vin)
			require.NoError(t, err)
			require.Equal(t, ca.h, h)
		})
	}
}

func TestRangeMarshal(t *testing.T) {
	for _, ca := range casesRange {
		t.Run(ca.name, func(t *testing.T) {
			require.Equal(t, ca.vout, ca.h.Marshal())
		})
	}
}

func TestRangeUnmarshalErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		v    base.HeaderValue
	}{
		{"empty", base.HeaderValue{}},
		{"multiple", base.HeaderValue{"npt=0-", "npt=1-"}},
		{"smpte", base.HeaderValue{"smpte=0:10:00-"}},
		{"no separator", base.HeaderValue{"npt=10"}},
		{"negative", base.HeaderValue{"npt=-1-"}},
		{"too many colons", base.HeaderValue{"npt=1:2:3:4-"}},
		{"invalid clock", base.HeaderValue{"clock=yesterday-"}},
		{"missing equal", base.HeaderValue{"npt"}},
	} {
		t.Run(ca.name, func(t *testing.T) {
			var h Range
			require.Error(t, h.Unmarshal(ca.v))
		})
	}
}

func FuzzRangeUnmarshal(f *testing.F) {
	for _, ca := range casesRange {
		f.Add(ca.vin[0])
	}

	f.Add("npt=")
	f.Add("clock=")

	f.Fuzz(func(_ *testing.T, b string) {
		var h Range
		h.Unmarshal(base.HeaderValue{b}) //nolint:errcheck
	})
}
