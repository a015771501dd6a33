package headers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/mediastream/pkg/base"
)

func uintPtr(v uint) *uint {
	return &v
}

func TestSessionUnmarshal(t *testing.T) {
	for _, ca := range []struct {
		name string
		v    string
		h    Session
	}{
		{
			"id only",
			`4c2ba84b`,
			Session{Session: "4c2ba84b"},
		},
		{
			"timeout",
			`4c2ba84b;timeout=60`,
			Session{Session: "4c2ba84b", Timeout: uintPtr(60)},
		},
		{
			"spaces around parameters",
			` 4c2ba84b ; timeout = 8 `,
			Session{Session: "4c2ba84b", Timeout: uintPtr(8)},
		},
		{
			"mixed case key",
			`1185523957;Timeout=30`,
			Session{Session: "1185523957", Timeout: uintPtr(30)},
		},
		{
			"unknown parameter",
			`1185523957;x-dynamic-rate=1;timeout=30`,
			Session{Session: "1185523957", Timeout: uintPtr(30)},
		},
		{
			"malformed timeout",
			`1185523957;timeout=never`,
			Session{Session: "1185523957"},
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			h := Session{Timeout: uintPtr(99)}
			err := h.Unmarshal(base.HeaderValue{ca.v})
			require.NoError(t, err)
			require.Equal(t, ca.h, h)
		})
	}
}

func TestSessionUnmarshalErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		hv   base.HeaderValue
		err  string
	}{
		{
			"missing",
			base.HeaderValue{},
			"value not provided",
		},
		{
			"repeated",
			base.HeaderValue{"4c2ba84b", "4c2ba84c"},
			"value provided multiple times ([4c2ba84b 4c2ba84c])",
		},
		{
			"no id",
			base.HeaderValue{" ;timeout=60"},
			"invalid value ([ ;timeout=60])",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			var h Session
			require.EqualError(t, h.Unmarshal(ca.hv), ca.err)
		})
	}
}

func FuzzSessionUnmarshal(f *testing.F) {
	f.Add("4c2ba84b;timeout=60")
	f.Add(";timeout=")

	f.Fuzz(func(_ *testing.T, b string) {
		var h Session
		h.Unmarshal(base.HeaderValue{b}) //nolint:errcheck
	})
}
