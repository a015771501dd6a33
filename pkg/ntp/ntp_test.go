package ntp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnixMillis(t *testing.T) {
	for _, ca := range []struct {
		name  string
		most  uint32
		least uint32
		ms    float64
	}{
		{
			"unix epoch",
			2208988800,
			0,
			0,
		},
		{
			"half second",
			2208988800,
			0x80000000,
			500,
		},
		{
			"fraction",
			2208988801,
			0xC0000000,
			1750,
		},
		{
			"camera sender report",
			3668306118,
			445534137,
			1459317318103.734,
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			require.Equal(t, ca.ms, UnixMillis(ca.most, ca.least))
		})
	}
}
