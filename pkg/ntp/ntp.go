// Package ntp converts NTP timestamps.
package ntp

// milliseconds between the NTP epoch (1900-01-01) and the Unix epoch.
const epochOffsetMillis = -2208988800000

// UnixMillis converts the two halves of a NTP timestamp into milliseconds
// since the Unix epoch.
// Specification: RFC3550, section 4
func UnixMillis(most uint32, least uint32) float64 {
	// explicit conversion prevents the compiler from fusing into a FMA,
	// which would change the rounding.
	ms := float64((float64(most) + float64(least)/(1<<32)) * 1000)
	return epochOffsetMillis + ms
}
