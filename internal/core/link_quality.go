package core

import "time"

// ClassifyLink buckets a link by round-trip time and downlink estimate the
// way the effective connection type does. Zero values mean unknown.
func ClassifyLink(rtt time.Duration, downlinkKbps float64) ConnectionClass {
	if rtt <= 0 && downlinkKbps <= 0 {
		return ClassUnknown
	}
	known := downlinkKbps > 0
	switch {
	case rtt >= 2000*time.Millisecond || (known && downlinkKbps <= 50):
		return ClassSlow2G
	case rtt >= 1400*time.Millisecond || (known && downlinkKbps <= 70):
		return Class2G
	case rtt >= 270*time.Millisecond || (known && downlinkKbps <= 700):
		return Class3G
	}
	return Class4G
}
