package rtc

import (
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Duet/internal/core"
)

// LinkQuality reads the selected candidate pair from the stats report.
func (c *Connection) LinkQuality() (core.LinkQuality, error) {
	return linkQualityFrom(c.pc.GetStats()), nil
}

func linkQualityFrom(report webrtc.StatsReport) core.LinkQuality {
	var best *webrtc.ICECandidatePairStats
	for _, s := range report {
		pair, ok := s.(webrtc.ICECandidatePairStats)
		if !ok || pair.State != webrtc.StatsICECandidatePairStateSucceeded {
			continue
		}
		if best == nil || pair.Nominated {
			p := pair
			best = &p
		}
	}
	if best == nil {
		return core.LinkQuality{}
	}
	rtt := time.Duration(best.CurrentRoundTripTime * float64(time.Second))
	down := best.AvailableIncomingBitrate / 1000
	return core.LinkQuality{
		DownlinkKbps: down,
		RTT:          rtt,
		Class:        core.ClassifyLink(rtt, down),
	}
}
