package rtc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/ice/v4"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

var (
	ErrNoAudioSection = errors.New("session description has no audio section")
	ErrBadCandidate   = errors.New("malformed ice candidate")
)

// ValidateDescription parses the SDP and requires at least one audio m-line.
func ValidateDescription(desc webrtc.SessionDescription) error {
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return fmt.Errorf("parse %s: %w", desc.Type, err)
	}
	for _, md := range parsed.MediaDescriptions {
		if md.MediaName.Media == "audio" {
			return nil
		}
	}
	return ErrNoAudioSection
}

// DescribeCandidate parses a candidate attribute and renders it for logs.
func DescribeCandidate(attr string) (string, error) {
	c, err := ice.UnmarshalCandidate(strings.TrimPrefix(attr, "candidate:"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadCandidate, err)
	}
	return fmt.Sprintf("%s %s %s:%d", c.Type(), c.NetworkType(), c.Address(), c.Port()), nil
}
