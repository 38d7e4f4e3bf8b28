package core

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/pion/webrtc/v4"
)

type MessageType string

const (
	TypeLogin          MessageType = "login"
	TypePartnerOnline  MessageType = "partner_online"
	TypePartnerOffline MessageType = "partner_offline"
	TypeOffer          MessageType = "offer"
	TypeAnswer         MessageType = "answer"
	TypeCandidate      MessageType = "candidate"
	TypeReject         MessageType = "reject"
	TypePing           MessageType = "ping"
	TypePong           MessageType = "pong"
	TypeError          MessageType = "error"
)

var (
	ErrBadMessage     = errors.New("malformed signaling message")
	ErrMissingPayload = errors.New("signaling message missing payload")
)

// Message is the tagged union exchanged with the relay. Only the fields of
// the given Type are meaningful.
type Message struct {
	Type      MessageType                `json:"type"`
	Username  string                     `json:"username,omitempty"`
	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	To        string                     `json:"to,omitempty"`
	From      string                     `json:"from,omitempty"`
	Error     string                     `json:"error,omitempty"`
}

// Known reports whether t is part of the protocol.
func (t MessageType) Known() bool {
	switch t {
	case TypeLogin, TypePartnerOnline, TypePartnerOffline, TypeOffer, TypeAnswer,
		TypeCandidate, TypeReject, TypePing, TypePong, TypeError:
		return true
	}
	return false
}

// Validate checks that the payload required by the type is present.
// Unknown types are valid; receivers log and ignore them.
func (m Message) Validate() error {
	switch m.Type {
	case "":
		return fmt.Errorf("%w: empty type", ErrBadMessage)
	case TypeLogin:
		if m.Username == "" {
			return fmt.Errorf("%w: login username", ErrMissingPayload)
		}
	case TypeOffer:
		if m.Offer == nil || m.Offer.SDP == "" {
			return fmt.Errorf("%w: offer", ErrMissingPayload)
		}
	case TypeAnswer:
		if m.Answer == nil || m.Answer.SDP == "" {
			return fmt.Errorf("%w: answer", ErrMissingPayload)
		}
	case TypeCandidate:
		if m.Candidate == nil {
			return fmt.Errorf("%w: candidate", ErrMissingPayload)
		}
	}
	return nil
}

func EncodeMessage(m Message) (Frame, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	b, err := sonic.ConfigStd.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", m.Type, err)
	}
	return b, nil
}

func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := sonic.ConfigStd.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
