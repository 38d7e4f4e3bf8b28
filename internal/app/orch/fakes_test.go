package orch

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Duet/internal/core"
)

type fakeSignal struct {
	mu     sync.Mutex
	open   bool
	sent   []core.Message
	events chan core.SignalEvent
}

func newFakeSignal() *fakeSignal {
	return &fakeSignal{events: make(chan core.SignalEvent, 64)}
}

func (s *fakeSignal) Send(m core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return errors.New("not connected")
	}
	s.sent = append(s.sent, m)
	return nil
}

func (s *fakeSignal) Events() <-chan core.SignalEvent { return s.events }

func (s *fakeSignal) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *fakeSignal) connect() {
	s.mu.Lock()
	s.open = true
	s.mu.Unlock()
	s.events <- core.SignalEvent{Kind: core.SignalConnected}
}

func (s *fakeSignal) drop() {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
	s.events <- core.SignalEvent{Kind: core.SignalClosed}
}

func (s *fakeSignal) deliver(m core.Message) {
	s.events <- core.SignalEvent{Kind: core.SignalInbound, Message: m}
}

func (s *fakeSignal) sentOf(t core.MessageType) []core.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Message
	for _, m := range s.sent {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

type fakeTransport struct {
	mu              sync.Mutex
	handlers        core.TransportHandlers
	offers          []bool
	answers         int
	remote          []webrtc.SessionDescription
	applied         []webrtc.ICECandidateInit
	enabled         bool
	bitrates        []int
	closed          bool
	quality         core.LinkQuality
	failRemote      bool
	failCandidate   string
	failLocalAudio  bool
	localAudioAdded bool
}

func (t *fakeTransport) AddLocalAudio(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failLocalAudio {
		return errors.New("no microphone")
	}
	t.localAudioAdded = true
	t.enabled = true
	return nil
}

func (t *fakeTransport) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offers = append(t.offers, iceRestart)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (t *fakeTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (t *fakeTransport) SetRemoteDescription(d webrtc.SessionDescription) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failRemote {
		return errors.New("malformed sdp")
	}
	t.remote = append(t.remote, d)
	return nil
}

func (t *fakeTransport) AddICECandidate(c webrtc.ICECandidateInit) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c.Candidate == t.failCandidate {
		return errors.New("bad candidate")
	}
	t.applied = append(t.applied, c)
	return nil
}

func (t *fakeTransport) SetAudioEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *fakeTransport) SetAudioMaxBitrate(bps int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bitrates = append(t.bitrates, bps)
	return nil
}

func (t *fakeTransport) LinkQuality() (core.LinkQuality, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quality, nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) appliedCandidates() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.applied))
	for _, c := range t.applied {
		out = append(out, c.Candidate)
	}
	return out
}

func (t *fakeTransport) offerFlags() []bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]bool(nil), t.offers...)
}

func (t *fakeTransport) audioEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTransport) appliedBitrates() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.bitrates...)
}

type fakeFactory struct {
	mu         sync.Mutex
	transports []*fakeTransport
	// configure runs on every new transport before it is handed out.
	configure func(*fakeTransport)
	err       error
}

func (f *fakeFactory) NewTransport(h core.TransportHandlers) (core.PeerTransport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t := &fakeTransport{handlers: h}
	if f.configure != nil {
		f.configure(t)
	}
	f.transports = append(f.transports, t)
	return t, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transports)
}

func (f *fakeFactory) last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transports) == 0 {
		return nil
	}
	return f.transports[len(f.transports)-1]
}

type fakeOutput struct {
	mu       sync.Mutex
	attached int
	detached int
	speaker  bool
}

func (o *fakeOutput) Attach(*webrtc.TrackRemote) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attached++
	return nil
}

func (o *fakeOutput) Detach() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.detached++
}

func (o *fakeOutput) Route(speaker bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.speaker = speaker
	return nil
}

type fakeWakeLock struct {
	mu       sync.Mutex
	held     bool
	acquires int
}

func (w *fakeWakeLock) Acquire() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.held = true
	w.acquires++
	return nil
}

func (w *fakeWakeLock) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.held = false
	return nil
}

func (w *fakeWakeLock) isHeld() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.held
}
