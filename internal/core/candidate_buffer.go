package core

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

// ErrDrainHalted, when wrapped by an apply error, stops a Drain and leaves the
// failing candidate and everything after it buffered.
var ErrDrainHalted = errors.New("candidate drain halted")

// CandidateBuffer holds remote ICE candidates that arrived before the remote
// description was installed. FIFO; safe for concurrent use.
type CandidateBuffer struct {
	mu    sync.Mutex
	queue []webrtc.ICECandidateInit
}

func NewCandidateBuffer() *CandidateBuffer {
	return &CandidateBuffer{}
}

func (b *CandidateBuffer) Enqueue(c webrtc.ICECandidateInit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, c)
}

func (b *CandidateBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *CandidateBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = nil
}

// Drain applies buffered candidates in enqueue order. A candidate leaves the
// buffer once apply returns. A failing candidate is dropped and its error is
// collected, unless the error wraps ErrDrainHalted, in which case the drain
// stops with that candidate still at the head.
func (b *CandidateBuffer) Drain(apply func(webrtc.ICECandidateInit) error) error {
	var errs []error
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.queue = nil
			b.mu.Unlock()
			return errors.Join(errs...)
		}
		head := b.queue[0]
		b.mu.Unlock()

		err := apply(head)
		if errors.Is(err, ErrDrainHalted) {
			return errors.Join(append(errs, err)...)
		}

		b.mu.Lock()
		if len(b.queue) > 0 {
			b.queue = b.queue[1:]
		}
		b.mu.Unlock()
		if err != nil {
			errs = append(errs, err)
		}
	}
}
