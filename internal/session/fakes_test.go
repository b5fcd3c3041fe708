package session

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	tracks Tracks
	stops  atomic.Int32
}

func (s *fakeStream) Tracks() Tracks { return s.tracks }
func (s *fakeStream) Stop()          { s.stops.Add(1) }

type fakeProvider struct {
	devices  []Device
	enumErr  error
	stream   *fakeStream
	errs     []error
	requests []Constraints
	mu       sync.Mutex
}

func (p *fakeProvider) Enumerate(context.Context) ([]Device, error) {
	return p.devices, p.enumErr
}

func (p *fakeProvider) Request(_ context.Context, c Constraints) (Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, c)
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return p.stream, nil
}

func cameraAndMic() []Device {
	return []Device{
		{ID: "mic", Kind: DeviceAudioInput},
		{ID: "cam", Kind: DeviceVideoInput},
	}
}

// fakeTranscriber answers with the first byte of the audio, so tests can
// tell questions apart by filling their chunks with different bytes.
type fakeTranscriber struct {
	calls   atomic.Int32
	failOn  byte
	blockOn byte
	release chan struct{}
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, _ string) (string, error) {
	f.calls.Add(1)
	if f.blockOn != 0 && audio[0] == f.blockOn {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.failOn != 0 && audio[0] == f.failOn {
		return "", errors.New("vendor unavailable")
	}
	return "answer " + string(audio[0]), nil
}

type recordingObserver struct {
	mu         sync.Mutex
	states     []Snapshot
	updates    int
	advisories []Advisory
}

func (o *recordingObserver) StateChanged(s Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

func (o *recordingObserver) Updated(Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.updates++
}

func (o *recordingObserver) Advised(a Advisory) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.advisories = append(o.advisories, a)
}

func (o *recordingObserver) path() ([]string, []Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var states []string
	var causes []Event
	for _, s := range o.states {
		states = append(states, s.State.String())
		causes = append(causes, s.Cause)
	}
	return states, causes
}

func (o *recordingObserver) advised() []Advisory {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Advisory(nil), o.advisories...)
}

type fakePersister struct {
	mu      sync.Mutex
	calls   int
	failFor int
	bundles []Bundle
}

func (p *fakePersister) Complete(_ context.Context, _ uuid.UUID, b Bundle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failFor {
		return errors.New("database unavailable")
	}
	p.bundles = append(p.bundles, b)
	return nil
}

type fakeArchiver struct {
	mu      sync.Mutex
	answers map[int][]byte
}

func (a *fakeArchiver) ArchiveAnswer(_ context.Context, _ uuid.UUID, q int, chunks [][]byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.answers == nil {
		a.answers = make(map[int][]byte)
	}
	a.answers[q] = bytes.Join(chunks, nil)
	return nil
}

type fakeTicker struct {
	c      chan time.Time
	resets atomic.Int32
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }
func (t *fakeTicker) Reset(time.Duration) { t.resets.Add(1) }
func (t *fakeTicker) Stop()               {}

type fakeClock struct{ ticker *fakeTicker }

func (c fakeClock) NewTicker(time.Duration) Ticker { return c.ticker }

func audioOf(b byte) []byte { return bytes.Repeat([]byte{b}, 2*MinAudioBytes) }

func ticks(c *Controller, n int) {
	for i := 0; i < n; i++ {
		c.Tick()
	}
}

func waitForPhase(t *testing.T, c *Controller, phase Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Snapshot().State.Phase == phase
	}, 2*time.Second, 5*time.Millisecond)
}

func waitForTranscript(t *testing.T, c *Controller, q int, text string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Snapshot().Transcripts[q] == text
	}, 2*time.Second, 5*time.Millisecond)
}
