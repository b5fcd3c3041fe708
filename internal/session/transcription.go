package session

import (
	"bytes"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// MinAudioBytes is the smallest audio payload worth sending to the
	// speech-to-text vendor.
	MinAudioBytes      = 1024
	// DefaultSettleDelay gives the client's recorder time to flush its last
	// chunk after a stop.
	DefaultSettleDelay = 500 * time.Millisecond
)

const defaultTranscribeTimeout = 90 * time.Second

// Transcriber converts one audio payload to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

// TranscriberFunc adapts a function to Transcriber.
type TranscriberFunc func(ctx context.Context, audio []byte, language string) (string, error)

func (f TranscriberFunc) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	return f(ctx, audio, language)
}

// TranscriptionResult is delivered once per submission unless superseded.
type TranscriptionResult struct {
	Question int
	Gen      uint64
	Text     string
	Err      error
}

// TranscriptionBridge runs transcriptions in the background, at most one
// current submission per question.
type TranscriptionBridge struct {
	transcriber Transcriber
	settle      time.Duration
	timeout     time.Duration
	logger      *zap.Logger

	mu   sync.Mutex
	gens map[int]uint64
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func NewTranscriptionBridge(t Transcriber, settle time.Duration, logger *zap.Logger) *TranscriptionBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settle < 0 {
		settle = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TranscriptionBridge{
		transcriber: t,
		settle:      settle,
		timeout:     defaultTranscribeTimeout,
		logger:      logger,
		gens:        make(map[int]uint64),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Submit schedules a transcription of question q. collect is called after
// the settle delay to gather the audio; deliver receives the outcome unless
// a later Submit or Invalidate for q superseded it. It returns the
// generation assigned to this submission.
func (b *TranscriptionBridge) Submit(q int, language string, collect func() [][]byte, deliver func(TranscriptionResult)) uint64 {
	b.mu.Lock()
	b.gens[q]++
	gen := b.gens[q]
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		res := b.run(q, gen, language, collect)
		if !b.IsCurrent(q, gen) {
			b.logger.Debug("transcription superseded", zap.Int("question", q))
			return
		}
		deliver(res)
	}()
	return gen
}

func (b *TranscriptionBridge) run(q int, gen uint64, language string, collect func() [][]byte) TranscriptionResult {
	res := TranscriptionResult{Question: q, Gen: gen}
	if b.settle > 0 {
		t := time.NewTimer(b.settle)
		select {
		case <-t.C:
		case <-b.ctx.Done():
			t.Stop()
			res.Err = &Error{Kind: TranscriptionFailed, Op: "transcribe", Question: q, Err: ErrClosed}
			return res
		}
	}
	audio := bytes.Join(collect(), nil)
	if len(audio) < MinAudioBytes {
		b.logger.Warn("audio too short, skipping transcription", zap.Int("question", q), zap.Int("bytes", len(audio)))
		res.Err = &Error{Kind: CaptureTooShort, Op: "transcribe", Question: q}
		return res
	}
	if b.transcriber == nil {
		res.Err = &Error{Kind: TranscriptionFailed, Op: "transcribe", Question: q, Err: ErrNoTranscriber}
		return res
	}
	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()
	text, err := b.transcriber.Transcribe(ctx, audio, language)
	if err != nil {
		b.logger.Warn("transcription failed", zap.Int("question", q), zap.String("language", language), zap.Error(err))
		res.Err = &Error{Kind: TranscriptionFailed, Op: "transcribe", Question: q, Err: err}
		return res
	}
	b.logger.Info("transcription completed", zap.Int("question", q), zap.Int("bytes", len(audio)))
	res.Text = text
	return res
}

// Invalidate drops any in-flight result for q.
func (b *TranscriptionBridge) Invalidate(q int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gens[q]++
}

// IsCurrent reports whether gen is the latest submission for q.
func (b *TranscriptionBridge) IsCurrent(q int, gen uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gens[q] == gen
}

// Wait blocks until every in-flight transcription has finished or ctx ends.
func (b *TranscriptionBridge) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close aborts in-flight transcriptions.
func (b *TranscriptionBridge) Close() {
	b.cancel()
}
