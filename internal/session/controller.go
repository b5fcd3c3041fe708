// Package session drives one candidate through a timed interview: the
// preparation and answer countdowns, media capture per question,
// background transcription and the final submit.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultTickUnit     = time.Second
	DefaultDrainTimeout = 15 * time.Second
)

var (
	ErrSubmitInProgress = errors.New("submit already in progress")
	ErrBeginInProgress  = errors.New("session is already starting")
)

// Bundle is the notes payload written at submit.
type Bundle struct {
	Questions   []string       `json:"questions"`
	Transcripts map[int]string `json:"transcripts"`
	Language    string         `json:"language"`
	CompletedAt time.Time      `json:"completed_at"`
}

// Persister stores the final bundle and marks the interview completed.
type Persister interface {
	Complete(ctx context.Context, interviewID uuid.UUID, b Bundle) error
}

// PersistFunc adapts a function to Persister.
type PersistFunc func(ctx context.Context, interviewID uuid.UUID, b Bundle) error

func (f PersistFunc) Complete(ctx context.Context, interviewID uuid.UUID, b Bundle) error {
	return f(ctx, interviewID, b)
}

// Archiver receives each question's combined media after a successful submit.
type Archiver interface {
	ArchiveAnswer(ctx context.Context, interviewID uuid.UUID, question int, chunks [][]byte) error
}

// Observer is told about every transition, time update and advisory, in
// order. Calls are made without the controller lock held.
type Observer interface {
	StateChanged(Snapshot)
	Updated(Snapshot)
	Advised(Advisory)
}

type noopObserver struct{}

func (noopObserver) StateChanged(Snapshot) {}
func (noopObserver) Updated(Snapshot)      {}
func (noopObserver) Advised(Advisory)      {}

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	InterviewID      uuid.UUID      `json:"interview_id"`
	State            State          `json:"state"`
	Cause            Event          `json:"cause,omitempty"`
	QuestionCount    int            `json:"question_count"`
	Question         string         `json:"question,omitempty"`
	PrepareRemaining int            `json:"prepare_remaining"`
	RecordRemaining  int            `json:"record_remaining"`
	Capturing        bool           `json:"capturing"`
	TextOnly         bool           `json:"text_only"`
	Granted          Tracks         `json:"granted"`
	Transcribing     []int          `json:"transcribing,omitempty"`
	Transcripts      map[int]string `json:"transcripts"`
	Language         string         `json:"language"`
}

// Config describes one interview run.
type Config struct {
	InterviewID  uuid.UUID
	Questions    []string
	Language     string
	TickUnit     time.Duration
	SettleDelay  time.Duration
	DrainTimeout time.Duration
}

// Deps are the collaborators of a controller. Any of them may be nil.
type Deps struct {
	Devices     DeviceProvider
	Transcriber Transcriber
	Persister   Persister
	Archiver    Archiver
	Observer    Observer
	Logger      *zap.Logger
	Now         func() time.Time
}

type noticeKind int

const (
	noticeState noticeKind = iota + 1
	noticeUpdate
	noticeAdvisory
)

type notice struct {
	kind noticeKind
	snap Snapshot
	adv  Advisory
}

// Controller is the interview state machine. All methods are safe for
// concurrent use; state changes are serialized by one mutex.
type Controller struct {
	cfg       Config
	logger    *zap.Logger
	observer  Observer
	persister Persister
	archiver  Archiver
	now       func() time.Time

	acquirer *MediaAcquirer
	capture  *CaptureRecorder
	bridge   *TranscriptionBridge
	timers   *TimerEngine

	mu          sync.Mutex
	emitMu      sync.Mutex
	state       State
	media       Acquisition
	transcripts map[int]string
	pending     map[int]bool
	advisories  []Advisory
	bundle      *Bundle
	beginning   bool
	submitting  bool
	closed      bool
	outbox      []notice

	rephase chan struct{}
	done    chan struct{}
}

// NewController builds an idle controller. Questions must already be
// normalized; an empty list is replaced by the localized fallback question.
func NewController(cfg Config, deps Deps) *Controller {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Observer == nil {
		deps.Observer = noopObserver{}
	}
	if deps.Persister == nil {
		deps.Persister = PersistFunc(func(context.Context, uuid.UUID, Bundle) error { return nil })
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if len(cfg.Questions) == 0 {
		cfg.Questions = []string{FallbackQuestion(cfg.Language)}
	}
	if cfg.TickUnit <= 0 {
		cfg.TickUnit = DefaultTickUnit
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}

	logger := deps.Logger.With(zap.String("interview_id", cfg.InterviewID.String()))
	c := &Controller{
		cfg:         cfg,
		logger:      logger,
		observer:    deps.Observer,
		persister:   deps.Persister,
		archiver:    deps.Archiver,
		now:         deps.Now,
		acquirer:    NewMediaAcquirer(deps.Devices, logger),
		capture:     NewCaptureRecorder(),
		bridge:      NewTranscriptionBridge(deps.Transcriber, cfg.SettleDelay, logger),
		state:       State{Phase: PhaseIdle},
		transcripts: make(map[int]string),
		pending:     make(map[int]bool),
		rephase:     make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	c.timers = NewTimerEngine(c.onPrepareExpired, c.onRecordExpired)
	c.timers.restarted = c.signalRephase
	return c
}

// Begin acquires media on a best-effort basis and enters Preparing(0).
func (c *Controller) Begin(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.beginning {
		c.mu.Unlock()
		return ErrBeginInProgress
	}
	if _, err := Transition(c.state, EventBegin, len(c.cfg.Questions)); err != nil {
		c.mu.Unlock()
		return err
	}
	c.beginning = true
	c.mu.Unlock()

	acq := c.acquirer.Acquire(ctx)

	c.mu.Lock()
	c.beginning = false
	if c.closed {
		c.mu.Unlock()
		if acq.Stream != nil {
			acq.Stream.Stop()
		}
		return ErrClosed
	}
	c.media = acq
	c.capture.Attach(acq.Stream)
	for _, adv := range acq.Advisories {
		c.adviseLocked(adv)
	}
	err := c.enterLocked(EventBegin)
	if err == nil {
		c.timers.StartPreparing()
		c.logger.Info("interview started",
			zap.Int("questions", len(c.cfg.Questions)),
			zap.String("language", c.cfg.Language),
			zap.Bool("text_only", acq.TextOnly()))
		c.noteStateLocked(EventBegin)
	}
	c.unlockAndFlush()
	return err
}

// Skip ends preparation early and starts recording.
func (c *Controller) Skip() error {
	c.mu.Lock()
	defer c.unlockAndFlush()
	if c.closed {
		return ErrClosed
	}
	if c.state.Phase != PhasePreparing {
		return invalidTransition(c.state, EventSkip)
	}
	c.timers.Skip()
	return c.startRecordingLocked(EventSkip)
}

// Stop ends the answer early.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.unlockAndFlush()
	if c.closed {
		return ErrClosed
	}
	if c.state.Phase != PhaseRecording {
		return invalidTransition(c.state, EventStop)
	}
	c.timers.Stop()
	return c.stopRecordingLocked(EventStop)
}

// Rerecord records the reviewed question again, discarding its capture.
func (c *Controller) Rerecord() error {
	c.mu.Lock()
	defer c.unlockAndFlush()
	if c.closed {
		return ErrClosed
	}
	if c.state.Phase != PhaseReviewing {
		return invalidTransition(c.state, EventRerecord)
	}
	return c.startRecordingLocked(EventRerecord)
}

// Next moves to the following question, or to Completed after the last one.
func (c *Controller) Next() error {
	c.mu.Lock()
	defer c.unlockAndFlush()
	if c.closed {
		return ErrClosed
	}
	if err := c.enterLocked(EventNext); err != nil {
		return err
	}
	c.timers.Clear()
	if c.state.Phase == PhasePreparing {
		c.capture.Release(c.state.Question)
		c.timers.StartPreparing()
	} else {
		c.logger.Info("interview completed", zap.Int("transcripts", len(c.transcripts)))
	}
	c.noteStateLocked(EventNext)
	return nil
}

// Submit persists the bundle and releases media. A failed write leaves the
// session in Completed so the candidate can retry; after success, further
// calls return the stored bundle.
func (c *Controller) Submit(ctx context.Context) (Bundle, error) {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return Bundle{}, ErrClosed
	case c.state.Phase == PhaseSubmitted && c.bundle != nil:
		b := copyBundle(*c.bundle)
		c.mu.Unlock()
		return b, nil
	case c.state.Phase != PhaseCompleted:
		err := invalidTransition(c.state, EventSubmit)
		c.mu.Unlock()
		return Bundle{}, err
	case c.submitting:
		c.mu.Unlock()
		return Bundle{}, ErrSubmitInProgress
	}
	c.submitting = true
	c.mu.Unlock()

	drainCtx, cancel := context.WithTimeout(ctx, c.cfg.DrainTimeout)
	if err := c.bridge.Wait(drainCtx); err != nil {
		c.logger.Warn("submitting with transcriptions still in flight", zap.Error(err))
	}
	cancel()

	c.mu.Lock()
	bundle := Bundle{
		Questions:   append([]string(nil), c.cfg.Questions...),
		Transcripts: copyTranscripts(c.transcripts),
		Language:    c.cfg.Language,
		CompletedAt: c.now().UTC(),
	}
	c.mu.Unlock()

	err := c.persister.Complete(ctx, c.cfg.InterviewID, bundle)

	c.mu.Lock()
	c.submitting = false
	if c.closed {
		c.mu.Unlock()
		if err != nil {
			return Bundle{}, &Error{Kind: PersistenceWriteFailed, Op: "submit", Err: err}
		}
		return bundle, nil
	}
	if err != nil {
		c.logger.Error("persist interview failed", zap.Error(err))
		c.adviseLocked(NewAdvisory(PersistenceWriteFailed))
		c.unlockAndFlush()
		return Bundle{}, &Error{Kind: PersistenceWriteFailed, Op: "submit", Err: err}
	}
	if tErr := c.enterLocked(EventSubmit); tErr != nil {
		c.unlockAndFlush()
		return Bundle{}, tErr
	}
	c.bundle = &bundle
	answers := c.collectAnswersLocked()
	c.releaseLocked()
	c.noteStateLocked(EventSubmit)
	c.logger.Info("interview submitted", zap.Int("transcripts", len(bundle.Transcripts)))
	c.unlockAndFlush()

	c.archive(ctx, answers)
	return copyBundle(bundle), nil
}

// Tick advances the active countdown by one unit.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.unlockAndFlush()
	c.tickLocked()
}

// tickFor applies a clock tick read while countdown number starts was the
// latest one. Ticks that predate a newer start are dropped.
func (c *Controller) tickFor(starts uint64) {
	c.mu.Lock()
	defer c.unlockAndFlush()
	if c.timers.Starts() != starts {
		return
	}
	c.tickLocked()
}

func (c *Controller) tickLocked() {
	if c.closed || !c.timers.Active() {
		return
	}
	before := c.state
	c.timers.Tick()
	if c.state == before && c.timers.Active() {
		c.outbox = append(c.outbox, notice{kind: noticeUpdate, snap: c.snapshotLocked("")})
	}
}

// WriteChunk stores a media chunk for question q.
func (c *Controller) WriteChunk(q int, stream ChunkStream, data []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return c.capture.Write(q, stream, data)
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked("")
}

// Advisories returns every advisory raised so far.
func (c *Controller) Advisories() []Advisory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Advisory(nil), c.advisories...)
}

// Close tears the session down: countdowns cleared, capture stopped, media
// released, background transcriptions aborted. Safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.releaseLocked()
	close(c.done)
	c.mu.Unlock()
	c.bridge.Close()
	c.logger.Debug("session closed")
}

// Done is closed by Close.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Run feeds wall-clock ticks to the controller until ctx ends or the
// controller is closed. The ticker is re-phased whenever a countdown starts,
// and a tick received before that start is never applied to the new one.
func (c *Controller) Run(ctx context.Context, clock Clock) {
	if clock == nil {
		clock = SystemClock{}
	}
	ticker := clock.NewTicker(c.cfg.TickUnit)
	defer ticker.Stop()
	for {
		starts := c.timers.Starts()
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-c.rephase:
			ticker.Reset(c.cfg.TickUnit)
		case <-ticker.C():
			c.tickFor(starts)
		}
	}
}

func (c *Controller) onPrepareExpired() {
	if err := c.startRecordingLocked(EventPrepareExpired); err != nil {
		c.logger.Warn("preparation expiry ignored", zap.Error(err))
	}
}

func (c *Controller) onRecordExpired() {
	if err := c.stopRecordingLocked(EventRecordExpired); err != nil {
		c.logger.Warn("recording expiry ignored", zap.Error(err))
	}
}

func (c *Controller) startRecordingLocked(ev Event) error {
	if err := c.enterLocked(ev); err != nil {
		return err
	}
	q := c.state.Question
	c.bridge.Invalidate(q)
	delete(c.pending, q)
	c.capture.StartCapture(q)
	c.timers.StartRecording()
	c.noteStateLocked(ev)
	return nil
}

func (c *Controller) stopRecordingLocked(ev Event) error {
	if err := c.enterLocked(ev); err != nil {
		return err
	}
	q := c.state.Question
	if c.capture.StopCapture() {
		c.pending[q] = true
		c.bridge.Submit(q, c.cfg.Language,
			func() [][]byte { return c.capture.Audio(q) },
			c.onTranscript)
	}
	c.noteStateLocked(ev)
	return nil
}

func (c *Controller) onTranscript(res TranscriptionResult) {
	c.mu.Lock()
	defer c.unlockAndFlush()
	if c.closed || c.state.Phase == PhaseSubmitted || !c.bridge.IsCurrent(res.Question, res.Gen) {
		return
	}
	delete(c.pending, res.Question)
	if res.Err != nil {
		if KindOf(res.Err) == TranscriptionFailed {
			c.adviseLocked(newQuestionAdvisory(TranscriptionFailed, res.Question))
		}
		c.outbox = append(c.outbox, notice{kind: noticeUpdate, snap: c.snapshotLocked("")})
		return
	}
	c.transcripts[res.Question] = res.Text
	c.outbox = append(c.outbox, notice{kind: noticeUpdate, snap: c.snapshotLocked("")})
}

func (c *Controller) enterLocked(ev Event) error {
	next, err := Transition(c.state, ev, len(c.cfg.Questions))
	if err != nil {
		return err
	}
	c.logger.Debug("transition", zap.String("from", c.state.String()), zap.String("event", string(ev)), zap.String("to", next.String()))
	c.state = next
	return nil
}

func (c *Controller) releaseLocked() {
	c.timers.Clear()
	c.capture.StopCapture()
	c.capture.Reset()
	if c.media.Stream != nil {
		c.media.Stream.Stop()
		c.media.Stream = nil
	}
}

func (c *Controller) collectAnswersLocked() map[int][][]byte {
	answers := make(map[int][][]byte)
	if c.archiver == nil {
		return answers
	}
	for _, q := range c.capture.Questions() {
		answers[q] = c.capture.Combined(q)
	}
	return answers
}

func (c *Controller) archive(ctx context.Context, answers map[int][][]byte) {
	qs := make([]int, 0, len(answers))
	for q := range answers {
		qs = append(qs, q)
	}
	sort.Ints(qs)
	for _, q := range qs {
		if err := c.archiver.ArchiveAnswer(ctx, c.cfg.InterviewID, q, answers[q]); err != nil {
			c.logger.Warn("archive answer failed", zap.Int("question", q), zap.Error(err))
		}
	}
}

func (c *Controller) adviseLocked(a Advisory) {
	c.advisories = append(c.advisories, a)
	c.outbox = append(c.outbox, notice{kind: noticeAdvisory, adv: a})
}

func (c *Controller) noteStateLocked(cause Event) {
	c.outbox = append(c.outbox, notice{kind: noticeState, snap: c.snapshotLocked(cause)})
}

func (c *Controller) snapshotLocked(cause Event) Snapshot {
	s := Snapshot{
		InterviewID:      c.cfg.InterviewID,
		State:            c.state,
		Cause:            cause,
		QuestionCount:    len(c.cfg.Questions),
		PrepareRemaining: c.timers.PrepareRemaining(),
		RecordRemaining:  c.timers.RecordRemaining(),
		Capturing:        c.capture.Capturing(),
		TextOnly:         c.media.TextOnly(),
		Granted:          c.media.Granted,
		Transcripts:      copyTranscripts(c.transcripts),
		Language:         c.cfg.Language,
	}
	switch c.state.Phase {
	case PhasePreparing, PhaseRecording, PhaseReviewing:
		s.Question = c.cfg.Questions[c.state.Question]
	}
	for q := range c.pending {
		s.Transcribing = append(s.Transcribing, q)
	}
	sort.Ints(s.Transcribing)
	return s
}

// unlockAndFlush releases mu and delivers queued notices in order.
func (c *Controller) unlockAndFlush() {
	out := c.outbox
	c.outbox = nil
	c.emitMu.Lock()
	c.mu.Unlock()
	defer c.emitMu.Unlock()
	for _, n := range out {
		switch n.kind {
		case noticeState:
			c.observer.StateChanged(n.snap)
		case noticeUpdate:
			c.observer.Updated(n.snap)
		case noticeAdvisory:
			c.observer.Advised(n.adv)
		}
	}
}

func (c *Controller) signalRephase() {
	select {
	case c.rephase <- struct{}{}:
	default:
	}
}

func copyTranscripts(in map[int]string) map[int]string {
	out := make(map[int]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyBundle(b Bundle) Bundle {
	b.Questions = append([]string(nil), b.Questions...)
	b.Transcripts = copyTranscripts(b.Transcripts)
	return b
}
