package session

import "sync/atomic"

const (
	// PrepareUnits is the preparation countdown length for every question.
	PrepareUnits = 30
	// RecordUnits is the answer countdown length for every question.
	RecordUnits = 60
)

// TimerEngine holds the preparation and recording countdowns of the current
// question. At most one of them is active.
type TimerEngine struct {
	prepare *Countdown
	record  *Countdown
	// restarted is invoked whenever a countdown is armed, so the driver can
	// re-phase its ticker.
	restarted func()
	// starts counts countdown starts. A tick read from the clock before a
	// start belongs to the previous countdown.
	starts atomic.Uint64
}

// NewTimerEngine wires expiry callbacks for the two countdowns.
func NewTimerEngine(onPrepareExpired, onRecordExpired func()) *TimerEngine {
	return &TimerEngine{
		prepare: NewCountdown(onPrepareExpired),
		record:  NewCountdown(onRecordExpired),
	}
}

// StartPreparing arms the preparation countdown at PrepareUnits.
func (e *TimerEngine) StartPreparing() {
	e.record.Cancel()
	e.prepare.Start(PrepareUnits)
	e.starts.Add(1)
	e.notifyRestart()
}

// StartRecording arms the recording countdown at RecordUnits.
func (e *TimerEngine) StartRecording() {
	e.prepare.Cancel()
	e.record.Start(RecordUnits)
	e.starts.Add(1)
	e.notifyRestart()
}

// Skip cancels an active preparation countdown and reports whether one was
// running.
func (e *TimerEngine) Skip() bool {
	if !e.prepare.Active() {
		return false
	}
	e.prepare.Cancel()
	return true
}

// Stop cancels an active recording countdown and reports whether one was
// running.
func (e *TimerEngine) Stop() bool {
	if !e.record.Active() {
		return false
	}
	e.record.Cancel()
	return true
}

// Clear cancels both countdowns.
func (e *TimerEngine) Clear() {
	e.prepare.Cancel()
	e.record.Cancel()
}

// Tick advances whichever countdown is active.
func (e *TimerEngine) Tick() {
	switch {
	case e.prepare.Active():
		e.prepare.Tick()
	case e.record.Active():
		e.record.Tick()
	}
}

// Starts returns how many countdowns have been started. Safe to read
// without the controller lock.
func (e *TimerEngine) Starts() uint64 {
	return e.starts.Load()
}

// Active reports whether any countdown is running.
func (e *TimerEngine) Active() bool {
	return e.prepare.Active() || e.record.Active()
}

// PrepareRemaining is the preparation time left, zero when inactive.
func (e *TimerEngine) PrepareRemaining() int {
	if !e.prepare.Active() {
		return 0
	}
	return e.prepare.Remaining()
}

// RecordRemaining is the answer time left, zero when inactive.
func (e *TimerEngine) RecordRemaining() int {
	if !e.record.Active() {
		return 0
	}
	return e.record.Remaining()
}

func (e *TimerEngine) notifyRestart() {
	if e.restarted != nil {
		e.restarted()
	}
}
