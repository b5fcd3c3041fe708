package session

// Countdown is a ticking clock with a completion callback. It does not own a
// timer; the owner feeds it one Tick per elapsed unit.
type Countdown struct {
	remaining int
	active    bool
	onDone    func()
}

// NewCountdown returns an inactive countdown that calls onDone when a started
// run reaches zero.
func NewCountdown(onDone func()) *Countdown {
	return &Countdown{onDone: onDone}
}

// Start (re)arms the countdown at units. A previous run is discarded without
// firing.
func (c *Countdown) Start(units int) {
	if units < 0 {
		units = 0
	}
	c.remaining = units
	c.active = true
	if units == 0 {
		c.fire()
	}
}

// Tick consumes one unit and reports whether the run expired on this tick.
// Ticks on an inactive countdown are ignored.
func (c *Countdown) Tick() bool {
	if !c.active {
		return false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining == 0 {
		c.fire()
		return true
	}
	return false
}

// Cancel stops the run without firing. Safe to call any number of times.
func (c *Countdown) Cancel() {
	c.active = false
}

func (c *Countdown) Remaining() int { return c.remaining }

func (c *Countdown) Active() bool { return c.active }

func (c *Countdown) fire() {
	c.active = false
	if c.onDone != nil {
		c.onDone()
	}
}
