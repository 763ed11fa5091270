package session

import (
	"context"
	"time"
)

type TimerState string

const (
	TimerIdle    TimerState = "idle"
	TimerRunning TimerState = "running"
	TimerExpired TimerState = "expired"
	TimerStopped TimerState = "stopped"
)

// Timer is the exam countdown: idle -> running -> expired | stopped.
type Timer struct {
	State     TimerState `json:"state"`
	Remaining int        `json:"remaining_seconds"`
	Total     int        `json:"total_seconds"`
}

// Start moves an idle timer to running with durationMin*60 seconds left.
// It reports false if the timer had already been started.
func (t *Timer) Start(durationMin int) bool {
	if t.State != "" && t.State != TimerIdle {
		return false
	}
	t.Total = durationMin * 60
	t.Remaining = t.Total
	t.State = TimerRunning
	return true
}

// Tick decrements a running timer by one second. It returns true only on the
// tick that moves the timer to expired.
func (t *Timer) Tick() bool {
	if t.State != TimerRunning {
		return false
	}
	if t.Remaining > 0 {
		t.Remaining--
	}
	if t.Remaining == 0 {
		t.State = TimerExpired
		return true
	}
	return false
}

// Stop halts a running timer. Other states are left alone.
func (t *Timer) Stop() {
	if t.State == TimerRunning {
		t.State = TimerStopped
	}
}

// Elapsed is the number of seconds counted down so far.
func (t *Timer) Elapsed() int {
	return t.Total - t.Remaining
}

// Ticker abstracts time.Ticker so tests can drive ticks by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.Ticker.C }

func NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

// Tickable is anything advanced by RunTimer.
type Tickable interface {
	Tick() (expired bool)
}

// RunTimer feeds ticks to t until it expires or ctx is done. onExpire runs at
// most once, on the goroutine that called RunTimer. The ticker is always
// stopped before RunTimer returns.
func RunTimer(ctx context.Context, t Tickable, ticker Ticker, onExpire func()) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if t.Tick() {
				if onExpire != nil {
					onExpire()
				}
				return
			}
		}
	}
}
