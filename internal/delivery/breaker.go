package delivery

import (
	"sync"
	"time"
)

// Breaker is a simple circuit breaker for the persistence store.
// When failures reach Threshold within Window, the breaker opens for OpenFor
// and Create calls fail fast instead of piling onto a dead store.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	openFor   time.Duration

	failCount int
	firstFail time.Time
	openUntil time.Time
}

type BreakerOptions struct {
	Threshold int
	Window    time.Duration
	OpenFor   time.Duration
}

func NewBreaker(opt BreakerOptions) *Breaker {
	if opt.Threshold <= 0 {
		opt.Threshold = 5
	}
	if opt.Window <= 0 {
		opt.Window = 10 * time.Second
	}
	if opt.OpenFor <= 0 {
		opt.OpenFor = 5 * time.Second
	}
	return &Breaker{
		threshold: opt.Threshold,
		window:    opt.Window,
		openFor:   opt.OpenFor,
	}
}

func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.openUntil.IsZero() && time.Now().Before(b.openUntil) {
		return false
	}
	return true
}

func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failCount = 0
	b.firstFail = time.Time{}
	b.openUntil = time.Time{}
}

func (b *Breaker) Failure() (opened bool) {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failCount == 0 || now.Sub(b.firstFail) > b.window {
		b.failCount = 1
		b.firstFail = now
		b.openUntil = time.Time{}
		return false
	}

	b.failCount++
	if b.failCount >= b.threshold {
		b.openUntil = now.Add(b.openFor)
		return true
	}
	return false
}
