package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff returns how long to wait before the given retry, or false once no
// retry is left.
type Backoff interface {
	Delay(retry uint) (time.Duration, bool)
}

type none struct{}

// None never retries.
func None() Backoff {
	return none{}
}

func (none) Delay(uint) (time.Duration, bool) {
	return 0, false
}

// Jitter maps the computed ceiling to the delay actually slept.
type Jitter func(ceiling int64) int64

// FullJitter sleeps a uniformly random duration below the ceiling.
func FullJitter(ceiling int64) int64 {
	if ceiling <= 0 {
		return 0
	}
	return rand.Int64N(ceiling)
}

type exponential struct {
	base       time.Duration
	ceiling    time.Duration
	maxRetries uint
	jitter     Jitter
}

// Exponential doubles the delay from base on every retry, capped at ceiling.
// A nil jitter means FullJitter.
func Exponential(base, ceiling time.Duration, maxRetries uint, jitter Jitter) Backoff {
	if jitter == nil {
		jitter = FullJitter
	}
	return &exponential{
		base:       base,
		ceiling:    ceiling,
		maxRetries: maxRetries,
		jitter:     jitter,
	}
}

func (e *exponential) Delay(retry uint) (time.Duration, bool) {
	if retry >= e.maxRetries {
		return 0, false
	}
	return time.Duration(e.jitter(e.raw(retry))), true
}

func (e *exponential) raw(retry uint) int64 {
	ceiling := int64(e.ceiling)
	base := int64(e.base)
	if retry >= 63 || (base > 0 && int64(1)<<retry > math.MaxInt64/base) {
		return ceiling
	}
	return min(base<<retry, ceiling)
}
