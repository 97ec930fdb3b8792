package digitaltwins

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

func newBreaker(name string, cfg Config) *gobreaker.CircuitBreaker {
	fails := cfg.BreakerFailures
	if fails < 1 {
		fails = 5
	}
	openFor := cfg.BreakerOpenFor
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	st := gobreaker.Settings{
		Name:     name,
		Interval: cfg.BreakerInterval,
		Timeout:  openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(fails)
		},
		IsSuccessful: countsAsSuccess,
	}
	if cfg.OnStateChange != nil {
		st.OnStateChange = func(_ string, from, to gobreaker.State) {
			cfg.OnStateChange(from, to)
		}
	}
	return gobreaker.NewCircuitBreaker(st)
}

// countsAsSuccess keeps client-side rejections (unknown twin, bad patch)
// from opening the breaker: only an unhealthy service should trip it.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, ErrTwinNotFound) || errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code < 500 && se.Code != http.StatusTooManyRequests && se.Code != http.StatusUnauthorized
	}
	return false
}
