// Package ticks rounds prices and quantities to venue tick granularity.
// All rounding runs on decimal arithmetic so repeated requotes never
// accumulate binary-float drift.
package ticks

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidTick = errors.New("tick must be > 0")

// Round rounds value toward zero to an integer multiple of tick.
func Round(value, tick float64) (float64, error) {
	if tick <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTick, tick)
	}
	v := decimal.NewFromFloat(value)
	t := decimal.NewFromFloat(tick)
	rounded := v.Div(t).RoundDown(0).Mul(t)
	f, _ := rounded.Float64()
	return f, nil
}

// MustRound is Round for ticks already validated at startup.
// It panics on a non-positive tick.
func MustRound(value, tick float64) float64 {
	f, err := Round(value, tick)
	if err != nil {
		panic(err)
	}
	return f
}
