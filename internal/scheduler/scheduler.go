// Package scheduler drives the engine's tick loop.
//
// A tick runs the Strategy Manager, the Rebalancing Executor, and the
// persistence/event-bus writes to completion before the next tick starts;
// there is no pipelining of ticks (§5). The scheduler itself only knows
// about cadence and failure bookkeeping — it has no opinion on what a tick
// does.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nitinkhare/algoTradingAgent/internal/market"
)

// TickFunc runs one full tick (fetch indicators, evaluate strategies,
// rebalance, persist) and reports whether it succeeded.
type TickFunc func(ctx context.Context) error

// Config holds the continuous-mode cadence and fail-stop parameters.
type Config struct {
	IntervalMinutes int
	MaxErrors       int
}

const maxBackoff = 5 * time.Minute

// Scheduler invokes a TickFunc on a fixed interval, or once on demand, and
// enforces the continuous-mode fail-stop/backoff policy.
type Scheduler struct {
	calendar *market.Calendar
	config   Config
	logger   *log.Logger
}

// New creates a Scheduler.
func New(calendar *market.Calendar, config Config, logger *log.Logger) *Scheduler {
	if config.IntervalMinutes <= 0 {
		config.IntervalMinutes = 15
	}
	if config.MaxErrors <= 0 {
		config.MaxErrors = 5
	}
	return &Scheduler{calendar: calendar, config: config, logger: logger}
}

// RunOnce invokes the tick function a single time, regardless of market
// hours. Used by the "tick" CLI mode for on-demand/manual runs.
func (s *Scheduler) RunOnce(ctx context.Context, tick TickFunc) error {
	s.logger.Println("[scheduler] running single tick")
	start := time.Now()
	err := tick(ctx)
	if err != nil {
		s.logger.Printf("[scheduler] tick failed after %v: %v", time.Since(start), err)
		return fmt.Errorf("tick: %w", err)
	}
	s.logger.Printf("[scheduler] tick completed in %v", time.Since(start))
	return nil
}

// RunContinuous invokes the tick function on a fixed interval until the
// context is cancelled or max_errors consecutive ticks fail. Between
// failures it backs off exponentially, capped at 5 minutes (§5).
func (s *Scheduler) RunContinuous(ctx context.Context, tick TickFunc) error {
	s.logger.Printf("[scheduler] continuous mode: interval=%dm max_errors=%d",
		s.config.IntervalMinutes, s.config.MaxErrors)

	interval := time.Duration(s.config.IntervalMinutes) * time.Minute
	consecutiveErrors := 0

	for {
		if s.calendar != nil && !s.calendar.IsMarketOpen(time.Now()) {
			s.logger.Println("[scheduler] market closed, waiting for next interval")
		} else {
			start := time.Now()
			err := tick(ctx)
			if err != nil {
				consecutiveErrors++
				s.logger.Printf("[scheduler] tick failed (%d/%d consecutive): %v",
					consecutiveErrors, s.config.MaxErrors, err)
				if consecutiveErrors >= s.config.MaxErrors {
					return fmt.Errorf("scheduler: aborting after %d consecutive tick failures: %w",
						consecutiveErrors, err)
				}
				if !s.sleepBackoff(ctx, consecutiveErrors) {
					return ctx.Err()
				}
				continue
			}
			consecutiveErrors = 0
			s.logger.Printf("[scheduler] tick completed in %v", time.Since(start))
		}

		select {
		case <-ctx.Done():
			s.logger.Println("[scheduler] shutdown signal received, exiting")
			return nil
		case <-time.After(interval):
		}
	}
}

// sleepBackoff sleeps for 2^errors seconds capped at maxBackoff, returning
// false if the context is cancelled first.
func (s *Scheduler) sleepBackoff(ctx context.Context, errors int) bool {
	backoff := time.Duration(1<<uint(errors)) * time.Second
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	s.logger.Printf("[scheduler] backing off %v before retry", backoff)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(backoff):
		return true
	}
}

// Status returns current market state information.
func (s *Scheduler) Status() string {
	if s.calendar == nil {
		return "Market Status: no calendar configured"
	}
	now := time.Now()
	isOpen := s.calendar.IsMarketOpen(now)
	isTrading := s.calendar.IsTradingDay(now)
	nextSession := s.calendar.TimeUntilNextSession(now)

	status := fmt.Sprintf(
		"Market Status: open=%v trading_day=%v next_session_in=%v",
		isOpen, isTrading, nextSession.Round(time.Minute),
	)

	if reason := s.calendar.HolidayReason(now); reason != "" {
		status += fmt.Sprintf(" holiday=%s", reason)
	}

	return status
}
