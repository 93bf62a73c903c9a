// Package market handles market state awareness.
//
// Design rules (from spec):
//   - System must know if today is a trading day.
//   - System must know if the market is currently open.
//   - Do not rely only on time checks.
//   - Use exchange calendar data.
//   - One central MarketCalendar module.
package market

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ET is the US Eastern Time location, home of NYSE/Nasdaq trading hours.
var ET *time.Location

func init() {
	var err error
	ET, err = time.LoadLocation("America/New_York")
	if err != nil {
		panic(fmt.Sprintf("market: failed to load America/New_York timezone: %v", err))
	}
}

// NYSE/Nasdaq regular session hours (Eastern Time).
const (
	MarketOpenHour  = 9
	MarketOpenMin   = 30
	MarketCloseHour = 16
	MarketCloseMin  = 0
)

// Calendar provides exchange calendar and market state information.
//
// Unlike a fixed-hours exchange, NYSE/Nasdaq run a shortened session (1:00pm
// ET close, no afternoon trading) on the day after Thanksgiving and on
// Christmas/Independence Day eves when those fall on a weekday — these are
// "early closes", distinct from full holidays: the exchange is open, just
// for fewer hours, so a plain holiday lookup can't represent them.
type Calendar struct {
	// holidays is a set of dates (YYYY-MM-DD) when the exchange is fully closed.
	holidays map[string]string // date -> reason

	// earlyCloses maps a trading date to its shortened close time ("HH:MM",
	// Eastern Time). Absent dates use the regular MarketCloseHour/Min.
	earlyCloses map[string]string
}

// HolidayEntry represents one row of the exchange calendar file: either a
// full holiday, or a trading day with a shortened session.
type HolidayEntry struct {
	Date       string `json:"date"`                  // YYYY-MM-DD
	Reason     string `json:"reason"`                 // e.g., "New Year's Day", "Thanksgiving"
	EarlyClose string `json:"early_close,omitempty"`  // "HH:MM" ET; empty means a full holiday
}

// NewCalendar creates a Calendar from a JSON holiday/early-close file.
// The file should contain an array of HolidayEntry objects; entries with a
// non-empty EarlyClose are shortened-session days rather than full holidays.
func NewCalendar(holidayFilePath string) (*Calendar, error) {
	data, err := os.ReadFile(holidayFilePath)
	if err != nil {
		return nil, fmt.Errorf("market calendar: read holidays file: %w", err)
	}

	var entries []HolidayEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("market calendar: parse holidays: %w", err)
	}

	holidays := make(map[string]string)
	earlyCloses := make(map[string]string)
	for _, e := range entries {
		if e.EarlyClose != "" {
			earlyCloses[e.Date] = e.EarlyClose
			continue
		}
		holidays[e.Date] = e.Reason
	}

	return &Calendar{holidays: holidays, earlyCloses: earlyCloses}, nil
}

// NewCalendarFromHolidays creates a Calendar directly from a holiday map,
// with no early closes. Useful for testing.
func NewCalendarFromHolidays(holidays map[string]string) *Calendar {
	return &Calendar{holidays: holidays, earlyCloses: map[string]string{}}
}

// NewCalendarFromHolidaysAndEarlyCloses creates a Calendar with both full
// holidays and shortened-session days. Useful for testing early-close
// behavior without a holiday file.
func NewCalendarFromHolidaysAndEarlyCloses(holidays, earlyCloses map[string]string) *Calendar {
	return &Calendar{holidays: holidays, earlyCloses: earlyCloses}
}

// IsTradingDay returns true if the given date is a valid trading day.
// A trading day is a weekday that is not an exchange holiday. Early-close
// days are still trading days — they just close early.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	d := date.In(ET)

	// Weekends are not trading days.
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false
	}

	// Check exchange holidays.
	dateStr := d.Format("2006-01-02")
	if _, isHoliday := c.holidays[dateStr]; isHoliday {
		return false
	}

	return true
}

// HolidayReason returns the reason for a holiday, or empty string if not a holiday.
func (c *Calendar) HolidayReason(date time.Time) string {
	dateStr := date.In(ET).Format("2006-01-02")
	return c.holidays[dateStr]
}

// IsEarlyClose returns true if date is a shortened-session trading day.
func (c *Calendar) IsEarlyClose(date time.Time) bool {
	dateStr := date.In(ET).Format("2006-01-02")
	_, ok := c.earlyCloses[dateStr]
	return ok
}

// sessionCloseMinutes returns the minutes-past-midnight (ET) the session
// closes on the given date: the regular 4:00pm close, or the shortened
// close time when date is an early-close day.
func (c *Calendar) sessionCloseMinutes(date time.Time) int {
	dateStr := date.In(ET).Format("2006-01-02")
	if raw, ok := c.earlyCloses[dateStr]; ok {
		var h, m int
		if _, err := fmt.Sscanf(raw, "%d:%d", &h, &m); err == nil {
			return h*60 + m
		}
	}
	return MarketCloseHour*60 + MarketCloseMin
}

// IsMarketOpen returns true if the NYSE/Nasdaq is currently in trading hours,
// honoring shortened sessions on early-close days.
func (c *Calendar) IsMarketOpen(now time.Time) bool {
	t := now.In(ET)

	if !c.IsTradingDay(t) {
		return false
	}

	currentMinutes := t.Hour()*60 + t.Minute()
	openMinutes := MarketOpenHour*60 + MarketOpenMin

	return currentMinutes >= openMinutes && currentMinutes < c.sessionCloseMinutes(t)
}

// TimeUntilNextSession returns the duration until the next market open.
// If the market is currently open, returns 0.
func (c *Calendar) TimeUntilNextSession(now time.Time) time.Duration {
	t := now.In(ET)

	if c.IsMarketOpen(t) {
		return 0
	}

	// Find the next trading day.
	candidate := t
	for i := 0; i < 10; i++ { // Look ahead up to 10 days.
		// If we're before market open today and today is a trading day, next open is today.
		if i == 0 && c.IsTradingDay(candidate) {
			todayOpen := time.Date(candidate.Year(), candidate.Month(), candidate.Day(),
				MarketOpenHour, MarketOpenMin, 0, 0, ET)
			if t.Before(todayOpen) {
				return todayOpen.Sub(t)
			}
		}

		// Try next day.
		candidate = candidate.AddDate(0, 0, 1)
		if c.IsTradingDay(candidate) {
			nextOpen := time.Date(candidate.Year(), candidate.Month(), candidate.Day(),
				MarketOpenHour, MarketOpenMin, 0, 0, ET)
			return nextOpen.Sub(t)
		}
	}

	// Fallback: this shouldn't happen with reasonable holiday data.
	return 24 * time.Hour
}

// NextTradingDay returns the next trading day after the given date.
func (c *Calendar) NextTradingDay(date time.Time) time.Time {
	candidate := date.In(ET).AddDate(0, 0, 1)
	for i := 0; i < 10; i++ {
		if c.IsTradingDay(candidate) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// PreviousTradingDay returns the most recent trading day before the given date.
func (c *Calendar) PreviousTradingDay(date time.Time) time.Time {
	candidate := date.In(ET).AddDate(0, 0, -1)
	for i := 0; i < 10; i++ {
		if c.IsTradingDay(candidate) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, -1)
	}
	return candidate
}
