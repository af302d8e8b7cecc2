package market

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/username/fundfolio/src/logger"
)

const DateFormat = "2006-01-02"

// holidayFile is the on-disk shape of the exchange holiday data.
type holidayFile struct {
	Exchange string   `json:"exchange"`
	Holidays []string `json:"holidays"`
}

// Calendar answers whether a calendar date is a trading session for the
// reference exchange, and steps across session days. It is explicitly
// constructed and injected so tests can supply deterministic calendars.
//
// Session lookups are memoized; the reconciler queries the calendar many
// times per pass.
type Calendar struct {
	loc      *time.Location
	holidays map[string]bool

	mu       sync.RWMutex
	sessions map[string]bool
}

// NewCalendar builds a calendar for the given market timezone with no
// holidays loaded; weekends are always non-sessions.
func NewCalendar(loc *time.Location) *Calendar {
	return &Calendar{
		loc:      loc,
		holidays: make(map[string]bool),
		sessions: make(map[string]bool),
	}
}

// LoadHolidays loads exchange holiday dates from the specified file path.
// This should be called once from main.go after config is loaded.
func (c *Calendar) LoadHolidays(filePath string) error {
	file, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("error reading holiday data file '%s': %w", filePath, err)
	}

	var data holidayFile
	if err := json.Unmarshal(file, &data); err != nil {
		return fmt.Errorf("error unmarshalling holiday data from '%s': %w", filePath, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range data.Holidays {
		if _, err := time.ParseInLocation(DateFormat, d, c.loc); err != nil {
			return fmt.Errorf("invalid holiday date '%s' in '%s': %w", d, filePath, err)
		}
		c.holidays[d] = true
	}
	c.sessions = make(map[string]bool) // memo is stale once holidays change
	if logger.L != nil {
		logger.L.Info("Exchange holidays loaded", "path", filePath, "exchange", data.Exchange, "count", len(data.Holidays))
	}
	return nil
}

// AddHolidays marks the given dates ("2006-01-02") as non-sessions.
// Mainly useful for tests.
func (c *Calendar) AddHolidays(dates ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range dates {
		c.holidays[d] = true
	}
	c.sessions = make(map[string]bool)
}

// Location returns the market timezone the calendar operates in.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// IsSession reports whether the calendar date of t (in the market timezone)
// is a trading session.
func (c *Calendar) IsSession(t time.Time) bool {
	key := t.In(c.loc).Format(DateFormat)

	c.mu.RLock()
	if v, ok := c.sessions[key]; ok {
		c.mu.RUnlock()
		return v
	}
	c.mu.RUnlock()

	local := t.In(c.loc)
	wd := local.Weekday()
	v := wd != time.Saturday && wd != time.Sunday && !c.isHoliday(key)

	c.mu.Lock()
	c.sessions[key] = v
	c.mu.Unlock()
	return v
}

func (c *Calendar) isHoliday(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.holidays[key]
}

// NextSession steps forward (n>0) or backward (n<0) across exactly |n|
// session days, skipping weekends and holidays. n=0 returns the date of t
// unchanged. The result is a midnight timestamp in the market timezone.
func (c *Calendar) NextSession(t time.Time, n int) time.Time {
	local := t.In(c.loc)
	cur := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	if n == 0 {
		return cur
	}
	step := 1
	if n < 0 {
		step = -1
		n = -n
	}
	for n > 0 {
		cur = cur.AddDate(0, 0, step)
		if c.IsSession(cur) {
			n--
		}
	}
	return cur
}
