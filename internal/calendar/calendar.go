// Package calendar answers which equity markets are currently active.
//
// Design rules (from spec):
//   - Markets are derived from wall-clock time in Asia/Shanghai.
//   - No holiday calendar is required; unknown holidays are tolerated.
//   - A symbol belongs to a market by its suffix (".HK", ".US").
package calendar

import (
	"fmt"
	"strings"
	"time"
)

// Market identifies one of the two equity markets this engine trades.
type Market string

const (
	HK Market = "HK"
	US Market = "US"
)

// CST is the Asia/Shanghai location all session boundaries are
// expressed in, regardless of the caller's local timezone.
var CST *time.Location

func init() {
	var err error
	CST, err = time.LoadLocation("Asia/Shanghai")
	if err != nil {
		panic(fmt.Sprintf("calendar: failed to load Asia/Shanghai timezone: %v", err))
	}
}

// session is a half-open [start, end) wall-clock window on a single
// day, expressed in minutes since midnight. An end past 24:00
// indicates the session crosses midnight (the US session does).
type session struct {
	startMin, endMin int
}

var (
	hkSessions = []session{
		{startMin: 9*60 + 30, endMin: 12 * 60},
		{startMin: 13 * 60, endMin: 16 * 60},
	}
	// US cash session in Beijing time: 21:30 to 04:00 the next day
	// (DST-adjusted upstream; the spec fixes these as constants).
	usSessions = []session{
		{startMin: 21*60 + 30, endMin: 24*60 + 4*60},
	}
)

// ActiveMarkets returns the set of markets open at instant t.
func ActiveMarkets(t time.Time) map[Market]bool {
	active := make(map[Market]bool, 2)
	local := t.In(CST)
	isWeekday := local.Weekday() != time.Saturday && local.Weekday() != time.Sunday

	minutesOfDay := local.Hour()*60 + local.Minute()

	if isWeekday && inAnySession(hkSessions, minutesOfDay) {
		active[HK] = true
	}
	if (isWeekday && inAnySession(usSessions, minutesOfDay)) || crossesFromPreviousDay(local, usSessions) {
		active[US] = true
	}

	return active
}

// inAnySession checks a plain same-day session list.
func inAnySession(sessions []session, minutesOfDay int) bool {
	for _, s := range sessions {
		end := s.endMin
		if end > 24*60 {
			end = 24 * 60 // same-day portion only; overflow handled by crossesFromPreviousDay
		}
		if minutesOfDay >= s.startMin && minutesOfDay < end {
			return true
		}
	}
	return false
}

// crossesFromPreviousDay accounts for the portion of a midnight-
// crossing session (e.g. US 21:30-04:00+1) that falls in the early
// hours of "today", counted against yesterday's weekday.
func crossesFromPreviousDay(local time.Time, sessions []session) bool {
	yesterday := local.AddDate(0, 0, -1)
	if yesterday.Weekday() == time.Saturday || yesterday.Weekday() == time.Sunday {
		return false
	}
	minutesOfDay := local.Hour()*60 + local.Minute()
	for _, s := range sessions {
		if s.endMin <= 24*60 {
			continue
		}
		overflowEnd := s.endMin - 24*60
		if minutesOfDay < overflowEnd {
			return true
		}
	}
	return false
}

// MarketForSymbol derives the market a symbol trades on from its
// suffix (e.g. "0700.HK" -> HK, "AAPL.US" -> US).
func MarketForSymbol(symbol string) (Market, bool) {
	switch {
	case strings.HasSuffix(symbol, ".HK"):
		return HK, true
	case strings.HasSuffix(symbol, ".US"):
		return US, true
	default:
		return "", false
	}
}

// FilterActive returns the subset of symbols whose market is in
// active.
func FilterActive(symbols []string, active map[Market]bool) []string {
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		m, ok := MarketForSymbol(sym)
		if ok && active[m] {
			out = append(out, sym)
		}
	}
	return out
}
