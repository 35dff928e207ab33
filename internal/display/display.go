// Package display renders session messages for the terminal client.
package display

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vovakirdan/wirechat-client/internal/chat"
)

const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
	year  = 365 * day
)

// Units are floored, so 119 seconds is still "1 minute ago".
var magnitudes = []humanize.RelTimeMagnitude{
	{D: time.Second, Format: "Just now", DivBy: time.Second},
	{D: 2 * time.Second, Format: "1 second %s", DivBy: 1},
	{D: time.Minute, Format: "%d seconds %s", DivBy: time.Second},
	{D: 2 * time.Minute, Format: "1 minute %s", DivBy: 1},
	{D: time.Hour, Format: "%d minutes %s", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "1 hour %s", DivBy: 1},
	{D: day, Format: "%d hours %s", DivBy: time.Hour},
	{D: 2 * day, Format: "1 day %s", DivBy: 1},
	{D: week, Format: "%d days %s", DivBy: day},
	{D: 2 * week, Format: "1 week %s", DivBy: 1},
	{D: month, Format: "%d weeks %s", DivBy: week},
	{D: 2 * month, Format: "1 month %s", DivBy: 1},
	{D: year, Format: "%d months %s", DivBy: month},
	{D: 2 * year, Format: "1 year %s", DivBy: 1},
	{D: math.MaxInt64, Format: "%d years %s", DivBy: year},
}

// TimeAgo renders t relative to now, e.g. "Just now", "1 minute ago" or
// "3 days ago". Times in the future render as "Just now".
func TimeAgo(t, now time.Time) string {
	if t.After(now) {
		return "Just now"
	}
	return humanize.CustomRelTime(t, now, "ago", "from now", magnitudes)
}

// Label is the name shown for sender; the current user's own messages read "You".
func Label(sender, currentUser string) string {
	if sender == currentUser {
		return "You"
	}
	return sender
}

// Message formats one chat line.
func Message(m chat.Message, currentUser string, now time.Time) string {
	return fmt.Sprintf("[%s] %s: %s", TimeAgo(m.Timestamp, now), Label(m.Sender, currentUser), m.Content)
}

// Status formats a status change line.
func Status(ev chat.Event) string {
	if ev.Err != nil {
		return fmt.Sprintf("* %s (%v)", ev.Status, ev.Err)
	}
	return fmt.Sprintf("* %s", ev.Status)
}
