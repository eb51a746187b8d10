package us

import (
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// ET wall-clock time after which the day's bars are considered final.
const (
	settleHour   = 20
	settleMinute = 5
)

// CalendarClient is the part of the Alpaca trading client used to look up
// trading days.
type CalendarClient interface {
	GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error)
}

var _ CalendarClient = (*alpaca.Client)(nil)

// LatestFinishedTradingDay returns the most recent trading day whose session
// has settled, using the Alpaca trading calendar.
func LatestFinishedTradingDay(apiKey, apiSecret, baseURL string) (time.Time, error) {
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
	return latestFinishedDay(client, time.Now())
}

func latestFinishedDay(client CalendarClient, now time.Time) (time.Time, error) {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Time{}, fmt.Errorf("loading ET timezone: %w", err)
	}
	now = now.In(et)

	cal, err := client.GetCalendar(alpaca.GetCalendarRequest{
		Start: now.AddDate(0, 0, -7),
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("GetCalendar: %w", err)
	}
	return pickFinishedDay(cal, now)
}

// pickFinishedDay walks the calendar backwards and returns the first day that
// is before today, or today itself once the session has settled. now must be
// in ET.
func pickFinishedDay(cal []alpaca.CalendarDay, now time.Time) (time.Time, error) {
	if len(cal) == 0 {
		return time.Time{}, fmt.Errorf("no trading days returned from calendar")
	}

	today := now.Format(dateLayout)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), settleHour, settleMinute, 0, 0, now.Location())

	for i := len(cal) - 1; i >= 0; i-- {
		d, err := time.Parse(dateLayout, cal[i].Date)
		if err != nil {
			continue
		}
		if cal[i].Date == today {
			if now.After(cutoff) {
				return d, nil
			}
			continue
		}
		if cal[i].Date < today {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("could not determine latest finished trading day")
}
