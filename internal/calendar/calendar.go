// README: Calendar classifier mapping dates to comparable day types.
package calendar

import "time"

// DayType classifies a calendar date for use as a grouping key when
// comparing historical earnings and demand across days.
type DayType string

const (
	Holiday            DayType = "holiday"
	Weekend            DayType = "weekend"
	BridgeDay          DayType = "bridge_day"
	PostHolidayWorkday DayType = "post_holiday_workday"
	Workday            DayType = "workday"
)

// MonthDay is a fixed-date holiday entry (recurs every year).
type MonthDay struct {
	Month time.Month
	Day   int
}

// DefaultHolidays are the Polish fixed-date public holidays.
func DefaultHolidays() []MonthDay {
	return []MonthDay{
		{time.January, 1},
		{time.January, 6},
		{time.May, 1},
		{time.May, 3},
		{time.August, 15},
		{time.November, 1},
		{time.November, 11},
		{time.December, 25},
		{time.December, 26},
	}
}

// Classifier classifies dates against a fixed-date holiday table.
type Classifier struct {
	holidays map[MonthDay]struct{}
}

func NewClassifier(holidays []MonthDay) *Classifier {
	set := make(map[MonthDay]struct{}, len(holidays))
	for _, h := range holidays {
		set[h] = struct{}{}
	}
	return &Classifier{holidays: set}
}

// Classify returns the day type for a date. Rules apply in priority
// order; the first match wins:
//
//  1. fixed-date holiday
//  2. Saturday or Sunday
//  3. workday squeezed against a holiday-adjacent weekend: a Friday
//     preceded by a holiday, or a Monday followed by one
//  4. Monday..Friday immediately after a holiday
//  5. plain workday
func (c *Classifier) Classify(date time.Time) DayType {
	if c.isHoliday(date) {
		return Holiday
	}

	wd := date.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return Weekend
	}

	prevHoliday := c.isHoliday(date.AddDate(0, 0, -1))
	nextHoliday := c.isHoliday(date.AddDate(0, 0, 1))
	if (prevHoliday && wd == time.Friday) || (nextHoliday && wd == time.Monday) {
		return BridgeDay
	}

	if prevHoliday {
		return PostHolidayWorkday
	}

	return Workday
}

// IsWeekendClass reports whether a weekday falls in the weekend class,
// used by the earnings fallback to weight cross-day samples.
func IsWeekendClass(wd time.Weekday) bool {
	return wd == time.Saturday || wd == time.Sunday
}

func (c *Classifier) isHoliday(date time.Time) bool {
	_, ok := c.holidays[MonthDay{date.Month(), date.Day()}]
	return ok
}
