package source

import "time"

// DailySchedule returns true if an ingest is needed for a daily source.
func DailySchedule(now time.Time, lastRun *time.Time) bool {
	if lastRun == nil {
		return true
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return lastRun.Before(today)
}

// WeeklySchedule returns true if an ingest is needed for a weekly source.
func WeeklySchedule(now time.Time, lastRun *time.Time) bool {
	if lastRun == nil {
		return true
	}
	// Start of the current ISO week (Monday).
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	weekStart := time.Date(now.Year(), now.Month(), now.Day()-(weekday-1), 0, 0, 0, 0, time.UTC)
	return lastRun.Before(weekStart)
}

// MonthlySchedule returns true if an ingest is needed for a monthly source.
func MonthlySchedule(now time.Time, lastRun *time.Time) bool {
	if lastRun == nil {
		return true
	}
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return lastRun.Before(thisMonth)
}
