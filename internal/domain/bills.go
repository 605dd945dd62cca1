package domain

import "time"

// AdvanceDueDate moves due forward one period. Monthly steps land on anchorDay,
// clamped to the last day of shorter months, so a bill anchored on the 31st
// returns to the 31st after February. A non-positive anchorDay uses due's day.
func AdvanceDueDate(due time.Time, frequency string, anchorDay int) time.Time {
	if frequency == BillFrequencyWeekly {
		return due.AddDate(0, 0, 7)
	}
	if anchorDay <= 0 {
		anchorDay = due.Day()
	}
	year, month, _ := due.Date()
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, due.Location())
	day := min(anchorDay, firstOfNext.AddDate(0, 1, -1).Day())
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), day, due.Hour(), due.Minute(), due.Second(), due.Nanosecond(), due.Location())
}
