// Package payouts holds the payout-schedule calendar used by treasury
// checks. Creator payouts settle weekly on Fridays UTC.
package payouts

import "time"

const payoutWeekday = time.Friday

// NextScheduledPayoutDate returns the upcoming payout date at UTC midnight.
// A reference time that already falls on the payout weekday returns that
// same day: the float must cover payouts cut that day.
func NextScheduledPayoutDate(reference time.Time) time.Time {
	utc := reference.UTC()
	daysAhead := (int(payoutWeekday) - int(utc.Weekday()) + 7) % 7
	payoutDay := utc.AddDate(0, 0, daysAhead)
	return time.Date(payoutDay.Year(), payoutDay.Month(), payoutDay.Day(), 0, 0, 0, 0, time.UTC)
}

// PaymentLookbackWindow bounds how far back a processor payment still
// counts a user as "recently paid" when sizing the float.
func PaymentLookbackWindow(reference time.Time) time.Time {
	return reference.UTC().AddDate(0, -1, 0)
}
