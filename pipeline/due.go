// Package pipeline implements birthday delivery: resolving which birthdays
// are due on a guild's local date, performing the announcement and role
// side effects exactly once per occurrence, and sweeping expired roles.
package pipeline

import (
	"sort"
	"time"

	"jubilee/clock"
	"jubilee/dal"
	"jubilee/models"
)

// ResolveDue returns the users whose birthday falls on the given guild-local
// date and whose delivery has not already completed. Repeated invocations
// for the same date shrink to empty as deliveries finish, which is what
// makes overlapping firings and retries safe.
func ResolveDue(store *dal.Store, guildID string, date clock.Date) ([]string, error) {
	birthdays, err := store.ListBirthdays(guildID)
	if err != nil {
		return nil, err
	}

	done, err := store.CompletedUserIDs(guildID, date.String())
	if err != nil {
		return nil, err
	}

	var due []string
	for _, birthday := range birthdays {
		if !observedOn(birthday, date) || done[birthday.UserID] {
			continue
		}
		due = append(due, birthday.UserID)
	}

	sort.Strings(due)
	return due, nil
}

// observedOn reports whether the birthday is observed on the given date.
// Feb 29 birthdays are observed on March 1 in non-leap years.
func observedOn(birthday models.Birthday, date clock.Date) bool {
	if int(birthday.Month) == int(date.Month) && int(birthday.Day) == date.Day {
		return true
	}
	if birthday.Month == 2 && birthday.Day == 29 && !clock.IsLeapYear(date.Year) {
		return date.Month == time.March && date.Day == 1
	}
	return false
}
