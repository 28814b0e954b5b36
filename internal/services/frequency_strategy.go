// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for advancing recurring schedules.
// Each frequency has a step strategy that computes the occurrence following a
// given one.

package services

import (
	"fmt"
	"sync"

	"wealthflow/internal/core"
)

// StepStrategy is the strategy interface for advancing a recurring schedule.
type StepStrategy interface {
	// Next returns the occurrence after current. anchorDay is the day of
	// month that month based schedules land on.
	Next(current core.Date, anchorDay int) core.Date
}

// DayStep advances by a fixed number of days.
type DayStep struct {
	Days int
}

func (s DayStep) Next(current core.Date, _ int) core.Date {
	return current.AddDays(s.Days)
}

// MonthStep advances by whole calendar months, landing on the anchor day
// clamped to the end of the target month (31 Jan, 29 Feb, 31 Mar).
type MonthStep struct {
	Months int
}

func (s MonthStep) Next(current core.Date, anchorDay int) core.Date {
	return current.AddMonths(s.Months, anchorDay)
}

var (
	stepMu         sync.RWMutex
	stepStrategies = map[core.Frequency]StepStrategy{
		core.Daily:     DayStep{Days: 1},
		core.Weekly:    DayStep{Days: 7},
		core.Biweekly:  DayStep{Days: 14},
		core.Monthly:   MonthStep{Months: 1},
		core.Quarterly: MonthStep{Months: 3},
		core.Yearly:    MonthStep{Months: 12},
	}
)

// GetStepStrategy returns the step strategy for a frequency.
func GetStepStrategy(frequency core.Frequency) (StepStrategy, error) {
	stepMu.RLock()
	defer stepMu.RUnlock()
	step, ok := stepStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidFrequency, frequency)
	}
	return step, nil
}

// RegisterStepStrategy installs or replaces the strategy for a frequency.
func RegisterStepStrategy(frequency core.Frequency, step StepStrategy) {
	stepMu.Lock()
	defer stepMu.Unlock()
	stepStrategies[frequency] = step
}

// Advance returns the occurrence that follows the rule's next occurrence.
// The result is always strictly later.
func Advance(rule core.RecurringRule) (core.Date, error) {
	step, err := GetStepStrategy(rule.Frequency)
	if err != nil {
		return core.Date{}, err
	}
	next := step.Next(rule.NextOccurrence, rule.AnchorDay())
	if !next.After(rule.NextOccurrence.Time) {
		return core.Date{}, fmt.Errorf("strategy for %s did not advance past %s", rule.Frequency, rule.NextOccurrence)
	}
	return next, nil
}

// DueOccurrences lists every occurrence of rule on or before upTo, stopping
// at the rule's end date, and returns the occurrence that follows them.
// When nothing is due, next is the rule's current next occurrence.
func DueOccurrences(rule core.RecurringRule, upTo core.Date) (due []core.Date, next core.Date, err error) {
	next = rule.NextOccurrence
	for next.OnOrBefore(upTo) && !rule.Ended(next) {
		due = append(due, next)
		rule.NextOccurrence = next
		if next, err = Advance(rule); err != nil {
			return nil, core.Date{}, err
		}
	}
	return due, next, nil
}
