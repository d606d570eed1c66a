package core

import (
	"encoding/json"
	"fmt"
)

// ExpenseStatus is the closed set of states an expense item can be in.
type ExpenseStatus string

const (
	ExpensePending ExpenseStatus = "pending"
	ExpensePaid    ExpenseStatus = "paid"
	ExpenseSkipped ExpenseStatus = "skipped"
)

// IncomeStatus is the closed set of states an income item can be in.
type IncomeStatus string

const (
	IncomePending  IncomeStatus = "pending"
	IncomeReceived IncomeStatus = "received"
)

// skipped has no way out within its period.
var expenseTransitions = map[ExpenseStatus][]ExpenseStatus{
	ExpensePending: {ExpensePaid, ExpenseSkipped},
	ExpensePaid:    {ExpensePending},
}

var incomeTransitions = map[IncomeStatus][]IncomeStatus{
	IncomePending:  {IncomeReceived},
	IncomeReceived: {IncomePending},
}

func ParseExpenseStatus(s string) (ExpenseStatus, error) {
	switch st := ExpenseStatus(s); st {
	case ExpensePending, ExpensePaid, ExpenseSkipped:
		return st, nil
	}
	return "", fmt.Errorf("%w: expense status %q", ErrInvalidStatus, s)
}

func ParseIncomeStatus(s string) (IncomeStatus, error) {
	switch st := IncomeStatus(s); st {
	case IncomePending, IncomeReceived:
		return st, nil
	}
	return "", fmt.Errorf("%w: income status %q", ErrInvalidStatus, s)
}

// CanTransition reports whether moving from s to next is allowed.
func (s ExpenseStatus) CanTransition(next ExpenseStatus) bool {
	for _, allowed := range expenseTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition returns next if the move is legal, ErrInvalidTransition otherwise.
func (s ExpenseStatus) Transition(next ExpenseStatus) (ExpenseStatus, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}

func (s IncomeStatus) CanTransition(next IncomeStatus) bool {
	for _, allowed := range incomeTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s IncomeStatus) Transition(next IncomeStatus) (IncomeStatus, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}

func (s *ExpenseStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	st, err := ParseExpenseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

func (s *IncomeStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	st, err := ParseIncomeStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}
