package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ProgressPercent returns current/target as a percentage clamped to [0, 100].
// A goal without a positive target reports 0.
func ProgressPercent(g SavingsGoal) float64 {
	if g.TargetAmount.Cents <= 0 || g.CurrentAmount.Cents <= 0 {
		return 0
	}
	pct := g.CurrentAmount.Decimal().
		Div(g.TargetAmount.Decimal()).
		Mul(hundred)
	if pct.GreaterThan(hundred) {
		pct = hundred
	}
	f, _ := pct.Round(2).Float64()
	return f
}

// Remaining returns how much is still missing to reach the target; zero once
// the goal is reached.
func Remaining(g SavingsGoal) Money {
	if g.CurrentAmount.Cents >= g.TargetAmount.Cents {
		return Money{}
	}
	return g.TargetAmount.Sub(g.CurrentAmount)
}

// ApplyMovement returns the goal after a movement of the given type and
// amount. A withdrawal larger than the current amount fails with
// InsufficientFundsError and leaves the goal untouched. IsCompleted is always
// recomputed from the new amount.
func ApplyMovement(g SavingsGoal, typ MovementType, amount Money) (SavingsGoal, error) {
	if err := amount.Validate(); err != nil {
		return g, Invalid("amount", err)
	}
	switch typ {
	case Deposit:
		g.CurrentAmount = g.CurrentAmount.Add(amount)
	case Withdrawal:
		if amount.Cents > g.CurrentAmount.Cents {
			return g, &InsufficientFundsError{Requested: amount, Available: g.CurrentAmount}
		}
		g.CurrentAmount = g.CurrentAmount.Sub(amount)
	default:
		return g, Invalid("type", ErrInvalidType)
	}
	return Recompute(g), nil
}

// RevertMovement undoes a previously applied movement. Reverting a deposit
// that has since been withdrawn fails with InsufficientFundsError.
func RevertMovement(g SavingsGoal, m SavingsMovement) (SavingsGoal, error) {
	switch m.Type {
	case Deposit:
		return ApplyMovement(g, Withdrawal, m.Amount)
	case Withdrawal:
		return ApplyMovement(g, Deposit, m.Amount)
	}
	return g, Invalid("type", ErrInvalidType)
}

// Recompute derives IsCompleted from the current and target amounts.
func Recompute(g SavingsGoal) SavingsGoal {
	g.IsCompleted = g.TargetAmount.Cents > 0 && g.CurrentAmount.Cents >= g.TargetAmount.Cents
	return g
}

// ReplayMovements folds movements in chronological order starting from zero.
// The movements may be supplied newest first, as the store lists them.
func ReplayMovements(movements []SavingsMovement) (Money, error) {
	g := SavingsGoal{}
	for i := len(movements) - 1; i >= 0; i-- {
		m := movements[i]
		var err error
		if g, err = ApplyMovement(g, m.Type, m.Amount); err != nil {
			return g.CurrentAmount, fmt.Errorf("movement %s: %w", m.ID, err)
		}
	}
	return g.CurrentAmount, nil
}

// GoalDrift describes a goal whose stored amount disagrees with its movements.
type GoalDrift struct {
	GoalID   string
	Stored   Money
	Replayed Money
}

// CheckGoalConsistency compares the stored current amount with the sum of
// deposits minus withdrawals. It returns nil when they agree.
func CheckGoalConsistency(g SavingsGoal, movements []SavingsMovement) *GoalDrift {
	var sum Money
	for _, m := range movements {
		if m.Type == Deposit {
			sum = sum.Add(m.Amount)
		} else {
			sum = sum.Sub(m.Amount)
		}
	}
	if sum == g.CurrentAmount {
		return nil
	}
	return &GoalDrift{GoalID: g.ID, Stored: g.CurrentAmount, Replayed: sum}
}

// SavingsSummary aggregates progress across goals.
type SavingsSummary struct {
	TotalSaved     Money
	TotalTarget    Money
	OverallPercent float64
	Completed      int
	Closest        *SavingsGoal
}

// SummarizeSavings returns totals across goals and the incomplete goal
// nearest to its target.
func SummarizeSavings(goals []SavingsGoal) SavingsSummary {
	var s SavingsSummary
	best := -1.0
	for i := range goals {
		g := goals[i]
		s.TotalSaved = s.TotalSaved.Add(g.CurrentAmount)
		s.TotalTarget = s.TotalTarget.Add(g.TargetAmount)
		if g.IsCompleted {
			s.Completed++
			continue
		}
		if p := ProgressPercent(g); p > best {
			best = p
			s.Closest = &goals[i]
		}
	}
	s.OverallPercent = ProgressPercent(SavingsGoal{TargetAmount: s.TotalTarget, CurrentAmount: s.TotalSaved})
	return s
}
