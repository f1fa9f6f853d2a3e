package spaced_repetition

import (
	"fmt"
	"strings"
	"time"
)

// Tier bounds
const (
	MinTier = 0
	MaxTier = 7
)

// intervals holds the wait before the next prompt for each tier
var intervals = [MaxTier + 1]time.Duration{
	1 * time.Hour,
	6 * time.Hour,
	12 * time.Hour,
	24 * time.Hour,
	2 * 24 * time.Hour,
	5 * 24 * time.Hour,
	14 * 24 * time.Hour,
	30 * 24 * time.Hour,
}

// Outcome is the self-reported result of a recall attempt
type Outcome int

const (
	// Incorrect answer - the word is demoted one tier
	Incorrect Outcome = iota
	// Correct answer - the word is promoted one tier
	Correct
)

// String returns the outcome name
func (o Outcome) String() string {
	if o == Correct {
		return "correct"
	}
	return "incorrect"
}

// ParseOutcome converts user input into an Outcome
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "correct", "right", "yes", "y", "1":
		return Correct, nil
	case "incorrect", "wrong", "no", "n", "0":
		return Incorrect, nil
	default:
		return Incorrect, fmt.Errorf("unknown outcome %q", s)
	}
}

// ClampTier forces a tier into [MinTier, MaxTier]
func ClampTier(tier int) int {
	if tier < MinTier {
		return MinTier
	}
	if tier > MaxTier {
		return MaxTier
	}
	return tier
}

// Interval returns the wait duration for a tier. Out-of-range tiers are clamped.
func Interval(tier int) time.Duration {
	return intervals[ClampTier(tier)]
}

// Transition computes the tier after an answer.
// Correct saturates at MaxTier, incorrect saturates at MinTier.
func Transition(tier int, outcome Outcome) int {
	tier = ClampTier(tier)
	if outcome == Correct {
		if tier < MaxTier {
			return tier + 1
		}
		return tier
	}
	if tier > MinTier {
		return tier - 1
	}
	return tier
}

// NextDue returns the due time for a word entering tier at the given moment
func NextDue(tier int, at time.Time) time.Time {
	return at.Add(Interval(tier))
}

// IsMastered determines if a word has reached the longest interval
func IsMastered(tier int) bool {
	return ClampTier(tier) == MaxTier
}
