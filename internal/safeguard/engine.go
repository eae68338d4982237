// Package safeguard implements the pure validation rules protecting
// club pricing and ownership. Nothing here mutates state; callers feed
// in a snapshot and act on the verdict.
package safeguard

import (
	"fmt"
	"time"

	"github.com/rsnash92/builda-club-sub000/internal/models"

	"github.com/shopspring/decimal"
)

// PricingState is the slice of club state the price checks need.
type PricingState struct {
	CurrentPrice      decimal.Decimal
	QuarterStartPrice decimal.Decimal
	LastPriceChangeAt *time.Time
}

type Result struct {
	Allowed bool
	Reason  string
}

func allowed() Result {
	return Result{Allowed: true}
}

func rejected(format string, args ...interface{}) Result {
	return Result{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// CheckPriceChange validates a proposed entry price. Checks run in a
// fixed order and the first failure wins: cooldown, floor, then
// rate-of-change against the quarter-start price. Values exactly at a
// limit pass.
func CheckPriceChange(state PricingState, cfg *models.SafeguardConfig, newPrice decimal.Decimal, now time.Time) Result {
	if state.LastPriceChangeAt != nil {
		cooldown := time.Duration(cfg.VotingCooldownDays) * 24 * time.Hour
		elapsed := now.Sub(*state.LastPriceChangeAt)
		if elapsed < cooldown {
			remaining := cooldown - elapsed
			return rejected("price change cooldown active, %s remaining", remaining.Round(time.Hour))
		}
	}

	if newPrice.LessThan(cfg.MinPriceFloor) {
		return rejected("proposed price %s below floor %s", newPrice, cfg.MinPriceFloor)
	}

	anchor := state.QuarterStartPrice
	if anchor.IsZero() {
		anchor = state.CurrentPrice
	}
	maxPrice := anchor.Mul(decimal.NewFromFloat(cfg.MaxPriceIncreaseMultiplier))
	minPrice := anchor.Mul(decimal.NewFromFloat(cfg.MaxPriceDecreaseMultiplier))
	if newPrice.GreaterThan(maxPrice) {
		return rejected("proposed price %s exceeds %sx quarter-start price %s",
			newPrice, decimal.NewFromFloat(cfg.MaxPriceIncreaseMultiplier), anchor)
	}
	if newPrice.LessThan(minPrice) {
		return rejected("proposed price %s below %sx quarter-start price %s",
			newPrice, decimal.NewFromFloat(cfg.MaxPriceDecreaseMultiplier), anchor)
	}

	return allowed()
}

// CheckTreasuryAllocation validates an allocation amount against the
// current treasury at proposal-creation time.
func CheckTreasuryAllocation(treasury, amount decimal.Decimal) Result {
	if amount.LessThanOrEqual(decimal.Zero) {
		return rejected("allocation amount must be positive")
	}
	if amount.GreaterThan(treasury) {
		return rejected("allocation %s exceeds treasury balance %s", amount, treasury)
	}
	return allowed()
}

// ClampPurchase returns how many of the requested tokens a member may
// actually receive under the whale cap, measured against the total
// supply before the purchase. A short grant is a partial fill, not a
// rejection. A club with no supply yet has no cap; someone has to buy
// the first tokens.
func ClampPurchase(totalTokens, memberTotal, requested int64, cfg *models.SafeguardConfig) (granted int64, clamped bool) {
	if requested <= 0 {
		return 0, false
	}
	if totalTokens <= 0 {
		return requested, false
	}

	maxTotal := int64(float64(totalTokens) * cfg.MaxOwnershipPct / 100)
	room := maxTotal - memberTotal
	if room < 0 {
		room = 0
	}
	if requested <= room {
		return requested, false
	}
	return room, true
}

// ExitRateExceeded reports whether recent exits trip the circuit
// breaker. The rate is exits over the membership size at the start of
// the window (current actives plus those who left during it).
func ExitRateExceeded(exitsInWindow, activeMembers int64, cfg *models.SafeguardConfig) bool {
	base := activeMembers + exitsInWindow
	if base <= 0 || exitsInWindow <= 0 {
		return false
	}
	return float64(exitsInWindow)/float64(base)*100 >= cfg.CircuitBreakerExitPct
}

// QuarterStart returns the first instant of the calendar quarter
// containing t.
func QuarterStart(t time.Time) time.Time {
	month := ((int(t.Month())-1)/3)*3 + 1
	return time.Date(t.Year(), time.Month(month), 1, 0, 0, 0, 0, t.Location())
}
