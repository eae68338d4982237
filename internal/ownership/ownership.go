// Package ownership derives reporting figures from ledger state. All
// functions are pure; exits and other mutations are composed elsewhere
// from these numbers plus ledger transactions.
package ownership

import (
	"github.com/rsnash92/builda-club-sub000/internal/models"

	"github.com/shopspring/decimal"
)

type Report struct {
	OwnershipPct float64         `json:"ownership_pct"`
	TokenValue   decimal.Decimal `json:"token_value"`
	ShareValue   decimal.Decimal `json:"share_value"`
	Gain         decimal.Decimal `json:"gain"`
	ExitValue    decimal.Decimal `json:"exit_value"`
}

// Pct is the member's share of total supply in percent, zero for an
// empty club.
func Pct(memberTotal, clubTotal int64) float64 {
	if clubTotal <= 0 {
		return 0
	}
	return float64(memberTotal) / float64(clubTotal) * 100
}

func TokenValue(treasury decimal.Decimal, totalTokens int64) decimal.Decimal {
	if totalTokens <= 0 {
		return decimal.Zero
	}
	return treasury.Div(decimal.NewFromInt(totalTokens))
}

func ShareValue(memberTotal int64, tokenValue decimal.Decimal) decimal.Decimal {
	return tokenValue.Mul(decimal.NewFromInt(memberTotal))
}

// Gain is share value minus what the member paid in. Earned tokens
// carry a zero cost basis.
func Gain(shareValue, costBasis decimal.Decimal) decimal.Decimal {
	return shareValue.Sub(costBasis)
}

// ExitValue is the share value net of the exit fee.
func ExitValue(shareValue decimal.Decimal, exitFeePct float64) decimal.Decimal {
	keep := decimal.NewFromFloat(1).Sub(decimal.NewFromFloat(exitFeePct).Div(decimal.NewFromInt(100)))
	return shareValue.Mul(keep)
}

func BuildReport(member *models.Member, club *models.Club, exitFeePct float64) Report {
	tokenValue := TokenValue(club.TreasuryBalance, club.TotalTokens)
	shareValue := ShareValue(member.TotalTokens(), tokenValue)
	return Report{
		OwnershipPct: Pct(member.TotalTokens(), club.TotalTokens),
		TokenValue:   tokenValue,
		ShareValue:   shareValue,
		Gain:         Gain(shareValue, member.CostBasis),
		ExitValue:    ExitValue(shareValue, exitFeePct),
	}
}
