package payouts

import "github.com/shopspring/decimal"

// feeTier is one marginal band of the platform fee schedule. Revenue up
// to UpTo is charged at Rate; the excess rolls into the next band.
type feeTier struct {
	UpTo decimal.Decimal // zero means unbounded
	Rate decimal.Decimal
}

var feeSchedule = []feeTier{
	{UpTo: decimal.NewFromInt(10_000), Rate: decimal.NewFromFloat(0.10)},
	{UpTo: decimal.NewFromInt(100_000), Rate: decimal.NewFromFloat(0.08)},
	{UpTo: decimal.Zero, Rate: decimal.NewFromFloat(0.05)},
}

// platformFee computes the marginal deduction for a gross revenue. The
// schedule is deterministic so re-aggregation always lands on the same
// figures for the same revenue.
func platformFee(revenue decimal.Decimal) decimal.Decimal {
	if revenue.Sign() <= 0 {
		return decimal.Zero
	}

	fee := decimal.Zero
	remaining := revenue
	prevBound := decimal.Zero

	for _, tier := range feeSchedule {
		if remaining.Sign() <= 0 {
			break
		}

		var band decimal.Decimal
		if tier.UpTo.IsZero() {
			band = remaining
		} else {
			band = decimal.Min(remaining, tier.UpTo.Sub(prevBound))
			prevBound = tier.UpTo
		}

		fee = fee.Add(band.Mul(tier.Rate))
		remaining = remaining.Sub(band)
	}

	return fee.Round(2)
}
