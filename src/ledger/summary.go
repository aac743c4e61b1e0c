package ledger

import "github.com/shopspring/decimal"

// PortfolioSummary aggregates capital across every registered account.
type PortfolioSummary struct {
	TotalCapital       decimal.Decimal `json:"total_capital"`
	TotalAvailable     decimal.Decimal `json:"total_available"`
	TotalReserved      decimal.Decimal `json:"total_reserved"`
	TotalDeployed      decimal.Decimal `json:"total_deployed"`
	UtilizationPercent float64         `json:"utilization_percent"`
	AccountCount       int             `json:"account_count"`
}

func (l *Ledger) Summary() PortfolioSummary {
	l.mu.RLock()
	states := make([]*accountState, 0, len(l.accounts))
	for _, s := range l.accounts {
		states = append(states, s)
	}
	l.mu.RUnlock()

	sum := PortfolioSummary{
		TotalCapital:   decimal.Zero,
		TotalAvailable: decimal.Zero,
		TotalReserved:  decimal.Zero,
		TotalDeployed:  decimal.Zero,
		AccountCount:   len(states),
	}

	for _, s := range states {
		s.mu.Lock()
		sum.TotalCapital = sum.TotalCapital.Add(s.acct.TotalCapital).Add(s.acct.RealizedPnl)
		sum.TotalAvailable = sum.TotalAvailable.Add(s.acct.AvailableCash)
		sum.TotalReserved = sum.TotalReserved.Add(s.acct.ReservedCash)
		sum.TotalDeployed = sum.TotalDeployed.Add(s.acct.DeployedCash)
		s.mu.Unlock()
	}

	if sum.TotalCapital.IsPositive() {
		util, _ := sum.TotalDeployed.Div(sum.TotalCapital).Mul(decimal.NewFromInt(100)).Float64()
		sum.UtilizationPercent = util
	}

	return sum
}
