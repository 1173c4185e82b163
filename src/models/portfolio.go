package models

// MHolding is one position inside a user portfolio, revalued every cycle.
type MHolding struct {
	ID              string  `json:"id"`
	Symbol          string  `json:"symbol"`
	Quantity        float64 `json:"quantity"`
	AveragePrice    float64 `json:"average_price"`
	CurrentPrice    float64 `json:"current_price"`
	TotalValue      float64 `json:"total_value"`
	GainLoss        float64 `json:"gain_loss"`
	GainLossPercent float64 `json:"gain_loss_percent"`
	Allocation      float64 `json:"allocation"`
}

// -----------------------------------------------------------------------------

// MPortfolioState is the live valuation state for one user. It is owned
// exclusively by that user's valuation engine task; the UserID is internal
// and never serialized to clients.
type MPortfolioState struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	UserID               string     `json:"-"`
	TotalValue           float64    `json:"total_value"`
	TotalGainLoss        float64    `json:"total_gain_loss"`
	TotalGainLossPercent float64    `json:"total_gain_loss_percent"`
	Holdings             []MHolding `json:"holdings"`
}

// EmptyPortfolioState is what a user without a stored portfolio receives.
func EmptyPortfolioState(userID string) *MPortfolioState {
	return &MPortfolioState{
		Name:     "Portfolio",
		UserID:   userID,
		Holdings: []MHolding{},
	}
}

// Clone returns a deep copy safe to hand to other goroutines.
func (p *MPortfolioState) Clone() *MPortfolioState {
	c := *p
	c.Holdings = make([]MHolding, len(p.Holdings))
	copy(c.Holdings, p.Holdings)
	return &c
}

// Symbols returns the distinct symbols held in this portfolio.
func (p *MPortfolioState) Symbols() []string {
	seen := make(map[string]bool, len(p.Holdings))
	symbols := make([]string, 0, len(p.Holdings))
	for _, h := range p.Holdings {
		if !seen[h.Symbol] {
			seen[h.Symbol] = true
			symbols = append(symbols, h.Symbol)
		}
	}
	return symbols
}
