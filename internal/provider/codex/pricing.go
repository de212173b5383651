package codex

import "github.com/leandrotocalini/foundry/internal/provider"

// Price is USD per million tokens.
type Price struct {
	Input  float64
	Output float64
}

var pricing = map[string]Price{
	"gpt-5.2-codex": {Input: 2.00, Output: 8.00},
	"gpt-5-codex":   {Input: 2.00, Output: 8.00},
	"gpt-4-codex":   {Input: 1.50, Output: 6.00},
}

var defaultPrice = Price{Input: 2.00, Output: 8.00}

// PriceFor returns the price of model, or the default price when the
// model is not in the table.
func PriceFor(model string) Price {
	if p, ok := pricing[model]; ok {
		return p
	}
	return defaultPrice
}

// EstimateCost prices a run. Cached input tokens are free.
func EstimateCost(u provider.TokenUsage, model string) float64 {
	p := PriceFor(model)
	in := float64(u.Input-u.Cached) / 1_000_000 * p.Input
	out := float64(u.Output) / 1_000_000 * p.Output
	return in + out
}
