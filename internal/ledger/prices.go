package ledger

import "strings"

// Rate holds a provider's prices in USD per million tokens.
type Rate struct {
	Input  float64
	Output float64
}

// PriceTable maps a provider label (plus, for the strong cloud
// provider, a model-derived sub-tier) to rates. Providers absent from
// the table are free.
type PriceTable map[string]Rate

// Strong-cloud sub-tier keys. The model name selects among them.
const (
	strongHaiku  = ProviderCloudStrong + ":haiku"
	strongSonnet = ProviderCloudStrong + ":sonnet"
	strongOpus   = ProviderCloudStrong + ":opus"
)

// DefaultPrices returns the built-in rate card. On-device, local
// runner, and native classifier calls are free regardless of volume.
func DefaultPrices() PriceTable {
	return PriceTable{
		ProviderCloudFast: {Input: 0.80, Output: 4.00},
		strongHaiku:       {Input: 0.80, Output: 4.00},
		strongSonnet:      {Input: 3.00, Output: 15.00},
		strongOpus:        {Input: 15.00, Output: 75.00},
	}
}

// WithOverrides returns a copy of the table with the given per-provider
// rates replaced. Strong-cloud overrides apply to all sub-tiers.
func (p PriceTable) WithOverrides(overrides map[string]Rate) PriceTable {
	out := make(PriceTable, len(p))
	for k, v := range p {
		out[k] = v
	}
	for provider, rate := range overrides {
		if provider == ProviderCloudStrong {
			out[strongHaiku] = rate
			out[strongSonnet] = rate
			out[strongOpus] = rate
			continue
		}
		out[provider] = rate
	}
	return out
}

// Estimate computes the cost of one call. Unknown providers cost zero.
func (p PriceTable) Estimate(provider, model string, inputTokens, outputTokens int64) float64 {
	key := provider
	if provider == ProviderCloudStrong {
		key = strongSubTier(model)
	}
	rate, ok := p[key]
	if !ok {
		return 0
	}
	return (float64(inputTokens)*rate.Input + float64(outputTokens)*rate.Output) / 1_000_000
}

// strongSubTier maps a model name onto a sub-tier key. Unrecognised
// names are billed at the sonnet rate.
func strongSubTier(model string) string {
	name := strings.ToLower(model)
	switch {
	case strings.Contains(name, "haiku"):
		return strongHaiku
	case strings.Contains(name, "opus"):
		return strongOpus
	default:
		return strongSonnet
	}
}
