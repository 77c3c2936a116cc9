package llm

import "strings"

// price is USD per million tokens.
type price struct {
	input, output float64
}

// prices covers the chat and embedding models the service is configured
// with. Dated snapshots ("gpt-4o-mini-2024-07-18") match their base name.
var prices = map[string]price{
	"gpt-4o":                   {2.50, 10.00},
	"gpt-4o-mini":              {0.15, 0.60},
	"gpt-4.1":                  {2.00, 8.00},
	"gpt-4.1-mini":             {0.40, 1.60},
	"gpt-3.5-turbo":            {0.50, 1.50},
	"text-embedding-3-small":   {0.02, 0},
	"text-embedding-3-large":   {0.13, 0},
	"text-embedding-ada-002":   {0.10, 0},
	"claude-3-5-haiku-latest":  {0.80, 4.00},
	"claude-3-haiku-20240307":  {0.25, 1.25},
	"claude-sonnet-4-20250514": {3.00, 15.00},
	"claude-opus-4-20250514":   {15.00, 75.00},
}

// CalculateCost estimates the USD cost of a call. Unknown models, including
// local Ollama models, cost nothing.
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	p, ok := lookupPrice(model)
	if !ok {
		return 0
	}
	return (float64(inputTokens)*p.input + float64(outputTokens)*p.output) / 1e6
}

// lookupPrice prefers an exact match, then the longest known prefix.
func lookupPrice(model string) (price, bool) {
	if p, ok := prices[model]; ok {
		return p, true
	}
	best := ""
	for name := range prices {
		if strings.HasPrefix(model, name+"-") && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return price{}, false
	}
	return prices[best], true
}
