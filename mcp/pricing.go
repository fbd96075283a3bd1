package mcp

// modelPrice is USD per million tokens.
type modelPrice struct {
	InputPerM  float64
	OutputPerM float64
}

// priceTable pins per-model pricing. Unknown models bill at the most
// expensive known rate so cost tracking overestimates rather than hides
// spend.
var priceTable = map[string]modelPrice{
	"gpt-4o":        {InputPerM: 2.50, OutputPerM: 10.00},
	"gpt-4o-mini":   {InputPerM: 0.15, OutputPerM: 0.60},
	"gpt-4.1":       {InputPerM: 2.00, OutputPerM: 8.00},
	"gpt-4.1-mini":  {InputPerM: 0.40, OutputPerM: 1.60},
	"o3-mini":       {InputPerM: 1.10, OutputPerM: 4.40},
	"deepseek-chat": {InputPerM: 0.27, OutputPerM: 1.10},
}

// Cost returns the USD cost of one call.
func Cost(model string, usage Usage) float64 {
	price, ok := priceTable[model]
	if !ok {
		price = mostExpensive()
	}
	return float64(usage.PromptTokens)/1e6*price.InputPerM +
		float64(usage.CompletionTokens)/1e6*price.OutputPerM
}

func mostExpensive() modelPrice {
	var max modelPrice
	for _, p := range priceTable {
		if p.InputPerM+p.OutputPerM > max.InputPerM+max.OutputPerM {
			max = p
		}
	}
	return max
}
