package failover

import (
	"fmt"
	"strings"

	"github.com/xkazm04/personas-sub002/pkg/engine/provider"
)

// claudeModelChain orders Claude models from highest capability down. A run
// degrades along this chain before leaving the provider.
var claudeModelChain = []string{
	"claude-opus-4-20250514",
	"claude-sonnet-4-20250514",
	"claude-haiku-4-5-20251001",
}

// alternateProviders lists cross-provider fallbacks per primary, tried with
// their default models after the primary's own chain is exhausted.
var alternateProviders = map[provider.Kind][]provider.Kind{
	provider.KindClaudeCode: {provider.KindGeminiCLI, provider.KindCodexCLI},
	provider.KindGeminiCLI:  {provider.KindClaudeCode, provider.KindCodexCLI},
	provider.KindCodexCLI:   {provider.KindClaudeCode, provider.KindGeminiCLI},
}

// BuildChain assembles the ordered candidate list for one run:
//
//  1. the primary provider with the configured model,
//  2. for Claude, progressively smaller models below the configured one,
//  3. alternate providers with their default models.
//
// Priority values follow list position so the manager's selection order is
// explicit in the result.
func BuildChain(primary provider.Kind, configuredModel string) []provider.Candidate {
	chain := []provider.Candidate{{
		Kind:  primary,
		Model: configuredModel,
		Label: fmt.Sprintf("%s (configured)", primary),
	}}

	if primary == provider.KindClaudeCode {
		start := 0
		if configuredModel != "" {
			if idx := claudeChainIndex(configuredModel); idx >= 0 {
				start = idx + 1
			}
		}
		for _, model := range claudeModelChain[start:] {
			if model == configuredModel {
				continue
			}
			chain = append(chain, provider.Candidate{
				Kind:  provider.KindClaudeCode,
				Model: model,
				Label: fmt.Sprintf("Claude (%s)", modelFamily(model)),
			})
		}
	}

	for _, alt := range alternateProviders[primary] {
		chain = append(chain, provider.Candidate{
			Kind:  alt,
			Label: fmt.Sprintf("%s (failover)", alt),
		})
	}

	for i := range chain {
		chain[i].Priority = i
	}
	return chain
}

// claudeChainIndex locates the configured model within the fallback chain by
// family name, so aliases like "claude-sonnet-4" still match.
func claudeChainIndex(model string) int {
	for i, chainModel := range claudeModelChain {
		if strings.Contains(model, modelFamily(chainModel)) {
			return i
		}
	}
	return -1
}

func modelFamily(model string) string {
	parts := strings.Split(model, "-")
	if len(parts) > 1 {
		return parts[1]
	}
	return model
}
