package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard, saves the result
// to path, and returns it.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to docintake! Let's configure document intake.")
	fmt.Println()

	providerPrompt := promptui.Select{
		Label: "Select LLM provider for field extraction",
		Items: []string{string(ProviderOpenAI), string(ProviderOllama)},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	provider := ProviderType(providerStr)
	preset := GetPreset(provider)

	policyPrompt := promptui.Select{
		Label: "Confidence policy",
		Items: []string{
			"inverse_distance - 1/(1+d) of the nearest reference, never abstains",
			"softmax          - softmax over the k nearest, abstains below a threshold",
		},
	}
	policyIdx, _, err := policyPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("policy selection: %w", err)
	}
	policy := []string{"inverse_distance", "softmax"}[policyIdx]

	corpusPrompt := promptui.Prompt{
		Label:   "Reference corpus directory (samples_<label>.json files)",
		Default: "corpus",
	}
	corpusDir, err := corpusPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("corpus dir: %w", err)
	}

	concurrencyPrompt := promptui.Prompt{
		Label:    "Documents processed in parallel",
		Default:  "1",
		Validate: validatePositiveInt,
	}
	concurrencyStr, err := concurrencyPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("concurrency: %w", err)
	}
	concurrency, _ := strconv.Atoi(strings.TrimSpace(concurrencyStr))

	excludePrompt := promptui.Prompt{
		Label:   "Extra exclude patterns (comma-separated, leave blank for defaults)",
		Default: "",
	}
	excludeStr, err := excludePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("exclude patterns: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Provider = provider
	cfg.Model = preset.Model
	cfg.EmbeddingProvider = provider
	cfg.EmbeddingModel = preset.EmbeddingModel
	cfg.Index.Policy = policy
	cfg.Index.CorpusDir = corpusDir
	cfg.Pipeline.Concurrency = concurrency
	cfg.Pipeline.Exclude = append(append([]string{}, DefaultExcludes...), splitAndTrim(excludeStr)...)

	if envVar := APIKeyEnvVar(provider); envVar != "" && os.Getenv(envVar) == "" {
		fmt.Printf("\nNote: Set %s in your environment before running docintake process.\n", envVar)
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return fmt.Errorf("enter a whole number of at least 1")
	}
	return nil
}

// splitAndTrim splits a comma-separated string and drops empty entries.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			result = append(result, p)
		}
	}
	return result
}
