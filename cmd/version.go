package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/spigell/resume-gpt/internal/ai/huggingface"
	"github.com/spigell/resume-gpt/internal/ai/openai"
)

// Actual version can be specified in build command.
var version = "unknown"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and the configured AI backends",
	RunE: func(cmd *cobra.Command, _ []string) error {
		config, err := getConfig()
		if err != nil {
			return err
		}
		printVersion(cmd.OutOrStdout(), config)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func printVersion(w io.Writer, config *Config) {
	generation := normalizeProvider(config.Generation.Provider, providerGroq)
	embedding := normalizeProvider(config.Embedding.Provider, providerHuggingFace)

	fmt.Fprintf(w, "%s version: %s\n", app, version)
	fmt.Fprintf(w, "generation: %s (%s)\n", generation, modelName(generation, config.Generation.Model))
	fmt.Fprintf(w, "embedding: %s (%s)\n", embedding, modelName(embedding, config.Embedding.Model))
	fmt.Fprintf(w, "similarity threshold: %.2f\n", config.Matching.SimilarityThreshold)
}

// modelName reports the model a provider runs when none is configured.
func modelName(provider, model string) string {
	if model != "" {
		return model
	}
	switch provider {
	case providerGroq:
		return openai.DefaultGroqModel
	case providerHuggingFace:
		return huggingface.DefaultModel
	case providerStub:
		return "offline"
	default:
		return "provider default"
	}
}
