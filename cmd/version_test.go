package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintVersion(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
		want   string
	}{
		{
			name: "defaults",
			config: &Config{
				Generation: &GenerationConfig{},
				Embedding:  &EmbeddingConfig{},
				Matching:   &MatchingConfig{SimilarityThreshold: 0.4},
			},
			want: "resume-gpt version: unknown\n" +
				"generation: groq (gemma2-9b-it)\n" +
				"embedding: huggingface (sentence-transformers/all-MiniLM-L6-v2)\n" +
				"similarity threshold: 0.40\n",
		},
		{
			name: "configured models",
			config: &Config{
				Generation: &GenerationConfig{Provider: " Gemini ", Model: "gemini-2.5-pro"},
				Embedding:  &EmbeddingConfig{Provider: "stub"},
				Matching:   &MatchingConfig{SimilarityThreshold: 0.55},
			},
			want: "resume-gpt version: unknown\n" +
				"generation: gemini (gemini-2.5-pro)\n" +
				"embedding: stub (offline)\n" +
				"similarity threshold: 0.55\n",
		},
		{
			name: "openai without a model",
			config: &Config{
				Generation: &GenerationConfig{Provider: "openai"},
				Embedding:  &EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-small"},
				Matching:   &MatchingConfig{},
			},
			want: "resume-gpt version: unknown\n" +
				"generation: openai (provider default)\n" +
				"embedding: openai (text-embedding-3-small)\n" +
				"similarity threshold: 0.00\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			printVersion(&out, tt.config)
			assert.Equal(t, tt.want, out.String())
		})
	}
}
