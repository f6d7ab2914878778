package stub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/spigell/resume-gpt/internal/ai"
)

func TestKeywordResponder(t *testing.T) {
	respond := KeywordResponder([]string{"Go", "Node.js", "SQL"}, []string{"Teamwork"}, "improve it")

	out, err := respond(&ai.GenerateRequest{Messages: []ai.Message{
		{Role: ai.RoleUser, Content: `Return "technical_skills" and "soft_skills". Text: Built Node.js and Go services, teamwork.`},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed map[string][]string
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("expected json, got %q", out)
	}
	if len(parsed["technical_skills"]) != 2 || parsed["technical_skills"][0] != "Go" || parsed["technical_skills"][1] != "Node.js" {
		t.Fatalf("unexpected technical skills: %v", parsed["technical_skills"])
	}
	if len(parsed["soft_skills"]) != 1 {
		t.Fatalf("unexpected soft skills: %v", parsed["soft_skills"])
	}

	out, _ = respond(&ai.GenerateRequest{Messages: []ai.Message{{Role: ai.RoleUser, Content: "suggest"}}})
	if out != "improve it" {
		t.Fatalf("expected suggestion, got %q", out)
	}
}

func TestEmbedder(t *testing.T) {
	e := &Embedder{Vectors: map[string][]float64{"Go": {1, 0}}}

	if _, err := e.Embed(context.Background(), []string{"Go", "Rust"}); !errors.Is(err, ai.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for unknown text, got %v", err)
	}

	e.Fallback = Trigrams
	out, err := e.Embed(context.Background(), []string{"Go", "Rust"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0][0] != 1 || len(out[1]) != trigramDims {
		t.Fatalf("unexpected vectors: %v", out)
	}
	if len(e.Calls()) != 2 {
		t.Fatalf("expected 2 recorded calls, got %d", len(e.Calls()))
	}
}

func TestTrigramsDeterministic(t *testing.T) {
	a, b := Trigrams("PostgreSQL"), Trigrams("postgresql")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected case-insensitive stable vectors")
		}
	}
}
