package testutil

import (
	"context"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

func generateText(t *testing.T, g *genkit.Genkit, model ai.Model, prompt string) string {
	t.Helper()
	resp, err := genkit.Generate(context.Background(), g,
		ai.WithModel(model),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		t.Fatalf("Generate() unexpected error: %v", err)
	}
	return resp.Text()
}

func TestMockLLM_PatternMatching(t *testing.T) {
	t.Parallel()

	g := genkit.Init(context.Background())
	mock := NewMockLLM("fallback")
	mock.AddResponse("weather", "It is sunny.")
	mock.AddResponse("time", "It is noon.")
	model := mock.RegisterModel(g)

	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{name: "first pattern", prompt: "what is the weather like?", want: "It is sunny."},
		{name: "second pattern", prompt: "do you have the TIME?", want: "It is noon."},
		{name: "no match falls back", prompt: "tell me a story", want: "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := generateText(t, g, model, tt.prompt); got != tt.want {
				t.Errorf("response = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMockLLM_FirstMatchWins(t *testing.T) {
	t.Parallel()

	g := genkit.Init(context.Background())
	mock := NewMockLLM("fallback")
	mock.AddResponse("go", "first")
	mock.AddResponse("golang", "second")
	model := mock.RegisterModel(g)

	if got := generateText(t, g, model, "tell me about golang"); got != "first" {
		t.Errorf("response = %q, want %q (registration order wins)", got, "first")
	}
}

func TestMockLLM_RecordsCalls(t *testing.T) {
	t.Parallel()

	g := genkit.Init(context.Background())
	mock := NewMockLLM("ok")
	model := mock.RegisterModel(g)

	generateText(t, g, model, "first question")
	generateText(t, g, model, "second question")

	calls := mock.Calls()
	if len(calls) != 2 {
		t.Fatalf("len(Calls()) = %d, want 2", len(calls))
	}
	if calls[0].UserMessage != "first question" {
		t.Errorf("calls[0].UserMessage = %q, want %q", calls[0].UserMessage, "first question")
	}
	if calls[1].Response != "ok" {
		t.Errorf("calls[1].Response = %q, want %q", calls[1].Response, "ok")
	}

	mock.Reset()
	if got := len(mock.Calls()); got != 0 {
		t.Errorf("len(Calls()) after Reset = %d, want 0", got)
	}
}
