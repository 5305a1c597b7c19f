package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"grantflow.org/internal/orchestrator"
)

var (
	ErrMissingAPIKey = errors.New("narrative: missing API key")
	ErrDisabled      = errors.New("narrative: generator temporarily disabled")
)

const systemPrompt = "You are the readiness analyst of a grant application platform. " +
	"Given automated check results for a funding dossier, write a short status report " +
	"with the overall state, prioritized actions and concrete next steps."

// OpenAI calls an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	BaseURL string
	Model   string
	APIKey  string
	Client  *http.Client
	Guard   *Guard
}

func (o *OpenAI) Narrate(ctx context.Context, s orchestrator.Summary) (string, error) {
	if o.APIKey == "" {
		return "", ErrMissingAPIKey
	}
	prompt := Prompt(s)
	return o.Guard.Do(ctx, func(ctx context.Context) (string, error) {
		return o.complete(ctx, prompt)
	})
}

func (o *OpenAI) complete(ctx context.Context, prompt string) (string, error) {
	model := o.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	base := strings.TrimRight(o.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}

	payload := map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.2,
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/chat/completions", bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+o.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai error: %s", resp.Status)
	}
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// Prompt renders the summary for the language model.
func Prompt(s orchestrator.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Entity: %s %s", s.Kind, s.EntityID)
	if s.Title != "" {
		fmt.Fprintf(&b, " (%s)", s.Title)
	}
	fmt.Fprintf(&b, "\nStatus: %s\nOpen issues: %d\n\nChecks:\n", s.Status, s.TotalIssues)
	for _, c := range s.Checks {
		fmt.Fprintf(&b, "- %s: %s", c.Name, c.Status)
		if len(c.Issues) > 0 {
			fmt.Fprintf(&b, " - %s", strings.Join(c.Issues, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nProvide a complete report with priorities and concrete next steps.")
	return b.String()
}
