package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/rs/zerolog"

	"github.com/kestrelworks/triage/internal/analyze"
	"github.com/kestrelworks/triage/internal/logging"
)

// classifyPrompt asks for strict JSON so the response can be parsed without
// repair. Unknown or missing fields are simply ignored downstream.
const classifyPrompt = `Analyze this task request and extract structured hints.

Task request:
"%s"

Respond with ONLY a JSON object, no prose, with these fields:
{
  "priority": "low" | "normal" | "high" | "urgent",
  "tags": ["skill or technology tags, lowercase"],
  "title": "suggested title, at most 60 characters",
  "depends_on_refs": ["textual references to tasks this depends on, e.g. task IDs or titles"],
  "estimated_hours": number
}

Omit any field you are not confident about.`

// Hinter extracts intake hints from a task description using the language
// model. It is strictly optional: every failure is reported as an error for
// the caller to log and ignore.
type Hinter struct {
	client *Client
	log    zerolog.Logger
}

// NewHinter creates a hinter on top of the client.
func NewHinter(client *Client) *Hinter {
	return &Hinter{client: client, log: logging.Component("hinter")}
}

// ClassifyIntent asks the model for hints about the description.
func (h *Hinter) ClassifyIntent(ctx context.Context, description string) (analyze.Hints, error) {
	resp, err := h.client.sdk().Messages.New(ctx, anthropic.MessageNewParams{
		Model:     h.client.Model(),
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(fmt.Sprintf(classifyPrompt, description))),
		},
	})
	if err != nil {
		return analyze.Hints{}, fmt.Errorf("classify intent: %w", err)
	}

	h.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	hints, err := parseHints(extractText(resp))
	if err != nil {
		return analyze.Hints{}, err
	}

	h.log.Debug().
		Str("priority", hints.Priority).
		Strs("tags", hints.Tags).
		Int("refs", len(hints.DependsOnRefs)).
		Msg("intent classified")
	return hints, nil
}

// parseHints decodes the model response, tolerating a fenced code block
// around the JSON.
func parseHints(raw string) (analyze.Hints, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		if idx := strings.LastIndex(raw, "```"); idx >= 0 {
			raw = raw[:idx]
		}
		raw = strings.TrimSpace(raw)
	}

	var hints analyze.Hints
	if err := json.Unmarshal([]byte(raw), &hints); err != nil {
		return analyze.Hints{}, fmt.Errorf("parse hints: %w", err)
	}
	return hints, nil
}
