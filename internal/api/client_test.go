package api

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
)

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatal("NewClient without key must fail")
	}

	c, err := NewClient(ClientConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewClient with explicit key: %v", err)
	}
	if c.Model() != anthropic.ModelClaude3_5Haiku20241022 {
		t.Errorf("default model = %v", c.Model())
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	got := translateModelForBedrock(anthropic.ModelClaude3_5Haiku20241022)
	if got != "us.anthropic.claude-3-5-haiku-20241022-v1:0" {
		t.Errorf("translated = %v", got)
	}

	// Unknown models pass through untouched.
	if got := translateModelForBedrock("custom-model"); got != "custom-model" {
		t.Errorf("custom model = %v", got)
	}
}

func TestTokenTracker(t *testing.T) {
	tr := NewTokenTracker()
	tr.Add(100, 50)
	tr.Add(10, 5)

	in, out := tr.Total()
	if in != 110 || out != 55 {
		t.Errorf("Total = %d/%d, want 110/55", in, out)
	}
	if tr.Calls() != 2 {
		t.Errorf("Calls = %d, want 2", tr.Calls())
	}

	tr.Reset()
	in, out = tr.Total()
	if in != 0 || out != 0 || tr.Calls() != 0 {
		t.Error("Reset did not clear the tracker")
	}
}

func TestParseHints(t *testing.T) {
	t.Run("plain json", func(t *testing.T) {
		hints, err := parseHints(`{"priority":"high","tags":["auth","backend"],"title":"Restore login","depends_on_refs":["T-102"],"estimated_hours":3}`)
		if err != nil {
			t.Fatalf("parseHints: %v", err)
		}
		if hints.Priority != "high" || len(hints.Tags) != 2 || hints.Title != "Restore login" {
			t.Errorf("hints = %+v", hints)
		}
		if len(hints.DependsOnRefs) != 1 || hints.DependsOnRefs[0] != "T-102" {
			t.Errorf("DependsOnRefs = %v", hints.DependsOnRefs)
		}
		if hints.EstimatedHours != 3 {
			t.Errorf("EstimatedHours = %v", hints.EstimatedHours)
		}
	})

	t.Run("fenced json", func(t *testing.T) {
		hints, err := parseHints("```json\n{\"priority\":\"urgent\"}\n```")
		if err != nil {
			t.Fatalf("parseHints: %v", err)
		}
		if hints.Priority != "urgent" {
			t.Errorf("Priority = %q", hints.Priority)
		}
	})

	t.Run("partial fields", func(t *testing.T) {
		hints, err := parseHints(`{"tags":["qa"]}`)
		if err != nil {
			t.Fatalf("parseHints: %v", err)
		}
		if hints.Priority != "" || len(hints.Tags) != 1 {
			t.Errorf("hints = %+v", hints)
		}
	})

	t.Run("prose is an error", func(t *testing.T) {
		if _, err := parseHints("Sure! Here are the hints you asked for."); err == nil {
			t.Fatal("prose response must fail to parse")
		}
	})
}
