package app

import (
	"context"
	"testing"
	"time"

	"github.com/civicpulse/backend/internal/config"
	"github.com/civicpulse/backend/internal/services"
)

func TestOpenMemoryStore(t *testing.T) {
	cfg := &config.Config{Store: "memory", DataDir: t.TempDir()}
	store, err := OpenStore(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close(context.Background())

	if _, ok := store.(*services.MemoryStore); !ok {
		t.Errorf("store = %T, want *services.MemoryStore", store)
	}
}

func TestOpenUnknownStore(t *testing.T) {
	if _, err := OpenStore(context.Background(), &config.Config{Store: "sqlite"}); err == nil {
		t.Error("expected error for unknown store")
	}
}

func TestNewClassifierRulesOnly(t *testing.T) {
	c, err := NewClassifier(&config.Config{Classifier: "rules", ClassifierTimeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if c.Name() != "rules" {
		t.Errorf("Name = %q, want rules", c.Name())
	}
	got, err := c.Classify(context.Background(), "Broken pipe")
	if err != nil || got.Source != services.SourceRules || got.Severity != 9 {
		t.Errorf("Classify = %+v, %v", got, err)
	}
}

func TestNewClassifierWithModel(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	c, err := NewClassifier(&config.Config{Classifier: "openai:gpt-4o-mini", ClassifierTimeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if c.Name() == "rules" {
		t.Errorf("Name = %q, want a model in front of the rules", c.Name())
	}
}

func TestNewClassifierUnknown(t *testing.T) {
	if _, err := NewClassifier(&config.Config{Classifier: "gemini"}); err == nil {
		t.Error("expected error for unknown classifier")
	}
}

func TestOptionalIntegrations(t *testing.T) {
	cfg := &config.Config{}
	if NewVerifier(cfg) != nil {
		t.Error("verifier without secret")
	}
	if NewBanNotifier(cfg) != nil {
		t.Error("notifier without API key")
	}
	if NewScreener(context.Background(), cfg) != nil {
		t.Error("screener while disabled")
	}

	cfg = &config.Config{RecaptchaSecret: "s", SendGridAPIKey: "k", NoticeFromEmail: "noreply@city.example"}
	if NewVerifier(cfg) == nil || NewBanNotifier(cfg) == nil {
		t.Error("configured integrations not built")
	}
}

func TestNewLocalImageStore(t *testing.T) {
	s, err := NewImageStore(context.Background(), &config.Config{ImageStore: "local", UploadDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*services.LocalImageStore); !ok {
		t.Errorf("image store = %T", s)
	}
	if _, err := NewImageStore(context.Background(), &config.Config{ImageStore: "s3"}); err == nil {
		t.Error("expected error for unknown image store")
	}
}
