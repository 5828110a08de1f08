// Package app assembles services from configuration for the server and the
// admin CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/civicpulse/backend/internal/config"
	"github.com/civicpulse/backend/internal/llm"
	"github.com/civicpulse/backend/internal/services"
)

// OpenStore connects the configured persistence backend.
func OpenStore(ctx context.Context, cfg *config.Config) (services.Store, error) {
	switch cfg.Store {
	case "mongo":
		return services.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
	case "memory":
		log.Printf("[store] using in-memory store, snapshots in %s", cfg.DataDir)
		return services.NewPersistentMemoryStore(cfg.DataDir)
	}
	return nil, fmt.Errorf("unknown STORE %q: expected mongo or memory", cfg.Store)
}

// NewClassifier builds the rule classifier and, when a model is configured,
// puts the remote classifier in front of it.
func NewClassifier(cfg *config.Config) (*services.FallbackClassifier, error) {
	rules, err := services.BuiltinRuleSet()
	if err != nil {
		return nil, err
	}
	ruleClassifier := services.NewRuleClassifier(rules)

	provider, err := llm.ResolveProvider(cfg.Classifier, &http.Client{})
	if errors.Is(err, llm.ErrDisabled) {
		log.Printf("[classifier] remote model disabled, using keyword rules")
		return services.NewFallbackClassifier(nil, ruleClassifier, cfg.ClassifierTimeout), nil
	}
	if err != nil {
		return nil, err
	}

	log.Printf("[classifier] remote model %s with keyword fallback, timeout %s", provider.Name(), cfg.ClassifierTimeout)
	remote := services.NewRemoteClassifier(provider, rules)
	return services.NewFallbackClassifier(remote, ruleClassifier, cfg.ClassifierTimeout), nil
}

// NewImageStore returns where issue photos are written.
func NewImageStore(ctx context.Context, cfg *config.Config) (services.ImageStore, error) {
	switch cfg.ImageStore {
	case "local":
		return services.NewLocalImageStore(cfg.UploadDir, "/uploads/")
	case "gcs":
		return services.NewGCSImageStore(ctx, cfg.GCSBucket)
	}
	return nil, fmt.Errorf("unknown IMAGE_STORE %q: expected local or gcs", cfg.ImageStore)
}

// NewScreener returns the SafeSearch screener, or nil when disabled.
// A screener that fails to start is logged and skipped.
func NewScreener(ctx context.Context, cfg *config.Config) services.ImageScreener {
	if !cfg.SafeSearchEnabled {
		return nil
	}
	s, err := services.NewVisionScreener(ctx)
	if err != nil {
		log.Printf("Warning: SafeSearch disabled: %v", err)
		return nil
	}
	return s
}

// NewVerifier returns the registration challenge verifier, or nil.
func NewVerifier(cfg *config.Config) services.HumanVerifier {
	if cfg.RecaptchaSecret == "" {
		return nil
	}
	return services.NewRecaptchaVerifier(cfg.RecaptchaSecret)
}

// NewBanNotifier returns the ban email sender, or nil when unconfigured.
func NewBanNotifier(cfg *config.Config) services.BanNotifier {
	if cfg.SendGridAPIKey == "" || cfg.NoticeFromEmail == "" {
		return nil
	}
	return services.NewSendGridBanNotifier(cfg.SendGridAPIKey, cfg.NoticeFromEmail)
}
