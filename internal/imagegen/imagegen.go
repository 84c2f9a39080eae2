// Package imagegen hides the image synthesis provider behind Generator.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bonosa/MarsLife/internal/config"
	"github.com/bonosa/MarsLife/pkg/falapi"
	"go.uber.org/zap"
)

var ErrNoImage = errors.New("imagegen: provider returned no image")

// Generator turns a prompt into the URL of a generated image.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// New selects a Generator from cfg.Provider.
func New(cfg config.ImageGenConfig, httpClient *http.Client, logger *zap.Logger) (Generator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg.OpenAIKey, cfg.Model, "", logger), nil
	case "fal":
		client := falapi.NewClient(cfg.FalAIKey, cfg.FalEndpoint, httpClient, logger.Named("falapi"))
		return NewFal(client, cfg.PollInterval.Duration, logger), nil
	default:
		return nil, fmt.Errorf("unknown image provider %q", cfg.Provider)
	}
}

type timeoutGenerator struct {
	Generator
	timeout time.Duration
}

// WithTimeout bounds every Generate call on g. A non-positive timeout
// returns g unchanged.
func WithTimeout(g Generator, timeout time.Duration) Generator {
	if timeout <= 0 {
		return g
	}
	return timeoutGenerator{Generator: g, timeout: timeout}
}

func (t timeoutGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Generator.Generate(ctx, prompt)
}
