package imagegen

import (
	"context"
	"fmt"
	"time"

	"github.com/bonosa/MarsLife/pkg/falapi"
	"go.uber.org/zap"
)

type Fal struct {
	client       *falapi.Client
	pollInterval time.Duration
	logger       *zap.Logger
}

func NewFal(client *falapi.Client, pollInterval time.Duration, logger *zap.Logger) *Fal {
	return &Fal{client: client, pollInterval: pollInterval, logger: logger.Named("fal")}
}

func (g *Fal) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Generate(ctx, falapi.GenerateRequest{
		Prompt:              prompt,
		ImageSize:           "square_hd",
		NumImages:           1,
		EnableSafetyChecker: true,
		OutputFormat:        "jpeg",
	}, g.pollInterval)
	if err != nil {
		return "", fmt.Errorf("fal generate: %w", err)
	}
	if len(resp.Images) == 0 || resp.Images[0].URL == "" {
		return "", ErrNoImage
	}
	return resp.Images[0].URL, nil
}
