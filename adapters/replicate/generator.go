// Package replicate synthesizes experiment targets through the Replicate
// prediction API.
package replicate

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/semaphore"

	"cognosis/domain/core"
	"cognosis/domain/target"
)

// Config holds Replicate adapter configuration.
type Config struct {
	BaseURL       string // default "https://api.replicate.com/v1"
	APIToken      string
	ModelVersion  string        // image model version hash
	PollInterval  time.Duration // prediction status poll cadence
	Timeout       time.Duration // per-request bound
	MaxConcurrent int64         // concurrent predictions across all sessions
}

// Generator implements target.GenerativeOracle against Replicate. Prediction
// slots are bounded by a weighted semaphore so a burst of sessions cannot
// exhaust the API quota.
type Generator struct {
	http  *resty.Client
	slots *semaphore.Weighted
	cfg   Config
}

// NewGenerator creates a Generator.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("missing Replicate API token")
	}
	if cfg.ModelVersion == "" {
		return nil, fmt.Errorf("missing model version")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.replicate.com/v1"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}

	httpClient := resty.New().
		SetHostURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Authorization", "Token "+cfg.APIToken).
		SetHeader("Content-Type", "application/json")
	return &Generator{
		http:  httpClient,
		slots: semaphore.NewWeighted(cfg.MaxConcurrent),
		cfg:   cfg,
	}, nil
}

type prediction struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Output []string `json:"output"`
	Error  string   `json:"error"`
}

// Generate synthesizes one image target from the constraints. Blocks while
// the prediction runs; the context bounds the whole wait.
func (g *Generator) Generate(ctx context.Context, constraints target.Constraints) (target.Target, error) {
	if err := g.slots.Acquire(ctx, 1); err != nil {
		return target.Target{}, fmt.Errorf("prediction slot: %w", err)
	}
	defer g.slots.Release(1)

	prompt := buildPrompt(constraints)
	pred, err := g.createPrediction(ctx, prompt, constraints.Seed)
	if err != nil {
		return target.Target{}, err
	}

	pred, err = g.waitForPrediction(ctx, pred.ID)
	if err != nil {
		return target.Target{}, err
	}
	if len(pred.Output) == 0 {
		return target.Target{}, fmt.Errorf("%w: prediction %s produced no output", core.ErrOracleUnavailable, pred.ID)
	}

	log.Printf("[Replicate] prediction %s succeeded", pred.ID)
	return target.New(target.KindGenerated, prompt, nil, pred.Output[0])
}

func (g *Generator) createPrediction(ctx context.Context, prompt string, seed *int64) (prediction, error) {
	input := map[string]any{"prompt": prompt}
	if seed != nil {
		input["seed"] = *seed
	}
	var pred prediction
	resp, err := g.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"version": g.cfg.ModelVersion,
			"input":   input,
		}).
		SetResult(&pred).
		Post("/predictions")
	if err != nil {
		return prediction{}, fmt.Errorf("%w: create prediction: %v", core.ErrOracleUnavailable, err)
	}
	if resp.IsError() {
		return prediction{}, fmt.Errorf("%w: replicate http %d: %s", core.ErrOracleUnavailable, resp.StatusCode(), resp.String())
	}
	return pred, nil
}

func (g *Generator) waitForPrediction(ctx context.Context, id string) (prediction, error) {
	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()
	for {
		var pred prediction
		resp, err := g.http.R().
			SetContext(ctx).
			SetResult(&pred).
			Get("/predictions/" + id)
		if err != nil {
			return prediction{}, fmt.Errorf("%w: poll prediction: %v", core.ErrOracleUnavailable, err)
		}
		if resp.IsError() {
			return prediction{}, fmt.Errorf("%w: replicate http %d", core.ErrOracleUnavailable, resp.StatusCode())
		}
		switch pred.Status {
		case "succeeded":
			return pred, nil
		case "failed", "canceled":
			return prediction{}, fmt.Errorf("%w: prediction %s %s: %s", core.ErrOracleUnavailable, id, pred.Status, pred.Error)
		}

		select {
		case <-ctx.Done():
			return prediction{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// buildPrompt renders the constraints as an image prompt.
func buildPrompt(c target.Constraints) string {
	parts := []string{"a vivid, unambiguous photograph"}
	if c.Category != "" {
		parts = append(parts, "of "+c.Category)
	}
	if c.Style != "" {
		parts = append(parts, "in the style of "+c.Style)
	}
	return strings.Join(parts, " ")
}
