// Package drand fetches public randomness from a drand-style HTTP beacon.
package drand

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"

	"cognosis/domain/beacon"
)

// Config holds beacon client configuration.
type Config struct {
	BaseURL string        // e.g. "https://api.drand.sh"
	Timeout time.Duration // per-request bound
	// AllowFallback lets Latest degrade to local entropy when the network
	// beacon is unreachable. Fallback rounds are marked local_fallback and
	// rejected by auditability checks downstream.
	AllowFallback bool
}

// Client implements ports.BeaconClient against a drand HTTP endpoint.
type Client struct {
	http *resty.Client
	cfg  Config
}

// New creates a beacon client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	httpClient := resty.New().
		SetHostURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: httpClient, cfg: cfg}
}

// roundResponse is the drand wire format.
type roundResponse struct {
	Round      uint64 `json:"round"`
	Randomness string `json:"randomness"`
	Signature  string `json:"signature"`
}

// Latest fetches the most recent beacon round. With AllowFallback set, a
// network failure yields a locally generated round instead of an error.
func (c *Client) Latest(ctx context.Context) (beacon.Beacon, error) {
	b, err := c.fetch(ctx, "/public/latest")
	if err == nil {
		return b, nil
	}
	if !c.cfg.AllowFallback {
		return beacon.Beacon{}, err
	}
	log.Printf("[Beacon] network beacon unavailable, generating local fallback: %v", err)
	return localFallback()
}

// Round fetches a specific beacon round. Historic rounds never fall back:
// an audit replay needs the genuine round or nothing.
func (c *Client) Round(ctx context.Context, round uint64) (beacon.Beacon, error) {
	return c.fetch(ctx, fmt.Sprintf("/public/%d", round))
}

func (c *Client) fetch(ctx context.Context, path string) (beacon.Beacon, error) {
	var payload roundResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&payload).
		Get(path)
	if err != nil {
		return beacon.Beacon{}, fmt.Errorf("beacon request: %w", err)
	}
	if resp.IsError() {
		return beacon.Beacon{}, fmt.Errorf("beacon http %d: %s", resp.StatusCode(), resp.String())
	}
	return beacon.ParseHex(payload.Round, payload.Randomness, beacon.SourceExternal)
}

// localFallback builds a beacon round from local entropy. Round 0 marks the
// value as non-replayable.
func localFallback() (beacon.Beacon, error) {
	randomness := make([]byte, beacon.RandomnessSize)
	if _, err := rand.Read(randomness); err != nil {
		return beacon.Beacon{}, fmt.Errorf("local entropy: %w", err)
	}
	log.Printf("[Beacon] local fallback round issued (randomness %s...)", hex.EncodeToString(randomness[:4]))
	return beacon.New(0, randomness, beacon.SourceLocalFallback)
}
