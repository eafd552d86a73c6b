package container

import (
	"context"
	"fmt"
	"log"

	"cognosis/adapters/drand"
	"cognosis/adapters/excel"
	"cognosis/adapters/llm"
	"cognosis/adapters/replicate"
	"cognosis/app"
	"cognosis/domain/commitment"
	"cognosis/domain/core"
	"cognosis/domain/scoring"
	"cognosis/domain/statistics"
	"cognosis/domain/target"
	"cognosis/internal/config"
	"cognosis/ports"

	"github.com/jmoiron/sqlx"

	"cognosis/adapters/postgres"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config

	// Infrastructure
	DB *sqlx.DB

	// Repositories (data access layer)
	SessionRepo ports.SessionRepository
	TrialRepo   ports.TrialRepository

	// External oracles
	BeaconClient ports.BeaconClient
	ReportWriter ports.ReportWriter

	// Application services
	Experiments *app.ExperimentService
	Analysis    *app.AnalysisService
}

// New creates a new dependency injection container
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	return &Container{
		Config: cfg,
	}, nil
}

// InitWithDatabase initializes components that require database access
func (c *Container) InitWithDatabase(db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}

	c.DB = db

	if err := db.Ping(); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}

	c.SessionRepo = postgres.NewSessionRepository(db)
	c.TrialRepo = postgres.NewTrialRepository(db)

	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	log.Printf("Container initialized successfully with database connection")
	return nil
}

// initServices builds the beacon, oracle, and application layers on top of
// the repositories.
func (c *Container) initServices() error {
	c.BeaconClient = drand.New(drand.Config{
		BaseURL:       c.Config.Beacon.BaseURL,
		Timeout:       c.Config.Beacon.Timeout,
		AllowFallback: c.Config.Beacon.AllowFallback,
	})
	c.ReportWriter = excel.NewReportWriter()

	llmConfig := llm.Config{
		Model:          c.Config.LLM.Model,
		EmbeddingModel: c.Config.LLM.EmbeddingModel,
		APIKey:         c.Config.LLM.APIKey,
		BaseURL:        c.Config.LLM.BaseURL,
		Temperature:    c.Config.LLM.Temperature,
		MaxTokens:      c.Config.LLM.MaxTokens,
		Timeout:        c.Config.LLM.Timeout,
	}

	// Oracles are optional. A deployment without API keys still runs the
	// full protocol on the pool selector and the lexical scoring tier.
	var embedder scoring.EmbeddingOracle
	var judge scoring.JudgeOracle
	var similarity target.SimilarityOracle
	if llmConfig.APIKey != "" {
		embeddingAdapter, err := llm.NewEmbeddingAdapter(llmConfig)
		if err != nil {
			return fmt.Errorf("failed to create embedding adapter: %w", err)
		}
		judgeAdapter, err := llm.NewJudgeAdapter(llmConfig)
		if err != nil {
			return fmt.Errorf("failed to create judge adapter: %w", err)
		}
		sieveAdapter, err := llm.NewSieveAdapter(llmConfig)
		if err != nil {
			return fmt.Errorf("failed to create sieve adapter: %w", err)
		}
		embedder = embeddingAdapter
		judge = judgeAdapter
		similarity = sieveAdapter
	} else {
		log.Printf("Warning: no LLM API key configured, scoring falls back to the lexical tier")
	}

	var generative target.GenerativeOracle
	if c.Config.Replicate.APIToken != "" && c.Config.Replicate.ModelVersion != "" {
		generator, err := replicate.NewGenerator(replicate.Config{
			BaseURL:       c.Config.Replicate.BaseURL,
			APIToken:      c.Config.Replicate.APIToken,
			ModelVersion:  c.Config.Replicate.ModelVersion,
			PollInterval:  c.Config.Replicate.PollInterval,
			Timeout:       c.Config.Replicate.Timeout,
			MaxConcurrent: int64(c.Config.Replicate.MaxConcurrent),
		})
		if err != nil {
			return fmt.Errorf("failed to create replicate generator: %w", err)
		}
		generative = generator
	}

	selector := target.NewSelector(generative, similarity)
	engine := scoring.NewEngine(embedder, judge)

	experiments, err := app.NewExperimentService(
		c.SessionRepo,
		c.TrialRepo,
		c.BeaconClient,
		selector,
		engine,
		defaultTargetPool(),
		core.SystemClock{},
		app.ExperimentConfig{
			InviteTTL:        c.Config.Experiment.InviteTTL,
			Retention:        c.Config.Experiment.Retention,
			DefaultDelay:     c.Config.Experiment.Delay,
			Distractors:      c.Config.Experiment.Distractors,
			MinSimilarity:    c.Config.Experiment.MinSimilarity,
			Baseline:         c.Config.Experiment.Baseline,
			RewardBase:       c.Config.Experiment.RewardBase,
			RewardMax:        c.Config.Experiment.RewardMax,
			CommitmentScheme: commitment.SchemeOffChain,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create experiment service: %w", err)
	}
	c.Experiments = experiments

	priorVariance := statistics.DefaultScoreStd * statistics.DefaultScoreStd
	c.Analysis = app.NewAnalysisService(c.TrialRepo, c.ReportWriter, c.Config.Experiment.Baseline, priorVariance)

	return nil
}

// defaultTargetPool is the curated image set used when the generative
// oracle is absent or down. Payloads double as embedding text.
func defaultTargetPool() target.Pool {
	specs := []struct {
		payload  string
		imageRef string
	}{
		{"a red lighthouse on a rocky coast at dusk", "pool/lighthouse.png"},
		{"a steam locomotive crossing a stone viaduct", "pool/locomotive.png"},
		{"a snow-covered pine forest under a full moon", "pool/pine-forest.png"},
		{"a hot air balloon drifting over desert dunes", "pool/balloon.png"},
		{"a wooden rowboat tied to a misty lake dock", "pool/rowboat.png"},
		{"a spiral staircase inside an old clock tower", "pool/staircase.png"},
		{"a field of sunflowers facing a storm front", "pool/sunflowers.png"},
		{"an orange cat asleep on a stack of books", "pool/cat-books.png"},
	}

	pool := make(target.Pool, 0, len(specs))
	for _, s := range specs {
		t, err := target.New(target.KindImage, s.payload, nil, s.imageRef)
		if err != nil {
			// The pool is static; a bad entry is a programming error.
			panic(fmt.Sprintf("invalid pool target %q: %v", s.payload, err))
		}
		pool = append(pool, t)
	}
	return pool
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
