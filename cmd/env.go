package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/apply-cli/internal/engine"
	"github.com/sells-group/apply-cli/internal/filter"
	"github.com/sells-group/apply-cli/internal/followup"
	"github.com/sells-group/apply-cli/internal/gateway"
	"github.com/sells-group/apply-cli/internal/materials"
	"github.com/sells-group/apply-cli/internal/resilience"
	"github.com/sells-group/apply-cli/internal/scheduler"
	"github.com/sells-group/apply-cli/internal/source"
	"github.com/sells-group/apply-cli/internal/store"
	"github.com/sells-group/apply-cli/internal/submit"
	"github.com/sells-group/apply-cli/pkg/anthropic"
	"github.com/sells-group/apply-cli/pkg/notion"
)

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "apply.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func initGateway() *gateway.Gateway {
	gcfg := gateway.DefaultConfig()
	if cfg.Gateway.WaitBudgetSecs > 0 {
		gcfg.WaitBudget = time.Duration(cfg.Gateway.WaitBudgetSecs) * time.Second
	}
	if cfg.Gateway.CallTimeoutSecs > 0 {
		gcfg.CallTimeout = time.Duration(cfg.Gateway.CallTimeoutSecs) * time.Second
	}
	if cfg.Gateway.DefaultRate > 0 {
		gcfg.DefaultLimit = gateway.SourceLimit{
			Rate:  cfg.Gateway.DefaultRate,
			Burst: cfg.Gateway.DefaultBurst,
		}
	}
	breakers := resilience.NewSourceBreakers(resilience.FromCircuitConfig(
		cfg.Gateway.BreakerFailures, cfg.Gateway.BreakerResetSecs))
	return gateway.New(gcfg, breakers)
}

func buildSources() ([]source.Source, error) {
	var sources []source.Source
	for _, b := range cfg.Sources.Boards {
		board, err := source.NewBoard(source.BoardOptions{
			Name:    b.Name,
			BaseURL: b.BaseURL,
			APIKey:  b.APIKey,
		})
		if err != nil {
			return nil, err
		}
		sources = append(sources, board)
	}
	for _, path := range cfg.Sources.Files {
		sources = append(sources, source.NewFile(path))
	}
	if len(sources) == 0 {
		return nil, eris.New("no sources configured (set sources.boards or sources.files)")
	}
	return sources, nil
}

func loadRules() filter.Rules {
	if _, err := os.Stat(cfg.Filter.RulesPath); err != nil {
		zap.L().Warn("rules file not found, using defaults",
			zap.String("path", cfg.Filter.RulesPath))
		return filter.DefaultRules()
	}
	rules, err := filter.LoadRules(cfg.Filter.RulesPath)
	if err != nil {
		zap.L().Warn("rules file invalid, using defaults",
			zap.String("path", cfg.Filter.RulesPath), zap.Error(err))
		return filter.DefaultRules()
	}
	return rules
}

func initChannel() (submit.Channel, error) {
	switch cfg.Submit.Channel {
	case "webform":
		return submit.NewWebform(submit.WebformOptions{
			Endpoint: cfg.Submit.Endpoint,
			APIKey:   cfg.Submit.APIKey,
		})
	case "recorder", "":
		return submit.NewRecorder(), nil
	default:
		return nil, eris.Errorf("unsupported submit channel: %s", cfg.Submit.Channel)
	}
}

func engineOptions() engine.Options {
	opts := engine.DefaultOptions()
	if cfg.Engine.Workers > 0 {
		opts.Workers = cfg.Engine.Workers
	}
	if cfg.Engine.BatchSize > 0 {
		opts.BatchSize = cfg.Engine.BatchSize
	}
	if cfg.Engine.RetryBudget > 0 {
		opts.RetryBudget = cfg.Engine.RetryBudget
	}
	if cfg.Engine.DailyLimit > 0 {
		opts.DailyLimit = cfg.Engine.DailyLimit
	}
	if cfg.Engine.FollowUpDays > 0 {
		opts.FollowUpAfter = time.Duration(cfg.Engine.FollowUpDays) * 24 * time.Hour
	}
	opts.Retry = resilience.FromRetryConfig(
		cfg.Engine.RetryBudget,
		cfg.Engine.BackoffBaseMs,
		cfg.Engine.BackoffMaxMs,
		cfg.Engine.BackoffFactor,
		cfg.Engine.BackoffJitter,
	)
	return opts
}

// pipelineEnv bundles everything a lifecycle command needs.
type pipelineEnv struct {
	Store     store.Store
	Engine    *engine.Engine
	Scheduler *scheduler.Scheduler
}

func (e *pipelineEnv) Close() {
	if e.Store != nil {
		e.Store.Close()
	}
}

func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	profile, err := materials.LoadProfile(cfg.Profile.Path)
	if err != nil {
		st.Close()
		return nil, err
	}

	ws, err := materials.NewWorkspace(cfg.Profile.ArtifactsDir)
	if err != nil {
		st.Close()
		return nil, err
	}

	if cfg.Anthropic.Key == "" {
		st.Close()
		return nil, eris.New("anthropic API key is required (APPLY_ANTHROPIC_KEY)")
	}
	ai := anthropic.NewClient(cfg.Anthropic.Key)

	tailor := materials.NewResumeTailor(ai, materials.GenConfig{
		Model:     cfg.Anthropic.SonnetModel,
		MaxTokens: cfg.Anthropic.MaxTokens,
	})
	letters := materials.NewLetterWriter(ai, materials.GenConfig{
		Model: cfg.Anthropic.HaikuModel,
	})

	channel, err := initChannel()
	if err != nil {
		st.Close()
		return nil, err
	}

	gw := initGateway()
	eng := engine.New(st, gw, filter.New(loadRules()), tailor, letters, ws, profile, channel, engineOptions())

	reg, err := buildRegistry()
	if err != nil {
		st.Close()
		return nil, err
	}

	schedOpts := scheduler.DefaultOptions()
	if cfg.Scheduler.ScanIntervalSecs > 0 {
		schedOpts.ScanInterval = time.Duration(cfg.Scheduler.ScanIntervalSecs) * time.Second
	}
	if cfg.Scheduler.LookaheadSecs > 0 {
		schedOpts.Lookahead = time.Duration(cfg.Scheduler.LookaheadSecs) * time.Second
	}
	if cfg.Scheduler.BatchSize > 0 {
		schedOpts.BatchSize = cfg.Scheduler.BatchSize
	}

	return &pipelineEnv{
		Store:     st,
		Engine:    eng,
		Scheduler: scheduler.New(st, reg, gw, schedOpts),
	}, nil
}

func buildRegistry() (*followup.Registry, error) {
	nudgeAfter := time.Duration(cfg.Engine.NudgeDays) * 24 * time.Hour
	actions := []followup.Action{
		followup.NewStatusCheck(30*time.Second, nudgeAfter),
	}

	nudge, err := followup.NewNudge(cfg.Profile.OutboxDir)
	if err != nil {
		return nil, err
	}
	actions = append(actions, nudge)

	if cfg.Notion.Token != "" && cfg.Notion.TrackerDB != "" {
		tracker, err := followup.NewTrackerUpdate(notion.NewClient(cfg.Notion.Token), cfg.Notion.TrackerDB)
		if err != nil {
			return nil, err
		}
		actions = append(actions, tracker)
	}

	return followup.NewRegistry(actions...), nil
}
