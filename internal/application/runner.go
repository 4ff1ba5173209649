package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/variant-matrix/internal/config"
	"github.com/eugenenazirov/variant-matrix/internal/gate"
	"github.com/eugenenazirov/variant-matrix/internal/metrics"
	"github.com/eugenenazirov/variant-matrix/internal/properties"
	"github.com/eugenenazirov/variant-matrix/internal/report"
	"github.com/eugenenazirov/variant-matrix/internal/signing"
	"github.com/eugenenazirov/variant-matrix/internal/storage"
	"github.com/eugenenazirov/variant-matrix/internal/variant"
)

// Runner performs generation runs. Every run reloads the property files so
// a fresh resolver sees the current overrides and secrets.
type Runner struct {
	cfg       config.Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
	store     storage.Storage
	lookupEnv func(string) (string, bool)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMetrics records resolutions and runs on m.
func WithMetrics(m *metrics.Metrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithStorage makes Regenerate keep the latest report in store.
func WithStorage(store storage.Storage) RunnerOption {
	return func(r *Runner) {
		r.store = store
	}
}

// WithLookupEnv replaces the process environment lookup, primarily for tests.
func WithLookupEnv(fn func(string) (string, bool)) RunnerOption {
	return func(r *Runner) {
		r.lookupEnv = fn
	}
}

// NewRunner creates a Runner for cfg.
func NewRunner(cfg config.Config, logger *zap.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg:       cfg,
		logger:    logger,
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Generate runs one generation and returns its report.
func (r *Runner) Generate(ctx context.Context) (report.Report, error) {
	start := time.Now()
	rep, err := r.generate(ctx)
	elapsed := time.Since(start)

	if r.metrics != nil {
		result := metrics.ResultSuccess
		switch {
		case errors.Is(err, variant.ErrConfiguration):
			result = metrics.ResultConfigurationError
		case err != nil:
			result = metrics.ResultError
		}
		r.metrics.ObserveGeneration(result, elapsed, len(rep.Entries), rep.EnabledCount())
	}
	return rep, err
}

// Regenerate runs a generation and stores the report. A failed run leaves the
// previous report in place.
func (r *Runner) Regenerate(ctx context.Context) (storage.Snapshot, error) {
	if r.store == nil {
		return storage.Snapshot{}, errors.New("runner has no storage")
	}

	rep, err := r.Generate(ctx)
	if err != nil {
		r.logger.Error("variant generation failed", zap.Error(err))
		return storage.Snapshot{}, err
	}

	snap := r.store.SetReport(rep)
	r.logger.Info("variants regenerated",
		zap.Uint64("generation", snap.Generation),
		zap.Int("variants", len(rep.Entries)),
		zap.Int("enabled", rep.EnabledCount()),
	)
	return snap, nil
}

// WatchedFiles lists the property files a run reads, present or not.
func (r *Runner) WatchedFiles() []string {
	return r.chainConfig().Paths()
}

func (r *Runner) generate(ctx context.Context) (report.Report, error) {
	chain, err := properties.LoadChain(r.chainConfig())
	if err != nil {
		return report.Report{}, fmt.Errorf("load properties: %w", err)
	}
	r.logger.Debug("property sources loaded", zap.Strings("files", chain.Files()))

	resolverOpts := []properties.ResolverOption{properties.WithLogger(r.logger)}
	if r.metrics != nil {
		resolverOpts = append(resolverOpts, properties.WithObserver(r.metrics))
	}
	resolver := properties.NewResolver(chain.Sources(), resolverOpts...)

	gen := variant.NewGenerator(resolver,
		variant.WithLogger(r.logger),
		variant.WithParallelism(r.cfg.Parallelism),
	)
	configs, err := gen.Generate(ctx, r.cfg.Carriers, r.cfg.Environments)
	if err != nil {
		return report.Report{}, err
	}

	selector := signing.NewSelector(resolver, chain.Overrides, signing.DefaultDebugKeystore(), signing.DefaultReleaseFallback())
	profiles := make(map[gate.BuildType]signing.Profile, len(gate.BuildTypes()))
	buildTypeFields := make(map[gate.BuildType][]variant.Field, len(gate.BuildTypes()))
	for _, bt := range gate.BuildTypes() {
		profiles[bt] = selector.Select(bt)
		buildTypeFields[bt] = gen.BuildTypeFields(bt.DefaultEnvironment())
	}

	return report.Build(configs, report.Input{
		Sources:         resolver.Sources(),
		Common:          gen.CommonFields(),
		BuildTypeFields: buildTypeFields,
		Signing:         profiles,
	}), nil
}

func (r *Runner) chainConfig() properties.ChainConfig {
	return properties.ChainConfig{
		Root:                r.cfg.Root,
		Overrides:           r.cfg.Properties,
		SecretsFile:         r.cfg.SecretsFile,
		SecretsFallbackFile: r.cfg.SecretsFallbackFile,
		LocalFile:           r.cfg.LocalPropertiesFile,
		DotenvFile:          r.cfg.EnvFile,
		LookupEnv:           r.lookupEnv,
	}
}
