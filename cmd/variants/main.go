package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/variant-matrix/internal/application"
	"github.com/eugenenazirov/variant-matrix/internal/config"
	"github.com/eugenenazirov/variant-matrix/internal/gate"
	"github.com/eugenenazirov/variant-matrix/internal/logging"
	"github.com/eugenenazirov/variant-matrix/internal/report"
	"github.com/eugenenazirov/variant-matrix/internal/variant"
)

// Exit codes.
const (
	exitOK                 = 0
	exitConfigurationError = 1
	exitFailure            = 2
)

var signalNotify = signal.Notify

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type cli struct {
	configFile   *string
	root         *string
	carriers     *string
	environments *string
	properties   *map[string]string
	envFile      *string
	parallelism  *int
	logLevel     *string
	logFormat    *string

	list struct {
		cmd         *kingpin.CmdClause
		format      *string
		showSecrets *bool
		onlyEnabled *bool
		buildType   *string
	}
	gate struct {
		cmd       *kingpin.CmdClause
		buildType *string
		identity  *string
	}
	serve struct {
		cmd            *kingpin.CmdClause
		port           *string
		rateLimitRPS   *float64
		rateLimitBurst *int
		watch          *bool
		showSecrets    *bool
	}
}

func newCLI(stderr io.Writer) (*kingpin.Application, *cli) {
	app := kingpin.New("variants", "Build variant matrix generator - expands environments and carriers into gated build variants")
	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)

	c := &cli{}
	c.configFile = app.Flag("config", "Path to YAML or TOML configuration file").String()
	c.root = app.Flag("root", "Directory holding the property files").String()
	c.carriers = app.Flag("carriers", "Comma-separated carrier names, in generation order").String()
	c.environments = app.Flag("environments", "Comma-separated internal environments (Dev,Qa,Sandbox)").String()
	c.properties = app.Flag("property", "Override property KEY=VALUE (highest precedence, repeatable)").Short('P').StringMap()
	c.envFile = app.Flag("env-file", "Optional dotenv file backing the environment source").String()
	c.parallelism = app.Flag("parallelism", "Carriers resolved concurrently").Default("0").Int()
	c.logLevel = app.Flag("log-level", "Log level (debug, info, warn, error)").String()
	c.logFormat = app.Flag("log-format", "Log encoding (json, console)").String()

	c.list.cmd = app.Command("list", "Print the variant report").Default()
	c.list.format = c.list.cmd.Flag("format", "Output format").Default(string(report.FormatTable)).Enum(report.Formats()...)
	c.list.showSecrets = c.list.cmd.Flag("show-secrets", "Print secret values instead of ****").Bool()
	c.list.onlyEnabled = c.list.cmd.Flag("only-enabled", "Hide variants disabled by the gate").Bool()
	c.list.buildType = c.list.cmd.Flag("build-type", "Only show debug or release variants").String()

	c.gate.cmd = app.Command("gate", "Explain whether a variant is built")
	c.gate.buildType = c.gate.cmd.Arg("build-type", "debug or release").Required().String()
	c.gate.identity = c.gate.cmd.Arg("identity", "Flavor name, e.g. verizonProduction").Required().String()

	c.serve.cmd = app.Command("serve", "Serve the variant report over HTTP")
	c.serve.port = c.serve.cmd.Flag("port", "HTTP port exposed by the service").String()
	c.serve.rateLimitRPS = c.serve.cmd.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	c.serve.rateLimitBurst = c.serve.cmd.Flag("rate-limit-burst", "Burst capacity for rate limiter").Default("-1").Int()
	c.serve.watch = c.serve.cmd.Flag("watch", "Regenerate when a property file changes").Bool()
	c.serve.showSecrets = c.serve.cmd.Flag("show-secrets", "Serve secret values instead of ****").Bool()

	return app, c
}

func (c *cli) overrides() *config.CLIOverrides {
	overrides := &config.CLIOverrides{
		ConfigFile:   *c.configFile,
		Root:         c.root,
		EnvFile:      c.envFile,
		Carriers:     c.carriers,
		Environments: c.environments,
		Properties:   *c.properties,
		LogLevel:     c.logLevel,
		LogFormat:    c.logFormat,
		Watch:        c.serve.watch,
		Port:         c.serve.port,
	}

	if *c.parallelism != 0 {
		overrides.Parallelism = c.parallelism
	}

	if *c.serve.rateLimitRPS >= 0 {
		overrides.RateLimitRPS = c.serve.rateLimitRPS
	}

	if *c.serve.rateLimitBurst >= 0 {
		overrides.RateLimitBurst = c.serve.rateLimitBurst
	}

	return overrides
}

func run(args []string, stdout, stderr io.Writer) int {
	app, c := newCLI(stderr)
	command, err := app.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "variants: %v\n", err)
		return exitFailure
	}

	// the gate is pure and needs no configuration
	if command == c.gate.cmd.FullCommand() {
		return runGate(*c.gate.buildType, *c.gate.identity, stdout, stderr)
	}

	cfg, err := config.Load(c.overrides())
	if err != nil {
		fmt.Fprintf(stderr, "variants: failed to load configuration: %v\n", err)
		return exitFailure
	}

	logger, err := logging.New(logging.WithLevel(cfg.LogLevel), logging.WithFormat(cfg.LogFormat))
	if err != nil {
		fmt.Fprintf(stderr, "variants: failed to initialize logger: %v\n", err)
		return exitFailure
	}
	defer func() {
		_ = logger.Sync()
	}()

	switch command {
	case c.serve.cmd.FullCommand():
		return runServe(cfg, *c.serve.showSecrets, logger, stderr)
	default:
		return runList(cfg, listOptions{
			format:      report.Format(*c.list.format),
			showSecrets: *c.list.showSecrets,
			onlyEnabled: *c.list.onlyEnabled,
			buildType:   *c.list.buildType,
		}, logger, stdout, stderr)
	}
}

type listOptions struct {
	format      report.Format
	showSecrets bool
	onlyEnabled bool
	buildType   string
}

func runList(cfg config.Config, opts listOptions, logger *zap.Logger, stdout, stderr io.Writer) int {
	var filter report.Filter
	if opts.onlyEnabled {
		filter.Enabled = report.OnlyEnabled(true)
	}
	if opts.buildType != "" {
		bt, err := gate.ParseBuildType(opts.buildType)
		if err != nil {
			fmt.Fprintf(stderr, "variants: %v\n", err)
			return exitFailure
		}
		filter.BuildType = bt
	}

	rep, err := application.NewRunner(cfg, logger).Generate(context.Background())
	if err != nil {
		fmt.Fprintf(stderr, "variants: %v\n", err)
		return exitCode(err)
	}

	if !opts.showSecrets {
		rep = rep.Masked()
	}
	if err := report.Write(stdout, rep.Filter(filter), opts.format); err != nil {
		fmt.Fprintf(stderr, "variants: write report: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func runGate(rawBuildType, identity string, stdout, stderr io.Writer) int {
	bt, err := gate.ParseBuildType(rawBuildType)
	if err != nil {
		fmt.Fprintf(stderr, "variants: %v\n", err)
		return exitFailure
	}

	decision := gate.Decide(bt, identity)
	if decision.Enabled {
		fmt.Fprintf(stdout, "%s: enabled\n", report.VariantName(identity, bt))
	} else {
		fmt.Fprintf(stdout, "%s: disabled by %s\n", report.VariantName(identity, bt), decision.Rule)
	}
	return exitOK
}

func runServe(cfg config.Config, showSecrets bool, logger *zap.Logger, stderr io.Writer) int {
	app, err := application.New(cfg, logger, application.WithShowSecrets(showSecrets))
	if err != nil {
		logger.Error("failed to initialize application", zap.Error(err))
		return exitFailure
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := app.Regenerate(ctx); err != nil {
		fmt.Fprintf(stderr, "variants: %v\n", err)
		return exitCode(err)
	}

	if cfg.Watch {
		go func() {
			if err := app.Watch(ctx); err != nil {
				logger.Error("property watcher stopped", zap.Error(err))
			}
		}()
	}

	if err := app.Start(); err != nil {
		logger.Error("failed to start server", zap.Error(err))
		return exitFailure
	}

	shutdown(app.Server(), cancel, cfg.ShutdownGracePeriod, logger)
	return exitOK
}

func exitCode(err error) int {
	if errors.Is(err, variant.ErrConfiguration) {
		return exitConfigurationError
	}
	return exitFailure
}

// shutdown blocks until a termination signal, stops the property watcher,
// then drains the server.
func shutdown(server *http.Server, stopWatch context.CancelFunc, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	logger.Info("shutting down server", zap.Stringer("signal", sig))
	if stopWatch != nil {
		stopWatch()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
