package variant

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eugenenazirov/variant-matrix/internal/properties"
)

// PropertyResolver is the lookup capability the generator needs.
type PropertyResolver interface {
	Resolve(key, def string) properties.Resolved
	Lookup(key string) (properties.Resolved, bool)
	ResolveServerURL(environmentType, kind string) properties.Resolved
}

// Generator expands environments and carriers into variant configurations.
type Generator struct {
	resolver    PropertyResolver
	logger      *zap.Logger
	parallelism int
}

// Option configures Generator behaviour.
type Option func(*Generator)

// WithLogger sets the generator logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// WithParallelism resolves up to n carriers concurrently. Output order is unaffected.
func WithParallelism(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.parallelism = n
		}
	}
}

// NewGenerator creates a Generator backed by resolver.
func NewGenerator(resolver PropertyResolver, opts ...Option) *Generator {
	g := &Generator{
		resolver:    resolver,
		logger:      zap.NewNop(),
		parallelism: 1,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns the environment flavors in the given order followed by a
// Staging and Production flavor per carrier, in carrier order. The carrier list
// and environments are validated up front; on any ConfigurationError nothing is
// returned.
func (g *Generator) Generate(ctx context.Context, carriers []string, environments []Environment) ([]Config, error) {
	if err := Validate(carriers, environments); err != nil {
		return nil, err
	}

	out := make([]Config, 0, len(environments)+2*len(carriers))
	for _, env := range environments {
		out = append(out, g.environmentConfig(env))
	}

	perCarrier := make([][]Config, len(carriers))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(g.parallelism)
	for i, carrier := range carriers {
		i, carrier := i, carrier
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perCarrier[i] = g.carrierConfigs(carrier)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("generate variants: %w", err)
	}

	for _, configs := range perCarrier {
		out = append(out, configs...)
	}

	g.logger.Debug("variants generated",
		zap.Int("environments", len(environments)),
		zap.Int("carriers", len(carriers)),
		zap.Int("variants", len(out)),
	)
	return out, nil
}

// CommonFields resolves the fields shared by every variant.
func (g *Generator) CommonFields() []Field {
	fields := make([]Field, 0, len(CommonFieldNames))
	for _, name := range CommonFieldNames {
		fields = append(fields, fieldFrom(name, g.resolver.Resolve(name, "")))
	}
	return fields
}

// BuildTypeFields resolves the fields a build type sets on top of its flavor.
// ENVIRONMENT falls back to def and is looked up through the full chain.
func (g *Generator) BuildTypeFields(def string) []Field {
	return []Field{fieldFrom(FieldEnvironment, g.resolver.Resolve(FieldEnvironment, def))}
}

// Validate rejects empty carriers, carriers with surrounding whitespace,
// carriers whose identities collide after normalisation, and unknown or
// repeated environments. Every problem is reported.
func Validate(carriers []string, environments []Environment) error {
	var errs error

	known := make(map[Environment]bool)
	for _, env := range Environments() {
		known[env] = true
	}
	seenEnv := make(map[Environment]bool, len(environments))
	for _, env := range environments {
		switch {
		case !known[env]:
			errs = multierr.Append(errs, &ConfigurationError{Subject: "environment", Name: string(env), Reason: "unknown environment"})
		case seenEnv[env]:
			errs = multierr.Append(errs, &ConfigurationError{Subject: "environment", Name: string(env), Reason: "listed more than once"})
		}
		seenEnv[env] = true
	}

	owners := make(map[string]string, len(carriers))
	for _, carrier := range carriers {
		base := NormalizeCarrier(carrier)
		if strings.TrimSpace(base) == "" {
			errs = multierr.Append(errs, &ConfigurationError{Subject: "carrier", Name: carrier, Reason: "empty identity"})
			continue
		}
		if carrier != strings.TrimSpace(carrier) {
			errs = multierr.Append(errs, &ConfigurationError{Subject: "carrier", Name: carrier, Reason: "surrounding whitespace"})
			continue
		}
		if owner, taken := owners[base]; taken {
			errs = multierr.Append(errs, &ConfigurationError{
				Subject: "carrier",
				Name:    carrier,
				Reason:  fmt.Sprintf("identity %q already used by carrier %q", base, owner),
			})
			continue
		}
		owners[base] = carrier
	}

	return errs
}

func (g *Generator) environmentConfig(env Environment) Config {
	token := env.Token()
	return Config{
		flavor: string(env),
		kind:   KindEnvironment,
		fields: []Field{
			{Name: FieldEnvironment, Value: token, Source: SourceLiteral},
			fieldFrom(FieldSocketURL, g.resolver.ResolveServerURL(token, kindSocket)),
			fieldFrom(FieldAPIInternalURL, g.resolver.ResolveServerURL(token, kindAPIInternal)),
		},
	}
}

func (g *Generator) carrierConfigs(carrier string) []Config {
	base := NormalizeCarrier(carrier)
	upper := strings.ToUpper(carrier)

	configs := make([]Config, 0, len(Channels()))
	for _, ch := range Channels() {
		prefix := upper + "_" + ch.KeyToken
		fields := []Field{
			{Name: FieldEnvironment, Value: ch.EnvironmentValue, Source: SourceLiteral},
			{Name: FieldAppName, Value: carrier + ch.DisplaySuffix, Source: SourceLiteral},
			fieldFrom(FieldServerURL, g.resolver.Resolve(prefix+"_SERVER_URL", "")),
			fieldFrom(FieldSocketURL, g.resolver.ResolveServerURL(ch.KeyToken, kindSocket)),
			fieldFrom(FieldAPIInternalURL, g.resolver.ResolveServerURL(ch.KeyToken, kindAPIInternal)),
		}
		if r, ok := g.resolver.Lookup(prefix + "_STORE_ID"); ok {
			fields = append(fields, fieldFrom(FieldStoreID, r))
		}
		if r, ok := g.resolver.Lookup(prefix + "_STORE_PASSWORD"); ok {
			fields = append(fields, fieldFrom(FieldStorePassword, r))
		}

		configs = append(configs, Config{
			flavor:  base + ch.Name,
			kind:    KindCarrier,
			carrier: carrier,
			channel: ch.Name,
			fields:  fields,
		})
	}
	return configs
}
