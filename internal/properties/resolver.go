package properties

import (
	"sync"

	"go.uber.org/zap"
)

// Resolved is the result of a lookup: the value and the source that held it.
type Resolved struct {
	Key       string
	Value     string
	Source    string
	Defaulted bool
}

// Observer receives every resolution. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveResolution(key, source string, defaulted bool)
}

// Resolver looks keys up across an ordered list of sources. Earlier sources win.
type Resolver struct {
	sources  []Source
	logger   *zap.Logger
	observer Observer

	warned sync.Map
}

// ResolverOption configures Resolver behaviour.
type ResolverOption func(*Resolver)

// WithLogger sets the logger used for missing-property warnings.
func WithLogger(logger *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithObserver attaches a resolution observer (metrics).
func WithObserver(observer Observer) ResolverOption {
	return func(r *Resolver) {
		r.observer = observer
	}
}

// NewResolver builds a Resolver over sources in priority order. Nil sources are skipped.
func NewResolver(sources []Source, opts ...ResolverOption) *Resolver {
	r := &Resolver{logger: zap.NewNop()}
	for _, src := range sources {
		if src != nil {
			r.sources = append(r.sources, src)
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the first value found for key, or def when no source holds it.
// It never fails.
func (r *Resolver) Resolve(key, def string) Resolved {
	if v, src, ok := r.lookup(key); ok {
		r.observe(key, src, false)
		return Resolved{Key: key, Value: v, Source: src}
	}

	r.warnMissing(key, def)
	r.observe(key, SourceDefault, true)
	return Resolved{Key: key, Value: def, Source: SourceDefault, Defaulted: true}
}

// Lookup is an existence probe: it reports whether any source holds key,
// without substituting a default or logging.
func (r *Resolver) Lookup(key string) (Resolved, bool) {
	v, src, ok := r.lookup(key)
	if !ok {
		return Resolved{}, false
	}
	r.observe(key, src, false)
	return Resolved{Key: key, Value: v, Source: src}, true
}

// Exists reports whether any source holds key.
func (r *Resolver) Exists(key string) bool {
	_, _, ok := r.lookup(key)
	return ok
}

// ResolveServerURL resolves "{kind}_{environmentType}_URL" with an empty default.
func (r *Resolver) ResolveServerURL(environmentType, kind string) Resolved {
	return r.Resolve(ServerURLKey(environmentType, kind), "")
}

// ServerURLKey builds the key used by ResolveServerURL.
func ServerURLKey(environmentType, kind string) string {
	return kind + "_" + environmentType + "_URL"
}

// Sources returns the names of the configured sources in priority order.
func (r *Resolver) Sources() []string {
	names := make([]string, 0, len(r.sources))
	for _, src := range r.sources {
		names = append(names, src.Name())
	}
	return names
}

func (r *Resolver) lookup(key string) (string, string, bool) {
	for _, src := range r.sources {
		if v, ok := src.Lookup(key); ok {
			return v, src.Name(), true
		}
	}
	return "", "", false
}

func (r *Resolver) warnMissing(key, def string) {
	if _, seen := r.warned.LoadOrStore(key, struct{}{}); seen {
		r.logger.Debug("property not found, using default",
			zap.String("key", key),
			zap.String("default", def),
		)
		return
	}
	r.logger.Warn("property not found, using default",
		zap.String("key", key),
		zap.String("default", def),
	)
}

func (r *Resolver) observe(key, source string, defaulted bool) {
	if r.observer != nil {
		r.observer.ObserveResolution(key, source, defaulted)
	}
}
