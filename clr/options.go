package clr

import "go.uber.org/zap"

// Options configures a Host.
type Options struct {
	// SearchPaths are probed, in order, for referenced assemblies that are
	// not loaded yet.
	SearchPaths []string

	// DisableAliasResolution stops exported type aliases from being walked
	// into other modules; aliases then resolve to structural references.
	DisableAliasResolution bool

	// UserStringCacheSize bounds the decoded #US cache of each module.
	UserStringCacheSize int

	// ProbeCacheSize bounds the assembly probe cache.
	ProbeCacheSize int

	// Logger receives diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

const defaultProbeCacheSize = 256

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.ProbeCacheSize <= 0 {
		o.ProbeCacheSize = defaultProbeCacheSize
	}
	return o
}
