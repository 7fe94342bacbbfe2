package clr

import (
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// probeExtensions are tried in order for every probed assembly name.
var probeExtensions = []string{".dll", ".exe", ".winmd"}

// resolver maps assembly simple names to files on disk. Only hits are
// cached, so an assembly copied into a search path later is found.
type resolver struct {
	paths []string
	cache *lru.Cache[string, string]
	log   *zap.Logger
}

func newResolver(paths []string, cacheSize int, log *zap.Logger) *resolver {
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		cache, _ = lru.New[string, string](defaultProbeCacheSize)
	}
	return &resolver{paths: paths, cache: cache, log: log}
}

// probe searches near (the referencing module's directory) and then the
// configured search paths.
func (r *resolver) probe(name, near string) (string, bool) {
	cacheKey := simpleNameKey(name) + "\x00" + near
	if path, ok := r.cache.Get(cacheKey); ok {
		return path, true
	}

	dirs := r.paths
	if near != "" {
		dirs = append([]string{near}, r.paths...)
	}

	for _, dir := range dirs {
		for _, ext := range probeExtensions {
			candidate := filepath.Join(dir, name+ext)
			info, err := os.Stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}
			r.log.Debug("assembly probe hit",
				zap.String("assembly", name),
				zap.String("path", candidate))
			r.cache.Add(cacheKey, candidate)
			return candidate, true
		}
	}

	r.log.Debug("assembly probe miss",
		zap.String("assembly", name),
		zap.Strings("dirs", dirs))
	return "", false
}
