package cfg

import (
	"sync"
)

var (
	loader     Loader
	loaderOnce sync.Once
)

// Loader resolves the crawler configuration from some source: a yaml file
// in deployments, a fixture in tests.
type Loader interface {
	Load() (*Config, error)
}

// NewLoader pins the first loader it is handed; later calls keep returning
// that one, so the whole process reads a single configuration source.
func NewLoader(l Loader) (Loader, error) {
	loaderOnce.Do(func() {
		loader = l
	})
	return loader, nil
}
