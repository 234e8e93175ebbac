package provider

import (
	"fmt"
	"sort"

	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/config"
)

// Factory opens a provider session from the loaded configuration. token is
// the credential supplied by the auth provider; backends with their own
// credential chain may ignore it.
type Factory func(cfg config.Config, token string) (Provider, error)

var registry = map[string]Factory{}

// Register binds a provider name to its factory.
func Register(name string, f Factory) {
	registry[name] = f
}

// New opens a provider session by name.
func New(name string, cfg config.Config, token string) (Provider, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", name)
	}
	return f(cfg, token)
}

// Names lists registered providers, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
