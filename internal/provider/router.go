package provider

import (
	"fmt"

	"github.com/parley-ai/parley/internal/registry"
)

// Handle is a resolved route: the canonical model identifier plus the client
// that serves it.
type Handle struct {
	Model    string
	Profile  registry.Profile
	Provider Provider
}

// Router maps model identifiers (canonical or alias) to backend clients.
// It is stateless beyond the registry's alias table and the client set
// constructed from configured credentials.
type Router struct {
	reg     *registry.Registry
	clients map[string]Provider // keyed by provider family: "anthropic", "openai", ...
}

func NewRouter(reg *registry.Registry, clients map[string]Provider) *Router {
	return &Router{reg: reg, clients: clients}
}

// Route resolves model to a handle. Unknown identifiers and backends without
// configured credentials both fail here, before any network call.
func (r *Router) Route(model string) (Handle, error) {
	canonical, ok := r.reg.Resolve(model)
	if !ok {
		return Handle{}, fmt.Errorf("%w: %q", ErrNoProvider, model)
	}
	profile, _ := r.reg.Lookup(canonical)

	client, ok := r.clients[profile.Provider]
	if !ok {
		return Handle{}, fmt.Errorf("%w: %q (no %s credentials configured)",
			ErrNoProvider, model, profile.Provider)
	}
	return Handle{Model: canonical, Profile: profile, Provider: client}, nil
}

// Available reports which provider families have configured clients.
func (r *Router) Available() []string {
	out := make([]string, 0, len(r.clients))
	for name := range r.clients {
		out = append(out, name)
	}
	return out
}
