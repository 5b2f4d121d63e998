// Package authregistry picks an upstream auth identity for outbound
// requests and rotates it on failure. It only selects credentials and
// renders headers; it never performs network calls itself.
package authregistry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// ProviderType distinguishes how a provider's header is produced.
type ProviderType string

const (
	TypeAccessToken ProviderType = "access_token"
	TypeOAuth       ProviderType = "oauth"
)

// Provider is one configured auth identity, loaded from auth_roles.json.
type Provider struct {
	Name       string       `json:"-"`
	Type       ProviderType `json:"type"`
	Priority   int          `json:"priority"`
	AllowedFor []string     `json:"allowed_for"`
	Token      string       `json:"token,omitempty"`
}

type rolesFile struct {
	AuthProviders map[string]Provider `json:"auth_providers"`
}

// CredentialsLookup resolves an OAuth provider's live access token, e.g.
// from config/credentials.json. Providers of type oauth call this at
// header-render time rather than caching a token.
type CredentialsLookup func(providerName string) (token string, ok error)

const defaultCooldown = 60 * time.Second

// Registry holds the provider list and process-wide rotation state.
type Registry struct {
	mu sync.Mutex

	providers   map[string]Provider
	credentials CredentialsLookup
	cooldown    time.Duration

	currentIndex   int
	failedSet      map[string]bool
	lastRotationAt time.Time
}

// Load reads auth_roles.json and constructs a Registry. A missing file
// yields an empty, harmless registry (ChooseProvider returns nil).
func Load(path string, credentials CredentialsLookup) (*Registry, error) {
	providers := map[string]Provider{}

	b, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No auth configured; requests proceed unauthenticated.
	case err != nil:
		return nil, fmt.Errorf("authregistry: read %s: %w", path, err)
	default:
		var doc rolesFile
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, fmt.Errorf("authregistry: parse %s: %w", path, err)
		}
		for name, p := range doc.AuthProviders {
			p.Name = name
			if len(p.AllowedFor) == 0 {
				p.AllowedFor = []string{"download"}
			}
			providers[name] = p
		}
	}

	return &Registry{
		providers:   providers,
		credentials: credentials,
		cooldown:    defaultCooldown,
		failedSet:   map[string]bool{},
	}, nil
}

// providersFor returns the providers allowed for purpose, ordered
// access_token before oauth before anything else, then by priority
// ascending.
func (r *Registry) providersFor(purpose string) []Provider {
	var out []Provider
	for _, p := range r.providers {
		for _, allowed := range p.AllowedFor {
			if allowed == purpose {
				out = append(out, p)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := typeRank(out[i].Type), typeRank(out[j].Type)
		if pi != pj {
			return pi < pj
		}
		return out[i].Priority < out[j].Priority
	})
	return out
}

func typeRank(t ProviderType) int {
	switch t {
	case TypeAccessToken:
		return 0
	case TypeOAuth:
		return 1
	default:
		return 2
	}
}

// ChooseProvider returns the currently selected provider for purpose, or
// nil if none are configured.
func (r *Registry) ChooseProvider(purpose string) *Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chooseLocked(purpose)
}

func (r *Registry) chooseLocked(purpose string) *Provider {
	providers := r.providersFor(purpose)
	if len(providers) == 0 {
		return nil
	}
	if r.currentIndex >= len(providers) {
		r.currentIndex = 0
	}
	p := providers[r.currentIndex]
	return &p
}

// MarkProviderFailed records a failure and, once the rotation cooldown
// has elapsed since the last rotation, triggers one.
func (r *Registry) MarkProviderFailed(purpose, name string) {
	if name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failedSet[name] = true
	if time.Since(r.lastRotationAt) > r.cooldown {
		r.rotateLocked(purpose)
	}
}

// RotateToNextProvider advances to the next provider not in the failed
// set for purpose, scanning cyclically from current_index+1. When every
// provider has failed, it clears the failed set and restarts at 0.
func (r *Registry) RotateToNextProvider(purpose string) *Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rotateLocked(purpose)
}

func (r *Registry) rotateLocked(purpose string) *Provider {
	providers := r.providersFor(purpose)
	if len(providers) == 0 {
		return nil
	}
	if len(providers) == 1 {
		return &providers[0]
	}

	for i := 1; i <= len(providers); i++ {
		idx := (r.currentIndex + i) % len(providers)
		if !r.failedSet[providers[idx].Name] {
			r.currentIndex = idx
			r.lastRotationAt = time.Now()
			p := providers[idx]
			return &p
		}
	}

	// All providers failed: reset and start over.
	r.failedSet = map[string]bool{}
	r.currentIndex = 0
	r.lastRotationAt = time.Now()
	p := providers[0]
	return &p
}

// ResetAuthState clears rotation state entirely. Operator hook, e.g. the
// control surface's daemon-restart path.
func (r *Registry) ResetAuthState() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentIndex = 0
	r.failedSet = map[string]bool{}
	r.lastRotationAt = time.Time{}
}

// Headers renders the Authorization header map for the current provider
// serving purpose, or an empty map if none is configured or resolvable.
func (r *Registry) Headers(purpose string) map[string]string {
	p := r.ChooseProvider(purpose)
	if p == nil {
		return map[string]string{}
	}

	switch p.Type {
	case TypeAccessToken:
		if p.Token == "" {
			return map[string]string{}
		}
		return map[string]string{"Authorization": "Bearer " + p.Token}
	case TypeOAuth:
		if r.credentials == nil {
			return map[string]string{}
		}
		token, err := r.credentials(p.Name)
		if err != nil || token == "" {
			return map[string]string{}
		}
		return map[string]string{"Authorization": "Bearer " + token}
	default:
		return map[string]string{}
	}
}
