package database

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry owns the configured profiles and lazily opens one Client per
// profile. Safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	profiles map[string]Profile
	clients  map[string]Client
	logger   *slog.Logger
	opener   func(Profile, *slog.Logger) (Client, error)
}

// RegistryOption is a functional option for configuring a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger handed to opened clients.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// withOpener replaces client construction for testing.
func withOpener(opener func(Profile, *slog.Logger) (Client, error)) RegistryOption {
	return func(r *Registry) {
		r.opener = opener
	}
}

// NewRegistry validates the profiles and creates a Registry. At least one
// profile is required and names must be unique.
func NewRegistry(profiles []Profile, opts ...RegistryOption) (*Registry, error) {
	if len(profiles) == 0 {
		return nil, errors.New("at least one database profile is required")
	}

	r := &Registry{
		profiles: make(map[string]Profile, len(profiles)),
		clients:  make(map[string]Client),
		logger:   slog.Default(),
		opener:   Open,
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.profiles[p.Name]; exists {
			return nil, fmt.Errorf("duplicate database profile %q", p.Name)
		}
		r.profiles[p.Name] = p
	}

	return r, nil
}

// Client returns the client for the named profile, opening it on first
// use. An empty name selects the sole configured profile, or failing that
// the one named DefaultProfileName.
func (r *Registry) Client(name string) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, err := r.resolveLocked(name)
	if err != nil {
		return nil, err
	}

	if client, ok := r.clients[profile.Name]; ok {
		return client, nil
	}

	client, err := r.opener(profile, r.logger)
	if err != nil {
		return nil, err
	}
	r.clients[profile.Name] = client

	r.logger.Debug("database client opened", "database", profile.Name, "driver", profile.Driver, "read_only", profile.ReadOnly)
	return client, nil
}

// Profile returns the named profile without opening a connection. The
// empty-name defaulting matches Client.
func (r *Registry) Profile(name string) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(name)
}

func (r *Registry) resolveLocked(name string) (Profile, error) {
	if name == "" {
		if len(r.profiles) == 1 {
			for _, p := range r.profiles {
				return p, nil
			}
		}
		if p, ok := r.profiles[DefaultProfileName]; ok {
			return p, nil
		}
		return Profile{}, fmt.Errorf("%w: no database named and no %q profile configured", ErrUnknownProfile, DefaultProfileName)
	}

	p, ok := r.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// Profiles returns the configured profiles sorted by name.
func (r *Registry) Profiles() []Profile {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close closes every opened client and forgets them. The Registry remains
// usable; subsequent Client calls reopen.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, client := range r.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database %q: %w", name, err))
		}
		delete(r.clients, name)
	}
	return errors.Join(errs...)
}
