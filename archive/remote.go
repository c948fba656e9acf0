package archive

import (
	"context"
	"fmt"
	"net/http"

	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/retry"
)

const defaultUserAgent = "studycache-archive/1.0"

type remoteConfig struct {
	plainHTTP bool
	userAgent string
	credStore credentials.Store
	useDocker bool
}

// RemoteOption configures NewRemoteTarget.
type RemoteOption func(*remoteConfig)

// WithPlainHTTP enables plain HTTP (no TLS) for the registry.
// Use only for local development.
func WithPlainHTTP(enabled bool) RemoteOption {
	return func(c *remoteConfig) {
		c.plainHTTP = enabled
	}
}

// WithCredentialStore sets the credential store used for registry auth.
func WithCredentialStore(store credentials.Store) RemoteOption {
	return func(c *remoteConfig) {
		c.credStore = store
	}
}

// WithDockerConfig reads credentials from ~/.docker/config.json and
// configured credential helpers.
func WithDockerConfig() RemoteOption {
	return func(c *remoteConfig) {
		c.useDocker = true
	}
}

// WithUserAgent sets the User-Agent header sent to the registry.
func WithUserAgent(ua string) RemoteOption {
	return func(c *remoteConfig) {
		c.userAgent = ua
	}
}

// NewRemoteTarget returns a registry repository for ref
// ("host[:port]/namespace/repo") that can be passed to NewUploader.
func NewRemoteTarget(ref string, opts ...RemoteOption) (*remote.Repository, error) {
	cfg := remoteConfig{userAgent: defaultUserAgent}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.useDocker && cfg.credStore == nil {
		store, err := credentials.NewStoreFromDocker(credentials.StoreOptions{})
		if err != nil {
			return nil, fmt.Errorf("load docker credentials: %w", err)
		}
		cfg.credStore = store
	}

	repo, err := remote.NewRepository(ref)
	if err != nil {
		return nil, fmt.Errorf("parse reference %q: %w", ref, err)
	}
	repo.PlainHTTP = cfg.plainHTTP
	repo.Client = &auth.Client{
		Client: retry.DefaultClient,
		Cache:  auth.NewCache(),
		Credential: func(ctx context.Context, hostport string) (auth.Credential, error) {
			if cfg.credStore == nil {
				return auth.EmptyCredential, nil
			}
			return cfg.credStore.Get(ctx, hostport)
		},
		Header: http.Header{
			"User-Agent": []string{cfg.userAgent},
		},
	}
	return repo, nil
}
