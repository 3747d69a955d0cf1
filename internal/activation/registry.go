package activation

import (
	"fmt"

	"github.com/ignite/cdp-activation/internal/config"
	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/pkg/httpretry"
)

// ErrUnknownPlatform is returned for platform names without a client.
var ErrUnknownPlatform = domain.ErrUnknownPlatform

// NewClient builds the client for platform from cfg. A nil httpClient uses
// a default client with a 60s timeout.
func NewClient(platform domain.Platform, cfg *config.Config, httpClient httpretry.HTTPDoer) (Client, error) {
	switch platform {
	case domain.PlatformMeta:
		return NewMetaClient(cfg.Meta, httpClient), nil
	case domain.PlatformGoogle:
		return NewGoogleClient(cfg.Google, httpClient), nil
	case domain.PlatformTikTok:
		return NewTikTokClient(cfg.TikTok, httpClient), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
}

// NewClients builds a client per name, in order.
func NewClients(names []string, cfg *config.Config, httpClient httpretry.HTTPDoer) ([]Client, error) {
	clients := make([]Client, 0, len(names))
	for _, name := range names {
		p, err := domain.ParsePlatform(name)
		if err != nil {
			return nil, err
		}
		c, err := NewClient(p, cfg, httpClient)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, nil
}
