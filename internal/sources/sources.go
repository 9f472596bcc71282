// Package sources defines the post source abstraction and the registry of
// enabled platform sources. Each source translates one platform's upstream
// shape into the common domain.Post representation.
package sources

import (
	"context"

	"github.com/jonesrussell/promowatch/internal/config"
	"github.com/jonesrussell/promowatch/internal/domain"
	"github.com/jonesrussell/promowatch/internal/logger"
	"github.com/jonesrussell/promowatch/internal/sources/apiclient"
	"github.com/jonesrussell/promowatch/internal/sources/discord"
	"github.com/jonesrussell/promowatch/internal/sources/facebook"
	"github.com/jonesrussell/promowatch/internal/sources/instagram"
	"github.com/jonesrussell/promowatch/internal/sources/xcom"
)

// Source fetches the most recent post for the identity it is configured with.
//
// FetchLatest returns (nil, nil) when the account simply has no posts.
// Any network failure, non-200 response, or missing upstream field is
// returned as an error; the orchestrator logs it and treats the source as
// absent for the cycle. Sources never retry — the next scheduled cycle is
// the retry.
type Source interface {
	Name() string
	Platform() domain.Platform
	FetchLatest(ctx context.Context) (*domain.Post, error)
}

// NewEnabled builds the list of sources switched on in the configuration,
// in stable enumeration order: Instagram, X, Facebook, Discord. The order
// matters downstream: candidates are claimed in this order.
func NewEnabled(cfg *config.Config, log logger.Interface) []Source {
	client := apiclient.New(cfg.Sources.UserAgent)

	var enabled []Source
	if cfg.Sources.Instagram.Enabled {
		enabled = append(enabled, instagram.New(client, cfg.Sources.Instagram, log))
	}
	if cfg.Sources.X.Enabled {
		enabled = append(enabled, xcom.New(client, cfg.Sources.X, log))
	}
	if cfg.Sources.Facebook.Enabled {
		enabled = append(enabled, facebook.New(client, cfg.Sources.Facebook, log))
	}
	if cfg.Sources.Discord.Enabled {
		enabled = append(enabled, discord.New(client, cfg.Sources.Discord, log))
	}
	return enabled
}
