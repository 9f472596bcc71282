// Package discord fetches the most recent message of a Discord channel via
// the REST API.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jonesrussell/promowatch/internal/config"
	"github.com/jonesrussell/promowatch/internal/domain"
	"github.com/jonesrussell/promowatch/internal/logger"
	"github.com/jonesrussell/promowatch/internal/sources/apiclient"
)

const messagesURLFormat = "https://discord.com/api/v10/channels/%s/messages"

// ErrMessageShape is returned when a message payload misses expected fields.
var ErrMessageShape = errors.New("unexpected discord message shape")

// Source fetches posts for one Discord channel.
type Source struct {
	client *apiclient.Client
	cfg    config.DiscordSourceConfig
	log    logger.Interface
}

// New creates a Discord source.
func New(client *apiclient.Client, cfg config.DiscordSourceConfig, log logger.Interface) *Source {
	return &Source{
		client: client,
		cfg:    cfg,
		log:    log.WithComponent("source.discord"),
	}
}

// Name returns the source name.
func (s *Source) Name() string {
	return "discord:" + s.cfg.ChannelID
}

// Platform returns the platform identifier.
func (s *Source) Platform() domain.Platform {
	return domain.PlatformDiscord
}

// FetchLatest returns the newest channel message, or (nil, nil) when the
// channel is empty.
func (s *Source) FetchLatest(ctx context.Context) (*domain.Post, error) {
	var messages []message

	if s.cfg.Fixture != "" {
		if err := apiclient.ReadFixture(s.cfg.Fixture, &messages); err != nil {
			return nil, err
		}
	} else {
		query := url.Values{}
		query.Set("limit", "1")

		req := apiclient.Request{
			URL:     fmt.Sprintf(messagesURLFormat, s.cfg.ChannelID),
			Headers: map[string]string{"Authorization": s.cfg.AuthToken},
			Query:   query,
		}
		if err := s.client.GetJSON(ctx, req, &messages); err != nil {
			return nil, fmt.Errorf("discord messages fetch: %w", err)
		}
	}

	if len(messages) == 0 {
		return nil, nil
	}
	return s.normalize(messages[0])
}

// message mirrors the slice of the Discord message payload we need.
type message struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Author  struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"author"`
	Attachments []struct {
		URL string `json:"url"`
	} `json:"attachments"`
	Timestamp string `json:"timestamp"`
}

func (s *Source) normalize(msg message) (*domain.Post, error) {
	if msg.ID == "" {
		return nil, ErrMessageShape
	}

	createdAt := time.Time{}
	if msg.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, msg.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse message timestamp: %w", err)
		}
		createdAt = parsed.UTC()
	}

	mediaURL := ""
	if len(msg.Attachments) > 0 {
		mediaURL = msg.Attachments[0].URL
	}

	raw := map[string]any{}
	if data, err := json.Marshal(msg); err == nil {
		_ = json.Unmarshal(data, &raw)
	}

	return &domain.Post{
		Platform:  domain.PlatformDiscord,
		Author:    msg.Author.Username,
		AuthorURL: "https://discord.com/users/" + msg.Author.ID,
		Text:      msg.Content,
		URL: fmt.Sprintf("https://discord.com/channels/%s/%s/%s",
			s.cfg.GuildID, s.cfg.ChannelID, msg.ID),
		MediaURL:  mediaURL,
		CreatedAt: createdAt,
		Raw:       raw,
	}, nil
}
