// Package notifier announces newly found promocodes to a Discord channel
// through an incoming webhook.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonesrussell/promowatch/internal/domain"
	"github.com/jonesrussell/promowatch/internal/logger"
)

const (
	// embedColor is the site's brand green.
	embedColor = 0x6dc176

	avatarURL = "https://csgocases.com/images/avatar.jpg"

	requestTimeout = 10 * time.Second
)

// Interface announces promocodes.
type Interface interface {
	// Announce publishes the code together with the post it came from.
	Announce(ctx context.Context, code *domain.Promocode, post *domain.Post) error
}

// Discord posts a rich embed to a webhook URL.
type Discord struct {
	webhookURL string
	httpClient *http.Client
	log        logger.Interface
}

// NewDiscord creates the webhook notifier.
func NewDiscord(webhookURL string, log logger.Interface) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		log:        log.WithComponent("notifier"),
	}
}

type webhookPayload struct {
	Content string  `json:"content"`
	Embeds  []embed `json:"embeds"`
}

type embed struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Color       int         `json:"color"`
	Timestamp   string      `json:"timestamp"`
	Author      embedAuthor `json:"author"`
	Image       *embedImage `json:"image,omitempty"`
}

type embedAuthor struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url"`
}

type embedImage struct {
	URL string `json:"url"`
}

// Announce posts the promocode embed. The @everyone ping is intentional:
// codes are first-come-first-served and stale pings are worthless.
func (d *Discord) Announce(ctx context.Context, code *domain.Promocode, post *domain.Post) error {
	author := "promowatch"
	if post != nil && post.Author != "" {
		author = post.Author
	}

	payload := webhookPayload{
		Content: "@everyone",
		Embeds: []embed{
			{
				Title:       fmt.Sprintf("New promocode %s", code.Code),
				Description: fmt.Sprintf("Found in [this post](%s).", code.PostURL),
				Color:       embedColor,
				Timestamp:   time.Now().UTC().Format(time.RFC3339),
				Author: embedAuthor{
					Name:    author,
					IconURL: avatarURL,
				},
			},
		},
	}
	if post != nil && post.MediaURL != "" {
		payload.Embeds[0].Image = &embedImage{URL: post.MediaURL}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook rejected with status %d", resp.StatusCode)
	}

	d.log.Info("promocode announced", "code", code.Code)
	return nil
}

var _ Interface = (*Discord)(nil)
