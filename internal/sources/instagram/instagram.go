// Package instagram fetches the most recent post of an Instagram account via
// the anonymous web profile endpoint.
package instagram

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

const (
	profileEndpoint = "https://www.instagram.com/api/v1/users/web_profile_info/"

	// Web app identifiers the profile endpoint expects with anonymous calls.
	appID    = "936619743392459"
	serverID = "1031060024"
)

// ErrProfileShape is returned when the profile payload misses expected fields.
var ErrProfileShape = errors.New("unexpected instagram profile shape")

// Source fetches posts for one Instagram account.
type Source struct {
	client *apiclient.Client
	cfg    config.AccountSource
	log    logger.Interface
}

// New creates an Instagram source.
func New(client *apiclient.Client, cfg config.AccountSource, log logger.Interface) *Source {
	return &Source{
		client: client,
		cfg:    cfg,
		log:    log.WithComponent("source.instagram"),
	}
}

// Name returns the source name.
func (s *Source) Name() string {
	return "instagram:" + s.cfg.Username
}

// Platform returns the platform identifier.
func (s *Source) Platform() domain.Platform {
	return domain.PlatformInstagram
}

// FetchLatest returns the newest timeline post, or (nil, nil) when the
// account has none.
func (s *Source) FetchLatest(ctx context.Context) (*domain.Post, error) {
	var resp profileResponse

	if s.cfg.Fixture != "" {
		if err := apiclient.ReadFixture(s.cfg.Fixture, &resp); err != nil {
			return nil, err
		}
	} else {
		req := apiclient.Request{
			URL: profileEndpoint,
			Headers: map[string]string{
				"Accept":           "*/*",
				"Accept-Language":  "en-US,en;q=0.9",
				"X-Requested-With": "XMLHttpRequest",
				"X-IG-App-ID":      appID,
				"X-Instagram-AJAX": serverID,
			},
			Query: queryFor(s.cfg.Username),
		}
		if err := s.client.GetJSON(ctx, req, &resp); err != nil {
			return nil, fmt.Errorf("instagram profile fetch: %w", err)
		}
	}

	return resp.latestPost(s.cfg.Username)
}

func queryFor(username string) url.Values {
	query := url.Values{}
	query.Set("username", username)
	return query
}

// profileResponse mirrors the slice of the web_profile_info payload we need.
type profileResponse struct {
	Data struct {
		User struct {
			Timeline struct {
				Edges []struct {
					Node timelineNode `json:"node"`
				} `json:"edges"`
			} `json:"edge_owner_to_timeline_media"`
		} `json:"user"`
	} `json:"data"`
}

type timelineNode struct {
	Shortcode  string `json:"shortcode"`
	DisplayURL string `json:"display_url"`
	TakenAt    int64  `json:"taken_at_timestamp"`
	Caption    struct {
		Edges []struct {
			Node struct {
				Text string `json:"text"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_media_to_caption"`
}

// latestPost normalizes the first timeline edge into a Post.
func (r *profileResponse) latestPost(username string) (*domain.Post, error) {
	edges := r.Data.User.Timeline.Edges
	if len(edges) == 0 {
		return nil, nil
	}

	node := edges[0].Node
	if node.Shortcode == "" {
		return nil, ErrProfileShape
	}

	text := ""
	if len(node.Caption.Edges) > 0 {
		text = node.Caption.Edges[0].Node.Text
	}

	raw := map[string]any{}
	if data, err := json.Marshal(node); err == nil {
		_ = json.Unmarshal(data, &raw)
	}

	return &domain.Post{
		Platform:  domain.PlatformInstagram,
		Author:    username,
		AuthorURL: "https://www.instagram.com/" + username + "/",
		Text:      text,
		URL:       "https://www.instagram.com/p/" + node.Shortcode + "/",
		MediaURL:  node.DisplayURL,
		CreatedAt: time.Unix(node.TakenAt, 0).UTC(),
		Raw:       raw,
	}, nil
}
