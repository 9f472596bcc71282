// Package facebook fetches the most recent post of a Facebook page by
// parsing the JSON blobs Facebook embeds in the profile HTML.
package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/promowatch/internal/config"
	"github.com/jonesrussell/promowatch/internal/domain"
	"github.com/jonesrussell/promowatch/internal/logger"
	"github.com/jonesrussell/promowatch/internal/sources/apiclient"
)

const (
	profileURLFormat = "https://www.facebook.com/%s/"

	// timelineKey marks the embedded JSON object that carries the feed.
	timelineKey = "timeline_list_feed_units"
)

// ErrFeedShape is returned when no embedded timeline payload can be located.
var ErrFeedShape = errors.New("unexpected facebook feed shape")

// Source fetches posts for one Facebook page.
type Source struct {
	client *apiclient.Client
	cfg    config.AccountSource
	log    logger.Interface
}

// New creates a Facebook source.
func New(client *apiclient.Client, cfg config.AccountSource, log logger.Interface) *Source {
	return &Source{
		client: client,
		cfg:    cfg,
		log:    log.WithComponent("source.facebook"),
	}
}

// Name returns the source name.
func (s *Source) Name() string {
	return "facebook:" + s.cfg.Username
}

// Platform returns the platform identifier.
func (s *Source) Platform() domain.Platform {
	return domain.PlatformFacebook
}

// FetchLatest returns the newest feed story, or (nil, nil) when none.
func (s *Source) FetchLatest(ctx context.Context) (*domain.Post, error) {
	var user map[string]any

	if s.cfg.Fixture != "" {
		if err := apiclient.ReadFixture(s.cfg.Fixture, &user); err != nil {
			return nil, err
		}
	} else {
		req := apiclient.Request{
			URL: fmt.Sprintf(profileURLFormat, s.cfg.Username),
			Headers: map[string]string{
				"Accept": "text/xhtml,application/xhtml+xml,application/xml;q=0.9," +
					"image/avif,image/webp,image/apng,*/*;q=0.8",
				"Sec-Fetch-Mode": "navigate",
			},
		}
		body, err := s.client.Get(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("facebook profile fetch: %w", err)
		}

		user, err = extractTimelineUser(body)
		if err != nil {
			return nil, err
		}
	}

	return latestPost(user)
}

// extractTimelineUser scans the page's application/json script tags for the
// blob that carries the timeline feed and returns its "user" object.
func extractTimelineUser(html []byte) (map[string]any, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile html: %w", err)
	}

	var user map[string]any
	doc.Find(`script[type="application/json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var blob any
		if jsonErr := json.Unmarshal([]byte(sel.Text()), &blob); jsonErr != nil {
			return true // keep scanning
		}
		if !containsKey(blob, timelineKey) {
			return true
		}
		if found, ok := deepFind(blob, "user").(map[string]any); ok {
			user = found
			return false
		}
		return true
	})

	if user == nil {
		return nil, ErrFeedShape
	}
	return user, nil
}

// latestPost normalizes the first feed edge's comet story into a Post.
func latestPost(user map[string]any) (*domain.Post, error) {
	edges, ok := deepFind(user[timelineKey], "edges").([]any)
	if !ok || len(edges) == 0 {
		return nil, nil
	}

	sections, ok := deepFind(edges[0], "comet_sections").(map[string]any)
	if !ok {
		return nil, ErrFeedShape
	}

	story, ok := deepFind(sections["content"], "story").(map[string]any)
	if !ok {
		return nil, ErrFeedShape
	}

	author := "unknown"
	authorURL := ""
	if actors, actorsOK := story["actors"].([]any); actorsOK && len(actors) > 0 {
		if actor, actorOK := actors[0].(map[string]any); actorOK {
			if name, nameOK := actor["name"].(string); nameOK {
				author = name
			}
			authorURL, _ = actor["url"].(string)
		}
	}

	text := ""
	if message, messageOK := story["message"].(map[string]any); messageOK {
		text, _ = message["text"].(string)
	}

	postURL, _ := story["wwwURL"].(string)
	if postURL == "" {
		return nil, ErrFeedShape
	}

	mediaURL := ""
	if attachments, attachOK := story["attachments"].([]any); attachOK && len(attachments) > 0 {
		if uri, uriOK := deepFind(attachments[0], "photo_image").(map[string]any); uriOK {
			mediaURL, _ = uri["uri"].(string)
		}
	}

	createdAt := time.Time{}
	if creation, creationOK := deepFind(sections["timestamp"], "creation_time").(float64); creationOK {
		createdAt = time.Unix(int64(creation), 0).UTC()
	}

	return &domain.Post{
		Platform:  domain.PlatformFacebook,
		Author:    author,
		AuthorURL: authorURL,
		Text:      text,
		URL:       postURL,
		MediaURL:  mediaURL,
		CreatedAt: createdAt,
		Raw:       user,
	}, nil
}

// containsKey reports whether the decoded JSON value contains the key at any
// nesting depth.
func containsKey(node any, key string) bool {
	switch typed := node.(type) {
	case map[string]any:
		if _, ok := typed[key]; ok {
			return true
		}
		for _, value := range typed {
			if containsKey(value, key) {
				return true
			}
		}
	case []any:
		for _, item := range typed {
			if containsKey(item, key) {
				return true
			}
		}
	}
	return false
}

// deepFind returns the first value stored under key at any nesting depth,
// or nil when absent.
func deepFind(node any, key string) any {
	switch typed := node.(type) {
	case map[string]any:
		if value, ok := typed[key]; ok {
			return value
		}
		for _, value := range typed {
			if found := deepFind(value, key); found != nil {
				return found
			}
		}
	case []any:
		for _, item := range typed {
			if found := deepFind(item, key); found != nil {
				return found
			}
		}
	}
	return nil
}
