// Package xcom fetches the most recent post of an X (Twitter) account through
// the web client's GraphQL endpoints, authenticated with session tokens.
package xcom

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonesrussell/promowatch/internal/config"
	"github.com/jonesrussell/promowatch/internal/domain"
	"github.com/jonesrussell/promowatch/internal/logger"
	"github.com/jonesrussell/promowatch/internal/sources/apiclient"
)

const (
	profileQueryURL = "https://x.com/i/api/graphql/vqu78dKcEkW-UAYLw5rriA/" +
		"useFetchProfileSections_canViewExpandedProfileQuery"
	userTweetsURL = "https://x.com/i/api/graphql/Y9WM4Id6UcGFE8Z-hbnixw/UserTweets"

	// Public bearer token the web client ships with.
	bearerToken = "Bearer AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D" +
		"1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"

	tweetCount = 20
)

// featureFlags is the feature set the UserTweets query demands; the endpoint
// rejects requests that omit entries, so the whole blob is sent verbatim.
const featureFlags = `{"profile_label_improvements_pcf_label_in_post_enabled":true,` +
	`"rweb_tipjar_consumption_enabled":true,"responsive_web_graphql_exclude_directive_enabled":true,` +
	`"verified_phone_label_enabled":false,"creator_subscriptions_tweet_preview_api_enabled":true,` +
	`"responsive_web_graphql_timeline_navigation_enabled":true,` +
	`"responsive_web_graphql_skip_user_profile_image_extensions_enabled":false,` +
	`"premium_content_api_read_enabled":false,"communities_web_enable_tweet_community_results_fetch":true,` +
	`"c9s_tweet_anatomy_moderator_badge_enabled":true,"responsive_web_grok_analyze_button_fetch_trends_enabled":false,` +
	`"responsive_web_grok_analyze_post_followups_enabled":true,"responsive_web_jetfuel_frame":false,` +
	`"responsive_web_grok_share_attachment_enabled":true,"articles_preview_enabled":true,` +
	`"responsive_web_edit_tweet_api_enabled":true,"graphql_is_translatable_rweb_tweet_is_translatable_enabled":true,` +
	`"view_counts_everywhere_api_enabled":true,"longform_notetweets_consumption_enabled":true,` +
	`"responsive_web_twitter_article_tweet_consumption_enabled":true,"tweet_awards_web_tipping_enabled":false,` +
	`"responsive_web_grok_analysis_button_from_backend":true,"creator_subscriptions_quote_tweet_preview_enabled":false,` +
	`"freedom_of_speech_not_reach_fetch_enabled":true,"standardized_nudges_misinfo":true,` +
	`"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled":true,` +
	`"rweb_video_timestamps_enabled":true,"longform_notetweets_rich_text_read_enabled":true,` +
	`"longform_notetweets_inline_media_enabled":true,"responsive_web_grok_image_annotation_enabled":false,` +
	`"responsive_web_enhance_cards_enabled":false}`

// ErrTimelineShape is returned when the timeline payload misses expected fields.
var ErrTimelineShape = errors.New("unexpected x timeline shape")

// Source fetches posts for one X account.
type Source struct {
	client *apiclient.Client
	cfg    config.XSource
	log    logger.Interface

	// userID is resolved once per source lifetime; the rest ID of an
	// account never changes.
	userID string
}

// New creates an X source.
func New(client *apiclient.Client, cfg config.XSource, log logger.Interface) *Source {
	return &Source{
		client: client,
		cfg:    cfg,
		log:    log.WithComponent("source.x"),
	}
}

// Name returns the source name.
func (s *Source) Name() string {
	return "x:" + s.cfg.Username
}

// Platform returns the platform identifier.
func (s *Source) Platform() domain.Platform {
	return domain.PlatformX
}

// FetchLatest returns the newest timeline tweet, or (nil, nil) when none.
func (s *Source) FetchLatest(ctx context.Context) (*domain.Post, error) {
	var resp timelineResponse

	if s.cfg.Fixture != "" {
		if err := apiclient.ReadFixture(s.cfg.Fixture, &resp); err != nil {
			return nil, err
		}
	} else {
		if s.userID == "" {
			userID, err := s.resolveUserID(ctx)
			if err != nil {
				return nil, err
			}
			s.userID = userID
		}

		variables, err := json.Marshal(map[string]any{
			"userId":                                 s.userID,
			"count":                                  tweetCount,
			"includePromotedContent":                 false,
			"withQuickPromoteEligibilityTweetFields": true,
			"withVoice":                              true,
			"withV2Timeline":                         true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode variables: %w", err)
		}

		query := url.Values{}
		query.Set("variables", string(variables))
		query.Set("features", featureFlags)
		query.Set("fieldToggles", `{"withArticlePlainText":false}`)

		if fetchErr := s.client.GetJSON(ctx, s.graphqlRequest(userTweetsURL, query), &resp); fetchErr != nil {
			return nil, fmt.Errorf("x timeline fetch: %w", fetchErr)
		}
	}

	return resp.latestPost(s.cfg.Username)
}

// resolveUserID translates the screen name into the numeric rest ID. The
// profile query returns a base64 "UserResults:<id>" token.
func (s *Source) resolveUserID(ctx context.Context) (string, error) {
	variables, err := json.Marshal(map[string]string{"screenName": s.cfg.Username})
	if err != nil {
		return "", fmt.Errorf("failed to encode variables: %w", err)
	}

	query := url.Values{}
	query.Set("variables", string(variables))

	var resp struct {
		Data struct {
			UserResult struct {
				ID string `json:"id"`
			} `json:"user_result_by_screen_name"`
		} `json:"data"`
	}
	if fetchErr := s.client.GetJSON(ctx, s.graphqlRequest(profileQueryURL, query), &resp); fetchErr != nil {
		return "", fmt.Errorf("x user lookup: %w", fetchErr)
	}

	decoded, err := base64.StdEncoding.DecodeString(resp.Data.UserResult.ID)
	if err != nil {
		return "", fmt.Errorf("failed to decode user id token: %w", err)
	}

	userID := strings.TrimPrefix(string(decoded), "UserResults:")
	if userID == "" {
		return "", ErrTimelineShape
	}
	return userID, nil
}

func (s *Source) graphqlRequest(endpoint string, query url.Values) apiclient.Request {
	return apiclient.Request{
		URL: endpoint,
		Headers: map[string]string{
			"Authorization": bearerToken,
			"X-Csrf-Token":  s.cfg.CSRFToken,
		},
		Query: query,
		Cookies: []*http.Cookie{
			{Name: "auth_token", Value: s.cfg.AuthToken},
			{Name: "ct0", Value: s.cfg.CSRFToken},
		},
	}
}

// timelineResponse walks the deeply nested UserTweets payload with untyped
// maps; the shape shifts too often between deploys for fixed structs.
type timelineResponse struct {
	Data map[string]any `json:"data"`
}

// latestPost digs the first timeline entry out of the instructions list and
// normalizes its legacy tweet record.
func (r *timelineResponse) latestPost(username string) (*domain.Post, error) {
	instructions, ok := dig[[]any](r.Data,
		"user", "result", "timeline_v2", "timeline", "instructions")
	if !ok || len(instructions) < 2 {
		return nil, ErrTimelineShape
	}

	pinned, ok := instructions[1].(map[string]any)
	if !ok {
		return nil, ErrTimelineShape
	}
	entries, ok := dig[[]any](pinned, "entries")
	if !ok || len(entries) == 0 {
		return nil, nil
	}

	entry, ok := entries[0].(map[string]any)
	if !ok {
		return nil, ErrTimelineShape
	}
	content, ok := dig[map[string]any](entry, "content")
	if !ok {
		return nil, ErrTimelineShape
	}

	// Modules (e.g. conversation threads) nest the tweet one level deeper.
	if _, hasItem := content["itemContent"]; !hasItem {
		items, itemsOK := dig[[]any](content, "items")
		if !itemsOK || len(items) == 0 {
			return nil, ErrTimelineShape
		}
		first, firstOK := items[0].(map[string]any)
		if !firstOK {
			return nil, ErrTimelineShape
		}
		content, ok = dig[map[string]any](first, "item")
		if !ok {
			return nil, ErrTimelineShape
		}
	}

	legacy, ok := dig[map[string]any](content, "itemContent", "tweet_results", "result", "legacy")
	if !ok {
		return nil, ErrTimelineShape
	}

	idStr, _ := legacy["id_str"].(string)
	text, _ := legacy["full_text"].(string)

	createdAt := time.Time{}
	if createdStr, createdOK := legacy["created_at"].(string); createdOK {
		if parsed, parseErr := time.Parse(time.RubyDate, createdStr); parseErr == nil {
			createdAt = parsed.UTC()
		}
	}

	mediaURL := ""
	if media, mediaOK := dig[[]any](legacy, "entities", "media"); mediaOK && len(media) > 0 {
		if first, firstOK := media[0].(map[string]any); firstOK {
			mediaURL, _ = first["media_url_https"].(string)
		}
	}

	return &domain.Post{
		Platform:  domain.PlatformX,
		Author:    username,
		AuthorURL: "https://x.com/" + username,
		Text:      text,
		URL:       fmt.Sprintf("https://x.com/%s/status/%s", username, idStr),
		MediaURL:  mediaURL,
		CreatedAt: createdAt,
		Raw:       legacy,
	}, nil
}

// dig walks nested maps by key and asserts the final value's type.
func dig[T any](m map[string]any, keys ...string) (T, bool) {
	var zero T

	current := any(m)
	for _, key := range keys {
		node, ok := current.(map[string]any)
		if !ok {
			return zero, false
		}
		current, ok = node[key]
		if !ok {
			return zero, false
		}
	}

	value, ok := current.(T)
	return value, ok
}
