// Package domain provides domain models used across the application.
package domain

import (
	"strings"
	"time"
)

// Platform identifies the social network a post originated from.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformX         Platform = "x"
	PlatformFacebook  Platform = "facebook"
	PlatformDiscord   Platform = "discord"
)

// Post is the normalized representation of a single social media item,
// regardless of which platform produced it. Posts are created fresh on every
// fetch and discarded after one cycle; URL is the only stable identity.
type Post struct {
	// Platform the post was fetched from
	Platform Platform `json:"platform"`
	// Author is the account name the post was published under
	Author string `json:"author"`
	// AuthorURL links to the author's profile
	AuthorURL string `json:"author_url,omitempty"`
	// Text is the post caption or message body, empty when absent
	Text string `json:"text,omitempty"`
	// URL is the canonical permalink and the ledger's dedup key
	URL string `json:"url"`
	// MediaURL references the attached image, empty when the post has none
	MediaURL string `json:"media_url,omitempty"`
	// CreatedAt is the publication time reported by the platform
	CreatedAt time.Time `json:"created_at"`
	// Raw holds the upstream payload for diagnostics only
	Raw map[string]any `json:"-"`
}

// HasMedia reports whether the post carries an image reference.
func (p *Post) HasMedia() bool {
	return p != nil && p.MediaURL != ""
}

// MentionsKeyword reports whether the post text contains the trigger keyword,
// case-insensitively. Posts with no text never match.
func (p *Post) MentionsKeyword(keyword string) bool {
	if p == nil || p.Text == "" || keyword == "" {
		return false
	}
	return strings.Contains(strings.ToLower(p.Text), strings.ToLower(keyword))
}
