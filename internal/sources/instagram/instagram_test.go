package instagram

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/promowatch/internal/domain"
)

const profileFixture = `{
  "data": {
    "user": {
      "edge_owner_to_timeline_media": {
        "edges": [
          {
            "node": {
              "shortcode": "DEF123abc",
              "display_url": "https://cdn.example.com/code.jpg",
              "taken_at_timestamp": 1767225600,
              "edge_media_to_caption": {
                "edges": [{"node": {"text": "Check the new PROMOCODE!"}}]
              }
            }
          }
        ]
      }
    }
  }
}`

func TestLatestPost(t *testing.T) {
	var resp profileResponse
	require.NoError(t, json.Unmarshal([]byte(profileFixture), &resp))

	post, err := resp.latestPost("csgocasescom")
	require.NoError(t, err)
	require.NotNil(t, post)

	assert.Equal(t, domain.PlatformInstagram, post.Platform)
	assert.Equal(t, "csgocasescom", post.Author)
	assert.Equal(t, "https://www.instagram.com/p/DEF123abc/", post.URL)
	assert.Equal(t, "https://cdn.example.com/code.jpg", post.MediaURL)
	assert.Equal(t, "Check the new PROMOCODE!", post.Text)
	assert.True(t, post.HasMedia())
	assert.True(t, post.MentionsKeyword("promocode"))
}

func TestLatestPost_EmptyTimeline(t *testing.T) {
	var resp profileResponse
	require.NoError(t, json.Unmarshal([]byte(`{"data":{"user":{"edge_owner_to_timeline_media":{"edges":[]}}}}`), &resp))

	post, err := resp.latestPost("csgocasescom")
	require.NoError(t, err)
	assert.Nil(t, post)
}

func TestLatestPost_MissingShortcode(t *testing.T) {
	var resp profileResponse
	raw := `{"data":{"user":{"edge_owner_to_timeline_media":{"edges":[{"node":{"display_url":"x"}}]}}}}`
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))

	_, err := resp.latestPost("csgocasescom")
	assert.ErrorIs(t, err, ErrProfileShape)
}
