package facebook

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/promowatch/internal/domain"
)

const userFixture = `{
  "timeline_list_feed_units": {
    "edges": [
      {
        "node": {
          "comet_sections": {
            "content": {
              "story": {
                "actors": [{"name": "CSGOCases", "url": "https://www.facebook.com/csgocasescom"}],
                "message": {"text": "New PROMOCODE dropped!"},
                "wwwURL": "https://www.facebook.com/csgocasescom/posts/42",
                "attachments": [
                  {
                    "styles": {
                      "attachment": {
                        "media": {"photo_image": {"uri": "https://scontent.example.com/code.jpg"}}
                      }
                    }
                  }
                ]
              }
            },
            "timestamp": {"story": {"creation_time": 1767225600}}
          }
        }
      }
    ]
  }
}`

func decodeUser(t *testing.T, raw string) map[string]any {
	t.Helper()
	var user map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &user))
	return user
}

func TestLatestPost(t *testing.T) {
	post, err := latestPost(decodeUser(t, userFixture))
	require.NoError(t, err)
	require.NotNil(t, post)

	assert.Equal(t, domain.PlatformFacebook, post.Platform)
	assert.Equal(t, "CSGOCases", post.Author)
	assert.Equal(t, "https://www.facebook.com/csgocasescom", post.AuthorURL)
	assert.Equal(t, "New PROMOCODE dropped!", post.Text)
	assert.Equal(t, "https://www.facebook.com/csgocasescom/posts/42", post.URL)
	assert.Equal(t, "https://scontent.example.com/code.jpg", post.MediaURL)
	assert.Equal(t, 2026, post.CreatedAt.Year())
}

func TestLatestPost_EmptyFeed(t *testing.T) {
	post, err := latestPost(decodeUser(t, `{"timeline_list_feed_units":{"edges":[]}}`))
	require.NoError(t, err)
	assert.Nil(t, post)
}

func TestLatestPost_MissingStory(t *testing.T) {
	raw := `{"timeline_list_feed_units":{"edges":[{"node":{"comet_sections":{"content":{}}}}]}}`
	_, err := latestPost(decodeUser(t, raw))
	assert.ErrorIs(t, err, ErrFeedShape)
}

func TestExtractTimelineUser(t *testing.T) {
	html := `<html><body>
		<script type="application/json">{"noise": true}</script>
		<script type="application/json">{"wrapper":{"deep":{"user":` + userFixture + `}}}</script>
	</body></html>`

	user, err := extractTimelineUser([]byte(html))
	require.NoError(t, err)
	assert.Contains(t, user, "timeline_list_feed_units")
}

func TestExtractTimelineUser_NoMatch(t *testing.T) {
	_, err := extractTimelineUser([]byte(`<html><script type="application/json">{"a":1}</script></html>`))
	assert.ErrorIs(t, err, ErrFeedShape)
}

func TestDeepFind(t *testing.T) {
	node := map[string]any{"a": []any{map[string]any{"b": map[string]any{"target": "hit"}}}}

	assert.Equal(t, "hit", deepFind(node, "target"))
	assert.Nil(t, deepFind(node, "missing"))
	assert.True(t, containsKey(node, "target"))
	assert.False(t, containsKey(node, "missing"))
}
