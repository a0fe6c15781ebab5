package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lishuo8109/weibopilot/api/schemas"
)

func TestCanonTimestamp(t *testing.T) {
	got, err := canonTimestamp("24-05-17 09:30")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-17 09:30:00", got)

	got, err = canonTimestamp(" 23-12-01 23:59 ")
	require.NoError(t, err)
	assert.Equal(t, "2023-12-01 23:59:00", got)

	_, err = canonTimestamp("yesterday")
	assert.Error(t, err)
	_, err = canonTimestamp("2024-05-17 09:30")
	assert.Error(t, err)
}

func TestParseCount(t *testing.T) {
	assert.Equal(t, 0, parseCount("转发", "转发"))
	assert.Equal(t, 0, parseCount("评论", "评论"))
	assert.Equal(t, 0, parseCount("赞", "赞"))
	assert.Equal(t, 0, parseCount("", "赞"))
	assert.Equal(t, 42, parseCount("42", "转发"))
	assert.Equal(t, 12000, parseCount("1.2万", "赞"))
	assert.Equal(t, 300000000, parseCount("3亿", "赞"))
	// Garbage reads as zero rather than failing the whole fetch.
	assert.Equal(t, 0, parseCount("many", "赞"))
}

func TestLastSegment(t *testing.T) {
	assert.Equal(t, "789", lastSegment("https://weibo.com/123/789"))
	assert.Equal(t, "789", lastSegment("https://weibo.com/123/789/"))
	assert.Equal(t, "789", lastSegment("https://weibo.com/123/789?type=comment"))
	assert.Equal(t, "789", lastSegment("https://weibo.com/123/789#repost"))
	assert.Equal(t, "u123", lastSegment("https://weibo.com/u/page/follow/u123"))
}

func TestRefFromPermalink(t *testing.T) {
	ref, err := refFromPermalink("https://weibo.com/123/789")
	require.NoError(t, err)
	assert.Equal(t, schemas.ItemRef{AccountID: "123", ItemID: "789"}, ref)

	ref, err = refFromPermalink("https://weibo.com/123/789#repost")
	require.NoError(t, err)
	assert.Equal(t, "789", ref.ItemID)

	_, err = refFromPermalink("789")
	assert.Error(t, err)
}

func TestClassifyVideo(t *testing.T) {
	assert.Equal(t, "https://video.weibo.com/show?id=1", classifyVideo("https://video.weibo.com/show?id=1"))
	assert.Equal(t, "", classifyVideo("https://weibo.com/some/article"))
	assert.Equal(t, "", classifyVideo(""))
}

func TestDiffFollowers(t *testing.T) {
	added, removed := diffFollowers([]string{"a", "b", "c"}, []string{"b", "c", "d"})
	assert.Equal(t, []string{"d"}, added)
	assert.Equal(t, []string{"a"}, removed)

	added, removed = diffFollowers([]string{"a"}, []string{"a"})
	assert.Empty(t, added)
	assert.Empty(t, removed)

	added, removed = diffFollowers(nil, []string{"a", "b"})
	assert.Equal(t, []string{"a", "b"}, added)
	assert.Empty(t, removed)
}
