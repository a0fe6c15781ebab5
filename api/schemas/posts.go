package schemas

import "time"

// Post is the full record produced by a single-item fetch. Immutable once
// returned.
type Post struct {
	Ref       ItemRef `json:"ref"`
	Author    string  `json:"username"`
	AuthorTag string  `json:"user_tag"`
	// Timestamp is canonicalized to "2006-01-02 15:04:05".
	Timestamp string   `json:"time"`
	Text      string   `json:"text"`
	Images    []string `json:"imgs"`
	Video     string   `json:"video,omitempty"`

	RepostCount  int `json:"repost_num"`
	CommentCount int `json:"comment_num"`
	LikeCount    int `json:"like_num"`

	// Comments holds up to the requested number of top comment texts, in the
	// order they were first seen.
	Comments []string `json:"comment"`

	FetchedAt time.Time `json:"browse_time"`
}

// PostView is the flattened projection handed to callers of GetState and
// GetRecord.
type PostView struct {
	AccountID string   `json:"uid"`
	ItemID    string   `json:"weibo_id"`
	Author    string   `json:"user_name"`
	AuthorTag string   `json:"user_tag"`
	Timestamp string   `json:"time"`
	Text      string   `json:"text"`
	Images    []string `json:"img"`
	Video     string   `json:"video,omitempty"`
	Like      int      `json:"like"`
	Comment   int      `json:"comment"`
	Repost    int      `json:"repost"`
}

// View projects the post into the caller-facing shape.
func (p *Post) View() PostView {
	return PostView{
		AccountID: p.Ref.AccountID,
		ItemID:    p.Ref.ItemID,
		Author:    p.Author,
		AuthorTag: p.AuthorTag,
		Timestamp: p.Timestamp,
		Text:      p.Text,
		Images:    p.Images,
		Video:     p.Video,
		Like:      p.LikeCount,
		Comment:   p.CommentCount,
		Repost:    p.RepostCount,
	}
}

// StateView is the composite feed snapshot returned by GetState.
type StateView struct {
	PostsFromFollowings []PostView `json:"post_from_followings"`
	PostsFromRecommends []PostView `json:"post_from_recommends"`
}

// Engagement distills a single item's feedback: the three counters plus the
// raw comment texts.
type Engagement struct {
	Like         int      `json:"like"`
	Comment      int      `json:"comment"`
	Repost       int      `json:"repost"`
	CommentTexts []string `json:"comment_content"`
}
