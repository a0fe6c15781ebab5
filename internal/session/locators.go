package session

import "github.com/lishuo8109/weibopilot/api/schemas"

// The locator table encodes the remote UI's structure. Orchestration logic
// never looks at the queries themselves; adapting to a UI change means
// touching only this file.

const (
	baseURL = "https://weibo.com"
	hotURL  = "https://weibo.com/hot"

	cookieDomain = ".weibo.com"
)

func profileURL(accountID string) string {
	return baseURL + "/u/" + accountID
}

func itemURL(ref schemas.ItemRef) string {
	return baseURL + "/" + ref.AccountID + "/" + ref.ItemID
}

func repostURL(ref schemas.ItemRef) string {
	return itemURL(ref) + "#repost"
}

func followersURL(accountID string) string {
	return baseURL + "/u/page/follow/" + accountID + "?relate=fans"
}

var (
	// Identity marker on the logged-in homepage; its title attribute is the
	// display name.
	locProfileName = schemas.XPath("profile name anchor",
		"//*[@id='app']/div[2]/div[1]/div/div[1]/div/div/div[2]/div/div[1]/a[5]/div/div/div")

	// Homepage composer.
	locComposer = schemas.CSS("composer textarea",
		"[placeholder='有什么新鲜事想分享给大家？']")
	locComposerSend = schemas.XPath("composer send button",
		"//*[@id='homeWrap']/div[1]/div/div[4]/div/div[5]/button")

	// Permalink anchor in an item's head-info block. On a feed page this
	// matches every rendered item; on a detail page, the item itself. Its
	// text is the short-form timestamp.
	locHeadInfoLink = schemas.XPath("head-info permalink",
		"//*[@class='woo-box-flex woo-box-alignCenter woo-box-justifyCenter head-info_info_2AspQ']/a")

	// Detail page: repost/comment composer and the item body.
	locRepostBox = schemas.CSS("repost textarea",
		"[placeholder='说说分享心得']")
	locCommentBox = schemas.CSS("comment textarea",
		"[placeholder='发布你的评论']")
	locDetailSend = schemas.XPath("detail send button",
		"//*[@id='composerEle']/div[2]/div/div[3]/div/button")
	locDetailText = schemas.XPath("detail body text",
		"//*[@class='detail_wbtext_4CRf9']")
	locLikeButton = schemas.XPath("like button",
		"//*[@id='app']/div[2]/div[2]/div[2]/main/div/div/div[2]/article/footer/div/div[1]/div/div[3]/div/button")

	// Detail page metadata.
	locAuthorName = schemas.XPath("author name",
		"//*[@class='ALink_default_2ibt1 head_cut_2Zcft head_name_24eEB']/span")
	locAuthorTag = schemas.XPath("author tag line",
		"//*[@class='con woo-box-item-flex']")
	locPostImages = schemas.XPath("post images",
		"//*[@class='picture picture-box_row_30Iwo']//*[@class='woo-picture-img']")
	locTrailingLink = schemas.XPath("trailing body link",
		"(//*[contains(@class,'detail_wbtext_')]//a[@target='_blank'])[last()]")

	// The three toolbar counters. Each shows its localized label until the
	// first interaction.
	locRepostCount = schemas.XPath("repost counter",
		"//*[@class='woo-box-flex woo-box-alignCenter woo-box-justifyCenter toolbar_retweet_1L_U5 toolbar_wrap_np6Ug']/span")
	locCommentCount = schemas.XPath("comment counter",
		"//*[@class='woo-box-flex woo-box-alignCenter woo-box-justifyCenter toolbar_wrap_np6Ug toolbar_cur_JoD5A']/span")
	locLikeCount = schemas.XPath("like counter",
		"//*[@class='woo-like-main toolbar_btn_Cg9tz']/span[2]")

	// Comment list entries under a detail page.
	locCommentTexts = schemas.XPath("comment texts",
		"//*[@class='con1 woo-box-item-flex']//*[@class='text']/span")

	// Profile page follow controls. Unfollow walks toggle -> menu entry ->
	// confirm dialog.
	locFollowToggle = schemas.XPath("follow toggle",
		"//*[@id='app']/div[2]/div[2]/div[2]/main/div/div/div[2]/div[2]/div[3]/span/button")
	locUnfollowEntry = schemas.XPath("unfollow menu entry",
		"//*[@id='app']/div[2]/div[2]/div[2]/main/div/div/div[2]/div[2]/div[3]/div/div/div[4]")
	locUnfollowConfirm = schemas.XPath("unfollow confirm button",
		"//*[@id='app']/div[4]/div[1]/div/div[2]/button[2]")

	// Follower page: filter dropdown, its "most recent" entry, and the user
	// cards whose hrefs carry follower ids.
	locFollowerFilter = schemas.XPath("follower filter button",
		"//*[@id='app']/div[2]/div[2]/div[2]/main/div/div/div[2]/div/div[1]/div/div/span/div/button")
	locFollowerFilterRecent = schemas.XPath("follower filter recent entry",
		"//*[@id='app']/div[2]/div[2]/div[2]/main/div/div/div[2]/div/div[1]/div/div/div/div/button[2]")
	locFollowerCards = schemas.XPath("follower cards",
		"//*[@class='ALink_none_1w6rm UserCard_item_TrVS0']")
)
