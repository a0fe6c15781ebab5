package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lishuo8109/weibopilot/api/schemas"
)

const (
	shortTimeLayout = "06-01-02 15:04"
	canonTimeLayout = "2006-01-02 15:04:05"
)

// canonTimestamp reformats the short-form timestamp shown in an item's
// head-info block into the canonical form used everywhere downstream.
func canonTimestamp(raw string) (string, error) {
	dt, err := time.Parse(shortTimeLayout, strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("timestamp %q: %w", raw, err)
	}
	return dt.Format(canonTimeLayout), nil
}

// counter suffixes used by the UI for large numbers.
var countSuffixes = []struct {
	suffix     string
	multiplier float64
}{
	{"亿", 1e8},
	{"万", 1e4},
}

// parseCount turns a toolbar counter into a number. A counter that still
// shows its localized label (no interactions yet) reads as zero; suffixed
// forms like "1.2万" are expanded.
func parseCount(raw, placeholder string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == placeholder {
		return 0
	}
	for _, s := range countSuffixes {
		if rest, found := strings.CutSuffix(raw, s.suffix); found {
			f, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
			if err != nil {
				return 0
			}
			return int(f * s.multiplier)
		}
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

// lastSegment returns the final path segment of a URL, without any fragment
// or query suffix.
func lastSegment(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	url = strings.TrimRight(url, "/")
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}

// refFromPermalink derives the (account, item) reference from a permalink of
// the form ".../<account_id>/<item_id>".
func refFromPermalink(href string) (schemas.ItemRef, error) {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	href = strings.TrimRight(href, "/")
	parts := strings.Split(href, "/")
	if len(parts) < 2 {
		return schemas.ItemRef{}, fmt.Errorf("permalink %q: too few path segments", href)
	}
	ref := schemas.ItemRef{
		AccountID: parts[len(parts)-2],
		ItemID:    parts[len(parts)-1],
	}
	if ref.AccountID == "" || ref.ItemID == "" {
		return schemas.ItemRef{}, fmt.Errorf("permalink %q: empty reference segment", href)
	}
	return ref, nil
}

// classifyVideo keeps a trailing body link only when it points at video
// content.
func classifyVideo(href string) string {
	if strings.Contains(href, "video") {
		return href
	}
	return ""
}

// diffFollowers computes the additions and removals between the previous and
// current follower snapshots, preserving encounter order.
func diffFollowers(prev, cur []string) (added, removed []string) {
	prevSet := make(map[string]struct{}, len(prev))
	for _, id := range prev {
		prevSet[id] = struct{}{}
	}
	curSet := make(map[string]struct{}, len(cur))
	for _, id := range cur {
		curSet[id] = struct{}{}
	}
	for _, id := range cur {
		if _, ok := prevSet[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range prev {
		if _, ok := curSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}
