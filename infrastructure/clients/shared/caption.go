package shared

import (
	"strings"

	"content-publisher/domain/model"
)

// ComposeCaption joins the body with #hashtags and @mentions. Tags that
// already carry their prefix are kept as is.
func ComposeCaption(req *model.PublishRequest) string {
	if req == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	if body := strings.TrimSpace(req.Body); body != "" {
		parts = append(parts, body)
	}
	if tags := prefixed(req.Hashtags, "#"); tags != "" {
		parts = append(parts, tags)
	}
	if mentions := prefixed(req.Mentions, "@"); mentions != "" {
		parts = append(parts, mentions)
	}
	return strings.Join(parts, "\n\n")
}

// ComposeText puts the title above the caption.
func ComposeText(req *model.PublishRequest) string {
	caption := ComposeCaption(req)
	if req == nil || strings.TrimSpace(req.Title) == "" {
		return caption
	}
	if caption == "" {
		return strings.TrimSpace(req.Title)
	}
	return strings.TrimSpace(req.Title) + "\n\n" + caption
}

func prefixed(values []string, prefix string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		v = strings.TrimLeft(v, prefix)
		if v == "" {
			continue
		}
		out = append(out, prefix+strings.ReplaceAll(v, " ", ""))
	}
	return strings.Join(out, " ")
}

// Truncate cuts s to max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max == 1 {
		return string(r[:1])
	}
	return string(r[:max-1]) + "…"
}
