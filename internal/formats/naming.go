package formats

import (
	"regexp"
	"strings"
)

var unsafeTitleChars = regexp.MustCompile(`[^a-zA-Z0-9\-_ ]`)

// NormalizeTitle maps an asset title onto a filesystem- and URL-safe stem.
// Unsafe characters and spaces both become underscores, so the result is
// deterministic for a fixed title.
func NormalizeTitle(title string) string {
	s := unsafeTitleChars.ReplaceAllString(title, "_")
	s = strings.ReplaceAll(s, " ", "_")
	if s == "" {
		return "asset"
	}
	return s
}

// ArtifactName builds the deterministic merged artifact filename
// {normalizedTitle}_{qualityOrTag}.{ext} for a selection. This name is the
// idempotency key: repeated requests for the same (asset, tag) pair must
// converge on it.
func ArtifactName(title string, sel *Selection) string {
	stem := NormalizeTitle(title)

	quality := sel.Requested.QualityLabel
	if quality == "" {
		quality = sel.Requested.Tag
	}

	ext := "mp3"
	if !sel.AudioOnly() {
		ext = sel.Requested.Container
		if ext == "" {
			ext = "mp4"
		}
	}
	return stem + "_" + quality + "." + ext
}
