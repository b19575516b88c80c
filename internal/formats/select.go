// Package formats implements rendition selection and deterministic artifact
// naming. Everything here is side-effect-free: for a fixed format list the
// outcome never depends on input order beyond documented tie-breaking.
package formats

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ytdlder/ytdlder/internal/errs"
	"github.com/ytdlder/ytdlder/internal/provider"
)

var (
	// ErrFormatNotFound is returned when the requested tag matches no entry.
	ErrFormatNotFound = errs.E(errs.NotFound, "requested format not found", nil)
	// ErrNoAudioAvailable is returned when the chosen video format lacks
	// embedded audio and no standalone audio format exists.
	ErrNoAudioAvailable = errs.E(errs.NotFound, "no audio available for this video", nil)
)

// Selection is the outcome of resolving a download request against an
// asset's format list.
type Selection struct {
	// Requested is the format matched by the caller's tag.
	Requested provider.MediaFormat
	// Audio is the standalone audio rendition to merge in. Nil when the
	// requested format already carries audio or is itself audio-only.
	Audio *provider.MediaFormat
}

// AudioOnly reports whether the request produces an audio-only artifact.
func (s *Selection) AudioOnly() bool { return s.Requested.AudioOnly() }

// SelfContained reports whether the requested video format already embeds
// audio, making the merge stage a plain rename.
func (s *Selection) SelfContained() bool {
	return s.Requested.HasVideo && s.Requested.HasAudio
}

// Select resolves the requested tag and, where needed, the best standalone
// audio rendition.
func Select(list []provider.MediaFormat, tag string) (*Selection, error) {
	var requested *provider.MediaFormat
	for i := range list {
		if list[i].Tag == tag {
			requested = &list[i]
			break
		}
	}
	if requested == nil {
		return nil, ErrFormatNotFound
	}

	sel := &Selection{Requested: *requested}
	if sel.AudioOnly() || sel.SelfContained() {
		return sel, nil
	}

	audio := BestAudio(list)
	if audio == nil {
		return nil, ErrNoAudioAvailable
	}
	sel.Audio = audio
	return sel, nil
}

// BestAudio picks the best standalone audio format, or nil if none exists.
// Ranking: presence of a quality label, quality descending, frame rate
// descending, byte size or bitrate descending; ties keep first occurrence.
func BestAudio(list []provider.MediaFormat) *provider.MediaFormat {
	var best *provider.MediaFormat
	for i := range list {
		f := &list[i]
		if !f.AudioOnly() {
			continue
		}
		if best == nil || less(best, f) {
			best = f
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// SortByQuality orders formats best-first by the shared ranking policy.
// The sort is stable so equal formats keep their input order.
func SortByQuality(list []provider.MediaFormat) {
	sort.SliceStable(list, func(i, j int) bool {
		return less(&list[j], &list[i])
	})
}

// less reports whether b ranks strictly higher than a.
func less(a, b *provider.MediaFormat) bool {
	aLabel, bLabel := a.QualityLabel != "", b.QualityLabel != ""
	if aLabel != bLabel {
		return bLabel
	}
	if qa, qb := qualityHeight(a.QualityLabel), qualityHeight(b.QualityLabel); qa != qb {
		return qb > qa
	}
	if a.FPS != b.FPS {
		return b.FPS > a.FPS
	}
	return measure(b) > measure(a)
}

// qualityHeight parses the numeric prefix of labels like "1080p60".
func qualityHeight(label string) int {
	cut, _, _ := strings.Cut(label, "p")
	n, err := strconv.Atoi(cut)
	if err != nil {
		return 0
	}
	return n
}

// measure is the byte-size-or-bitrate magnitude used as the final tiebreak.
func measure(f *provider.MediaFormat) int64 {
	if f.ContentLength > 0 {
		return f.ContentLength
	}
	return int64(f.Bitrate)
}
