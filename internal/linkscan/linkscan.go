// Package linkscan finds Spotify catalog references in free-form chat text.
package linkscan

import (
	"regexp"
	"strings"
)

// MaxReferences bounds how many references a single message can produce.
// Discord allows ten embeds per message; three keeps catalog traffic low.
const MaxReferences = 3

// Kind is the catalog object a reference points at.
type Kind string

const (
	KindTrack Kind = "track"
	KindAlbum Kind = "album"
)

// Reference is one catalog link found in a message.
type Reference struct {
	Kind Kind
	ID   string
	// EscapedLeft and EscapedRight report whether the link was wrapped in
	// Discord's embed-suppression markup (<link>).
	EscapedLeft  bool
	EscapedRight bool
}

// Suppressed reports whether the author wrapped the link on both sides.
func (r Reference) Suppressed() bool {
	return r.EscapedLeft && r.EscapedRight
}

// Groups: 1 left marker, 2 kind, 3 id. Anything after the id is scanned
// by linkTail.
var referencePattern = regexp.MustCompile(
	`(<?)https?://open\.spotify\.com/(?:intl-[A-Za-z]{2}(?:-[A-Za-z]{2})?/)?(track|album)/([A-Za-z0-9]+)`,
)

// linkTail skips the rest of a link starting at i (query, fragment, trailing
// punctuation) and reports whether it ends with '>'. The tail ends at
// whitespace or '<', and before the scheme of the next link.
func linkTail(text string, i int) (closed bool) {
	for ; i < len(text); i++ {
		switch c := text[i]; {
		case c == '>':
			return true
		case c == '<', c == ' ', c == '\t', c == '\n', c == '\r', c == '\f', c == '\v':
			return false
		case c == 'h' && (strings.HasPrefix(text[i:], "https://") || strings.HasPrefix(text[i:], "http://")):
			return false
		}
	}
	return false
}

// Extract returns up to MaxReferences references in order of first appearance.
// Links wrapped in <...> are skipped and do not count against the limit. A
// reference repeated within the same text is reported once.
func Extract(text string) []Reference {
	return extract(text, MaxReferences)
}

func extract(text string, limit int) []Reference {
	if text == "" || limit <= 0 {
		return nil
	}
	var refs []Reference
	seen := make(map[string]struct{})
	for _, m := range referencePattern.FindAllStringSubmatchIndex(text, -1) {
		ref := Reference{
			Kind:         Kind(text[m[4]:m[5]]),
			ID:           text[m[6]:m[7]],
			EscapedLeft:  m[3] > m[2],
			EscapedRight: linkTail(text, m[1]),
		}
		if ref.Suppressed() {
			continue
		}
		key := string(ref.Kind) + ":" + ref.ID
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		refs = append(refs, ref)
		if len(refs) == limit {
			break
		}
	}
	return refs
}
