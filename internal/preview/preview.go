// Package preview decides whether Discord already rendered a catalog link.
package preview

import "strings"

// KindLink is the embed type Discord assigns to unfurled links.
const KindLink = "link"

// SpotifyProvider is the provider name Discord reports for Spotify unfurls.
const SpotifyProvider = "Spotify"

// Descriptor is a platform-rendered preview attached to a message. Provider
// and URL are empty when Discord omitted them.
type Descriptor struct {
	Kind     string
	Provider string
	URL      string
}

// IsAlreadyRendered reports whether one of previews is a Spotify link unfurl
// whose URL contains id.
func IsAlreadyRendered(previews []Descriptor, id string) bool {
	if id == "" {
		return false
	}
	for _, p := range previews {
		if p.Kind != KindLink || p.Provider != SpotifyProvider {
			continue
		}
		if strings.Contains(p.URL, id) {
			return true
		}
	}
	return false
}
