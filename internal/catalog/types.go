package catalog

import (
	"errors"
	"fmt"

	"github.com/memohai/trackcard/internal/linkscan"
)

var (
	ErrNotFound     = errors.New("catalog item not found")
	ErrUnauthorized = errors.New("catalog credentials rejected")
	ErrRateLimited  = errors.New("catalog rate limit exceeded")
)

// StatusError is returned for unexpected HTTP responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("catalog returned status %d", e.Code)
	}
	return fmt.Sprintf("catalog returned status %d: %s", e.Code, e.Message)
}

// Contributor is an artist credited on an item.
type Contributor struct {
	Name string
	URL  string
}

type Image struct {
	URL    string
	Width  int
	Height int
}

// Collection is the album a track belongs to.
type Collection struct {
	Name        string
	URL         string
	ReleaseDate string
}

// Item is the metadata fetched for one reference. For albums, Collection
// describes the album itself.
type Item struct {
	Kind         linkscan.Kind
	ID           string
	Name         string
	URL          string
	Collection   Collection
	Images       []Image
	Contributors []Contributor
	TrackCount   int
}
