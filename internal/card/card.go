// Package card turns catalog items into presentation-ready embed cards.
package card

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/memohai/trackcard/internal/catalog"
	"github.com/memohai/trackcard/internal/linkscan"
)

// ErrNoContributors means the catalog returned an item without artists.
var ErrNoContributors = errors.New("catalog item has no contributors")

type Field struct {
	Name   string
	Value  string
	Inline bool
}

type Footer struct {
	Text    string
	IconURL string
}

// Card is the structural description of one embed.
type Card struct {
	Title     string
	URL       string
	Thumbnail string
	Fields    []Field
	Footer    Footer
}

// Assembler builds cards. FooterIcon is attached to every footer when set.
type Assembler struct {
	FooterIcon string
}

// Assemble maps items to cards one-to-one, preserving order. A single
// malformed item fails the whole batch.
func (a Assembler) Assemble(items []catalog.Item) ([]Card, error) {
	cards := make([]Card, 0, len(items))
	for _, item := range items {
		c, err := a.build(item)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", item.Kind, item.ID, err)
		}
		cards = append(cards, c)
	}
	return cards, nil
}

func (a Assembler) build(item catalog.Item) (Card, error) {
	artists, err := artistField(item.Contributors)
	if err != nil {
		return Card{}, err
	}

	c := Card{
		Title:  item.Name,
		URL:    item.URL,
		Footer: Footer{Text: "Released " + item.Collection.ReleaseDate, IconURL: a.FooterIcon},
	}
	if len(item.Images) > 0 {
		c.Thumbnail = item.Images[0].URL
	}

	if item.Kind == linkscan.KindAlbum {
		c.Fields = []Field{
			artists,
			{Name: "Tracks", Value: strconv.Itoa(item.TrackCount), Inline: true},
		}
		return c, nil
	}
	c.Fields = []Field{
		{Name: "Album", Value: link(item.Collection.Name, item.Collection.URL), Inline: true},
		artists,
	}
	return c, nil
}

func artistField(contributors []catalog.Contributor) (Field, error) {
	if len(contributors) == 0 {
		return Field{}, ErrNoContributors
	}
	name := "Artist"
	if len(contributors) > 1 {
		name = "Artists"
	}
	links := make([]string, 0, len(contributors))
	for _, c := range contributors {
		links = append(links, link(c.Name, c.URL))
	}
	return Field{Name: name, Value: strings.Join(links, ", "), Inline: true}, nil
}

func link(text, url string) string {
	return "[" + text + "](" + url + ")"
}
