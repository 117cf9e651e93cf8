package catalog

import "github.com/memohai/trackcard/internal/linkscan"

type externalURLs struct {
	Spotify string `json:"spotify"`
}

type imageObject struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type artistObject struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	ExternalURLs externalURLs `json:"external_urls"`
}

type albumObject struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	ExternalURLs externalURLs   `json:"external_urls"`
	ReleaseDate  string         `json:"release_date"`
	Images       []imageObject  `json:"images"`
	Artists      []artistObject `json:"artists"`
	TotalTracks  int            `json:"total_tracks"`
}

type trackObject struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	ExternalURLs externalURLs   `json:"external_urls"`
	Album        albumObject    `json:"album"`
	Artists      []artistObject `json:"artists"`
}

type errorObject struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func (t trackObject) item() Item {
	return Item{
		Kind: linkscan.KindTrack,
		ID:   t.ID,
		Name: t.Name,
		URL:  t.ExternalURLs.Spotify,
		Collection: Collection{
			Name:        t.Album.Name,
			URL:         t.Album.ExternalURLs.Spotify,
			ReleaseDate: t.Album.ReleaseDate,
		},
		Images:       convertImages(t.Album.Images),
		Contributors: convertArtists(t.Artists),
	}
}

func (a albumObject) item() Item {
	return Item{
		Kind: linkscan.KindAlbum,
		ID:   a.ID,
		Name: a.Name,
		URL:  a.ExternalURLs.Spotify,
		Collection: Collection{
			Name:        a.Name,
			URL:         a.ExternalURLs.Spotify,
			ReleaseDate: a.ReleaseDate,
		},
		Images:       convertImages(a.Images),
		Contributors: convertArtists(a.Artists),
		TrackCount:   a.TotalTracks,
	}
}

func convertImages(in []imageObject) []Image {
	if len(in) == 0 {
		return nil
	}
	out := make([]Image, 0, len(in))
	for _, img := range in {
		out = append(out, Image{URL: img.URL, Width: img.Width, Height: img.Height})
	}
	return out
}

func convertArtists(in []artistObject) []Contributor {
	if len(in) == 0 {
		return nil
	}
	out := make([]Contributor, 0, len(in))
	for _, a := range in {
		out = append(out, Contributor{Name: a.Name, URL: a.ExternalURLs.Spotify})
	}
	return out
}
