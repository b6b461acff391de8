package catalog

import (
	"time"

	"campuschat/internal/models"

	"github.com/tidwall/gjson"
)

func firstImage(r gjson.Result) string {
	return r.Get("images.0.url").String()
}

func parseArtist(r gjson.Result, at time.Time) models.Artist {
	genres := make([]string, 0)
	for _, g := range r.Get("genres").Array() {
		genres = append(genres, g.String())
	}
	return models.Artist{
		ID:         r.Get("id").String(),
		Name:       r.Get("name").String(),
		Genres:     genres,
		Image:      firstImage(r),
		Followers:  r.Get("followers.total").Int(),
		Popularity: int(r.Get("popularity").Int()),
		SyncedAt:   at,
	}
}

// parseAlbum reads an album object. artistID falls back to the album's
// first credited artist.
func parseAlbum(r gjson.Result, artistID string, at time.Time) models.Album {
	if artistID == "" {
		artistID = r.Get("artists.0.id").String()
	}
	return models.Album{
		ID:          r.Get("id").String(),
		ArtistID:    artistID,
		Name:        r.Get("name").String(),
		AlbumType:   r.Get("album_type").String(),
		ReleaseDate: r.Get("release_date").String(),
		TotalTracks: int(r.Get("total_tracks").Int()),
		Image:       firstImage(r),
		SyncedAt:    at,
	}
}

func parseTrack(r gjson.Result, artistID, albumID string, at time.Time) models.Track {
	if artistID == "" {
		artistID = r.Get("artists.0.id").String()
	}
	if albumID == "" {
		albumID = r.Get("album.id").String()
	}
	return models.Track{
		ID:         r.Get("id").String(),
		ArtistID:   artistID,
		AlbumID:    albumID,
		Name:       r.Get("name").String(),
		DurationMS: r.Get("duration_ms").Int(),
		PreviewURL: r.Get("preview_url").String(),
		Popularity: int(r.Get("popularity").Int()),
		SyncedAt:   at,
	}
}

func parseAlbums(items gjson.Result, artistID string, at time.Time) []models.Album {
	out := make([]models.Album, 0)
	for _, item := range items.Array() {
		out = append(out, parseAlbum(item, artistID, at))
	}
	return out
}

func parseTracks(items gjson.Result, artistID, albumID string, at time.Time) []models.Track {
	out := make([]models.Track, 0)
	for _, item := range items.Array() {
		out = append(out, parseTrack(item, artistID, albumID, at))
	}
	return out
}
