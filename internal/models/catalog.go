package models

import "time"

// CatalogKind identifies the upstream endpoint a cache document came from.
type CatalogKind string

const (
	KindSearch    CatalogKind = "search"
	KindArtist    CatalogKind = "artist"
	KindAlbums    CatalogKind = "artist-albums"
	KindTopTracks CatalogKind = "artist-top-tracks"
	KindAlbum     CatalogKind = "album"
	KindTrack     CatalogKind = "track"
)

// CacheDoc is a dated snapshot of one upstream catalog response.
type CacheDoc struct {
	Key       string      `bson:"_id" json:"key"`
	Kind      CatalogKind `bson:"kind" json:"kind"`
	Params    string      `bson:"params" json:"params"`
	Day       string      `bson:"day" json:"day"`
	Body      string      `bson:"body" json:"-"`
	FetchedAt time.Time   `bson:"fetched_at" json:"fetched_at"`
}

// Fresh reports whether the document is younger than ttl at now.
func (d *CacheDoc) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(d.FetchedAt) < ttl
}

type Artist struct {
	ID         string    `bson:"_id" json:"id"`
	Name       string    `bson:"name" json:"name"`
	Genres     []string  `bson:"genres,omitempty" json:"genres,omitempty"`
	Image      string    `bson:"image,omitempty" json:"image,omitempty"`
	Followers  int64     `bson:"followers" json:"followers"`
	Popularity int       `bson:"popularity" json:"popularity"`
	SyncedAt   time.Time `bson:"synced_at" json:"synced_at"`
}

type Album struct {
	ID          string    `bson:"_id" json:"id"`
	ArtistID    string    `bson:"artist_id" json:"artist_id"`
	Name        string    `bson:"name" json:"name"`
	AlbumType   string    `bson:"album_type" json:"album_type"`
	ReleaseDate string    `bson:"release_date,omitempty" json:"release_date,omitempty"`
	TotalTracks int       `bson:"total_tracks" json:"total_tracks"`
	Image       string    `bson:"image,omitempty" json:"image,omitempty"`
	SyncedAt    time.Time `bson:"synced_at" json:"synced_at"`
}

// IsSingle reports whether the album belongs in the singles collection.
func (a *Album) IsSingle() bool {
	return a.AlbumType == "single"
}

type Track struct {
	ID         string    `bson:"_id" json:"id"`
	ArtistID   string    `bson:"artist_id" json:"artist_id"`
	AlbumID    string    `bson:"album_id,omitempty" json:"album_id,omitempty"`
	Name       string    `bson:"name" json:"name"`
	DurationMS int64     `bson:"duration_ms" json:"duration_ms"`
	PreviewURL string    `bson:"preview_url,omitempty" json:"preview_url,omitempty"`
	Popularity int       `bson:"popularity" json:"popularity"`
	SyncedAt   time.Time `bson:"synced_at" json:"synced_at"`
}

// ArtistLibrary is the result of an artist sync.
type ArtistLibrary struct {
	Artist  Artist  `json:"artist"`
	Albums  []Album `json:"albums"`
	Singles []Album `json:"singles"`
	Tracks  []Track `json:"tracks"`
}

// ListeningStat aggregates plays of one track by one user.
type ListeningStat struct {
	ID         string    `bson:"_id" json:"id"`
	UserID     string    `bson:"user_id" json:"user_id"`
	TrackID    string    `bson:"track_id" json:"track_id"`
	Plays      int64     `bson:"plays" json:"plays"`
	ListenedMS int64     `bson:"listened_ms" json:"listened_ms"`
	LastPlayed time.Time `bson:"last_played" json:"last_played"`
}

func ListeningStatID(userID, trackID string) string {
	return userID + ":" + trackID
}
