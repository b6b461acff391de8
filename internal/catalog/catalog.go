// Package catalog reads the music catalog through a day-keyed document cache
// and keeps the local artist library and listening statistics.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"campuschat/internal/config"
	"campuschat/internal/metrics"
	"campuschat/internal/models"
	"campuschat/internal/store"
	"campuschat/pkg/logger"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
)

// Fetcher performs upstream catalog reads.
type Fetcher interface {
	Fetch(ctx context.Context, path string, query url.Values) ([]byte, error)
}

type Service struct {
	fetcher Fetcher
	cache   store.Catalog
	stats   store.ListeningStats
	ttl     time.Duration
	market  string
	group   singleflight.Group
	now     func() time.Time
}

// SearchResult groups search hits by type.
type SearchResult struct {
	Artists []models.Artist `json:"artists"`
	Albums  []models.Album  `json:"albums"`
	Tracks  []models.Track  `json:"tracks"`
}

// AlbumDetail is an album with its track listing.
type AlbumDetail struct {
	models.Album
	Tracks []models.Track `json:"tracks"`
}

var searchTypes = map[string]bool{"artist": true, "album": true, "track": true}

func NewService(fetcher Fetcher, st *store.Store, cfg config.SpotifyConfig) *Service {
	return &Service{
		fetcher: fetcher,
		cache:   st.Catalog,
		stats:   st.ListeningStats,
		ttl:     cfg.CacheTTL,
		market:  cfg.Market,
		now:     time.Now,
	}
}

// CacheKey names the cache document for one upstream read on one day.
func CacheKey(kind models.CatalogKind, params, day string) string {
	return fmt.Sprintf("%s:%s:%s", kind, params, day)
}

// cached returns the body for an upstream read, served from the cache when
// the stored document is fresh. Concurrent misses on one key share a single
// upstream call.
func (s *Service) cached(ctx context.Context, kind models.CatalogKind, params, path string, query url.Values) (gjson.Result, error) {
	now := s.now()
	key := CacheKey(kind, params, now.Format(models.DayFormat))

	doc, err := s.cache.GetCache(ctx, key)
	switch {
	case err == nil && doc.Fresh(now, s.ttl):
		metrics.RecordCatalogLookup(string(kind), "hit")
		return gjson.Parse(doc.Body), nil
	case err != nil && !errors.Is(err, models.ErrNotFound):
		logger.LogError(err, "Failed to read catalog cache", map[string]interface{}{"key": key})
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		body, err := s.fetcher.Fetch(ctx, path, query)
		if err != nil {
			return nil, err
		}
		doc := &models.CacheDoc{
			Key:       key,
			Kind:      kind,
			Params:    params,
			Day:       now.Format(models.DayFormat),
			Body:      string(body),
			FetchedAt: s.now(),
		}
		if err := s.cache.PutCache(ctx, doc); err != nil {
			logger.LogError(err, "Failed to write catalog cache", map[string]interface{}{"key": key})
		}
		return doc.Body, nil
	})
	if err != nil {
		metrics.RecordCatalogLookup(string(kind), "error")
		logger.LogError(err, "Catalog request failed", map[string]interface{}{"kind": kind, "params": params})
		return gjson.Result{}, fmt.Errorf("failed to fetch %s: %w", kind, err)
	}

	metrics.RecordCatalogLookup(string(kind), "miss")
	return gjson.Parse(v.(string)), nil
}

// Search queries the catalog. types defaults to artist, album and track.
func (s *Service) Search(ctx context.Context, q string, types []string, limit int) (*SearchResult, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("%w: empty search query", models.ErrInvalidInput)
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	var kinds []string
	for _, t := range types {
		t = strings.ToLower(strings.TrimSpace(t))
		if !searchTypes[t] {
			return nil, fmt.Errorf("%w: search type %q", models.ErrInvalidInput, t)
		}
		kinds = append(kinds, t)
	}
	if len(kinds) == 0 {
		kinds = []string{"artist", "album", "track"}
	}

	query := url.Values{
		"q":     {q},
		"type":  {strings.Join(kinds, ",")},
		"limit": {strconv.Itoa(limit)},
	}
	params := strings.ToLower(q) + "|" + query.Get("type") + "|" + query.Get("limit")
	body, err := s.cached(ctx, models.KindSearch, params, "/search", query)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := &SearchResult{
		Artists: make([]models.Artist, 0),
		Albums:  parseAlbums(body.Get("albums.items"), "", now),
		Tracks:  parseTracks(body.Get("tracks.items"), "", "", now),
	}
	for _, a := range body.Get("artists.items").Array() {
		result.Artists = append(result.Artists, parseArtist(a, now))
	}
	return result, nil
}

func (s *Service) Artist(ctx context.Context, id string) (*models.Artist, error) {
	body, err := s.cached(ctx, models.KindArtist, id, "/artists/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	artist := parseArtist(body, s.now())
	return &artist, nil
}

func (s *Service) ArtistAlbums(ctx context.Context, id string) ([]models.Album, error) {
	query := url.Values{"include_groups": {"album,single"}, "limit": {"50"}}
	body, err := s.cached(ctx, models.KindAlbums, id, "/artists/"+url.PathEscape(id)+"/albums", query)
	if err != nil {
		return nil, err
	}
	return parseAlbums(body.Get("items"), id, s.now()), nil
}

// ArtistTopTracks lists the artist's top tracks in market, or the configured
// market when empty.
func (s *Service) ArtistTopTracks(ctx context.Context, id, market string) ([]models.Track, error) {
	if market == "" {
		market = s.market
	}
	query := url.Values{"market": {market}}
	body, err := s.cached(ctx, models.KindTopTracks, id+"|"+market, "/artists/"+url.PathEscape(id)+"/top-tracks", query)
	if err != nil {
		return nil, err
	}
	return parseTracks(body.Get("tracks"), id, "", s.now()), nil
}

func (s *Service) Album(ctx context.Context, id string) (*AlbumDetail, error) {
	body, err := s.cached(ctx, models.KindAlbum, id, "/albums/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	now := s.now()
	album := parseAlbum(body, "", now)
	return &AlbumDetail{
		Album:  album,
		Tracks: parseTracks(body.Get("tracks.items"), album.ArtistID, album.ID, now),
	}, nil
}

func (s *Service) Track(ctx context.Context, id string) (*models.Track, error) {
	body, err := s.cached(ctx, models.KindTrack, id, "/tracks/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	track := parseTrack(body, "", "", s.now())
	return &track, nil
}

// SyncArtist copies an artist with their albums, singles and top tracks into
// the local library.
func (s *Service) SyncArtist(ctx context.Context, id string) (*models.ArtistLibrary, error) {
	start := s.now()

	artist, err := s.Artist(ctx, id)
	if err != nil {
		return nil, err
	}
	albums, err := s.ArtistAlbums(ctx, id)
	if err != nil {
		return nil, err
	}
	tracks, err := s.ArtistTopTracks(ctx, id, "")
	if err != nil {
		return nil, err
	}

	if err := s.cache.SaveArtist(ctx, artist); err != nil {
		return nil, fmt.Errorf("failed to save artist: %w", err)
	}
	if err := s.cache.SaveAlbums(ctx, albums); err != nil {
		return nil, fmt.Errorf("failed to save albums: %w", err)
	}
	if err := s.cache.SaveTracks(ctx, tracks); err != nil {
		return nil, fmt.Errorf("failed to save tracks: %w", err)
	}

	lib, err := s.cache.Library(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load artist library: %w", err)
	}

	logger.LogPerformance("catalog_sync_artist", s.now().Sub(start), map[string]interface{}{
		"artist_id": id,
		"albums":    len(lib.Albums),
		"singles":   len(lib.Singles),
		"tracks":    len(lib.Tracks),
	})
	return lib, nil
}

// Library returns the locally synced library of an artist.
func (s *Service) Library(ctx context.Context, id string) (*models.ArtistLibrary, error) {
	lib, err := s.cache.Library(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load artist library: %w", err)
	}
	return lib, nil
}

// PurgeCache deletes cache documents older than the cache TTL.
func (s *Service) PurgeCache(ctx context.Context) (int64, error) {
	n, err := s.cache.PurgeCache(ctx, s.now().Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to purge catalog cache: %w", err)
	}
	return n, nil
}

// RecordPlay adds one play of trackID to the user's statistics.
func (s *Service) RecordPlay(ctx context.Context, userID, trackID string, listenedMS int64) (*models.ListeningStat, error) {
	if strings.TrimSpace(trackID) == "" {
		return nil, fmt.Errorf("%w: track id is required", models.ErrInvalidInput)
	}
	if listenedMS < 0 {
		return nil, fmt.Errorf("%w: negative listening time", models.ErrInvalidInput)
	}

	stat, err := s.stats.RecordPlay(ctx, userID, trackID, listenedMS, s.now())
	if err != nil {
		logger.LogError(err, "Failed to record play", map[string]interface{}{"user_id": userID, "track_id": trackID})
		return nil, fmt.Errorf("failed to record play: %w", err)
	}
	return stat, nil
}

// TopTracks returns the user's most played tracks.
func (s *Service) TopTracks(ctx context.Context, userID string, limit int) ([]*models.ListeningStat, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	stats, err := s.stats.Top(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load listening stats: %w", err)
	}
	return stats, nil
}
