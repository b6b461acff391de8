package handlers

import (
	"strings"

	"campuschat/internal/catalog"
	"campuschat/internal/middleware"
	"campuschat/internal/utils"

	"github.com/gin-gonic/gin"
)

type MusicHandler struct {
	catalog *catalog.Service
}

func NewMusicHandler(catalogService *catalog.Service) *MusicHandler {
	return &MusicHandler{
		catalog: catalogService,
	}
}

type playRequest struct {
	TrackID    string `json:"track_id" binding:"required"`
	ListenedMS int64  `json:"listened_ms" binding:"min=0"`
}

// Search queries the music catalog. ?type takes a comma separated list of
// artist, album and track.
func (h *MusicHandler) Search(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 20)
	if !ok {
		return
	}
	var types []string
	if raw := c.Query("type"); raw != "" {
		types = strings.Split(raw, ",")
	}

	result, err := h.catalog.Search(c.Request.Context(), c.Query("q"), types, limit)
	if err != nil {
		utils.HandleServiceError(c, err, "Music search is unavailable")
		return
	}

	utils.SuccessResponse(c, result)
}

func (h *MusicHandler) GetArtist(c *gin.Context) {
	artist, err := h.catalog.Artist(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to load artist")
		return
	}

	utils.SuccessResponse(c, artist)
}

func (h *MusicHandler) GetArtistAlbums(c *gin.Context) {
	albums, err := h.catalog.ArtistAlbums(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to load albums")
		return
	}

	utils.SuccessResponseWithMeta(c, albums, &utils.Meta{Total: len(albums)})
}

func (h *MusicHandler) GetArtistTopTracks(c *gin.Context) {
	tracks, err := h.catalog.ArtistTopTracks(c.Request.Context(), c.Param("id"), c.Query("market"))
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to load top tracks")
		return
	}

	utils.SuccessResponseWithMeta(c, tracks, &utils.Meta{Total: len(tracks)})
}

func (h *MusicHandler) GetAlbum(c *gin.Context) {
	album, err := h.catalog.Album(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to load album")
		return
	}

	utils.SuccessResponse(c, album)
}

func (h *MusicHandler) GetTrack(c *gin.Context) {
	track, err := h.catalog.Track(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to load track")
		return
	}

	utils.SuccessResponse(c, track)
}

// GetLibrary returns the locally synced discography of an artist.
func (h *MusicHandler) GetLibrary(c *gin.Context) {
	lib, err := h.catalog.Library(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to load artist library")
		return
	}

	utils.SuccessResponse(c, lib)
}

func (h *MusicHandler) RecordPlay(c *gin.Context) {
	var req playRequest
	if !bindJSON(c, &req) {
		return
	}

	stat, err := h.catalog.RecordPlay(c.Request.Context(), middleware.UserID(c), req.TrackID, req.ListenedMS)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to record play")
		return
	}

	utils.SuccessResponse(c, stat)
}

func (h *MusicHandler) TopPlays(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 10)
	if !ok {
		return
	}

	stats, err := h.catalog.TopTracks(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to load listening stats")
		return
	}

	utils.SuccessResponseWithMeta(c, stats, &utils.Meta{Limit: limit, Total: len(stats)})
}
