package handlers

import (
	"net/http"
	"strconv"

	"campuschat/internal/media"
	"campuschat/internal/utils"

	"github.com/gin-gonic/gin"
)

// bindJSON binds the request body and writes a validation error response
// when it fails.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		utils.ValidationErrorResponse(c, utils.BindingDetails(err))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		utils.ValidationErrorResponse(c, utils.BindingDetails(err))
		return false
	}
	return true
}

// formFile reads the "file" part of a multipart upload. The returned
// close function must be called once the file has been consumed.
func formFile(c *gin.Context) (media.File, func(), bool) {
	header, err := c.FormFile("file")
	if err != nil {
		utils.ValidationErrorResponse(c, map[string]string{"file": "This field is required"})
		return media.File{}, nil, false
	}
	f, err := header.Open()
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Failed to read uploaded file")
		return media.File{}, nil, false
	}

	return media.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        f,
	}, func() { f.Close() }, true
}

// queryInt parses an optional integer query parameter.
func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		utils.ValidationErrorResponse(c, map[string]string{key: "Must be a non-negative integer"})
		return 0, false
	}
	return n, true
}
