package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ripple/media"
)

const maxUploadBytes = 10 << 20 // 10 MiB

// UploadMedia pushes a multipart file to the hosted media service and
// returns its URL for use in posts, stories and avatars.
func (a *API) UploadMedia(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if a.Uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Media uploads not configured"})
		return
	}

	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse form data"})
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	defer file.Close()

	kind := c.DefaultPostForm("kind", media.KindPhoto)
	switch kind {
	case media.KindAvatar, media.KindPhoto, media.KindStory:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid media kind"})
		return
	}

	// uploads get longer than the standard request budget
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	publicID := userID.Hex() + "_" + time.Now().Format("20060102150405")
	url, err := a.Uploader.Upload(ctx, file, kind, publicID)
	if err != nil {
		a.Log.WithError(err).Error("media upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload media"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}
