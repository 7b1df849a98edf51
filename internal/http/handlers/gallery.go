package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/databanana-backend/internal/http/middleware"
	"github.com/yungbote/databanana-backend/internal/http/response"
	"github.com/yungbote/databanana-backend/internal/services"
)

type GalleryHandler struct {
	gallery services.GalleryService
}

func NewGalleryHandler(gallery services.GalleryService) *GalleryHandler {
	return &GalleryHandler{gallery: gallery}
}

// GET /api/datasets
func (gh *GalleryHandler) ListDatasets(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return
	}
	out, err := gh.gallery.ListDatasets(c.Request.Context(), userID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"datasets": out})
}

// PATCH /api/images/:id
// body: { "selected": true, "rejected": false, "public": true }
func (gh *GalleryHandler) ReviewImage(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return
	}
	imageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("invalid image id"))
		return
	}
	var in services.ReviewInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	img, err := gh.gallery.ReviewImage(c.Request.Context(), userID, imageID, in)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"image": img})
}
