package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/databanana-backend/internal/domain"
	"github.com/yungbote/databanana-backend/internal/http/response"
)

// MemoryBlobs is the in-memory store used when no cloud bucket is
// configured.
type MemoryBlobs interface {
	Get(ctx context.Context, key string) ([]byte, error)
	ContentType(key string) (string, bool)
}

// BlobHandler serves objects of the in-memory store so signed URLs handed
// out in local runs resolve.
type BlobHandler struct {
	blobs MemoryBlobs
}

func NewBlobHandler(blobs MemoryBlobs) *BlobHandler {
	return &BlobHandler{blobs: blobs}
}

// GET /blobs/*key
func (bh *BlobHandler) Get(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	data, err := bh.blobs.Get(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.RespondError(c, http.StatusNotFound, "not_found", errors.New("object not found"))
			return
		}
		response.RespondErr(c, err)
		return
	}
	ct, _ := bh.blobs.ContentType(key)
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	c.Data(http.StatusOK, ct, data)
}
