package api

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"github.com/Jarrydtb/scripter/internal/models"
	"github.com/Jarrydtb/scripter/internal/services"
)

type ImageHandler struct {
	Images *services.ImageService
}

func NewImageHandler(images *services.ImageService) *ImageHandler {
	return &ImageHandler{Images: images}
}

type CreateImageRequest struct {
	Name        string            `json:"name" validate:"required,gt=0"`
	Description string            `json:"description"`
	Tag         string            `json:"tag"`
	Specfile    string            `json:"specfile" validate:"required,gt=0"`
	Supporting  map[string]string `json:"supporting"`
}

func (h *ImageHandler) CreateImage(ctx context.Context, c *app.RequestContext) {
	var req CreateImageRequest
	if err := c.Bind(&req); err != nil {
		log.Printf("CreateImage: Bind failed: %v", err)
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	if err := c.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request payload: " + err.Error()})
		return
	}
	supporting := make(map[string][]byte, len(req.Supporting))
	for name, content := range req.Supporting {
		supporting[name] = []byte(content)
	}
	image, err := h.Images.Create(ctx, services.CreateImageInput{
		Name:        req.Name,
		Description: req.Description,
		Tag:         req.Tag,
		Specfile:    []byte(req.Specfile),
		Supporting:  supporting,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, image)
}

func (h *ImageHandler) GetImages(ctx context.Context, c *app.RequestContext) {
	q := services.ImageQuery{Page: queryInt(c, "page", 0), Limit: queryInt(c, "limit", 100)}
	if name := c.Query("name"); name != "" {
		q.Name = &name
	}
	if raw := c.Query("status"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid status filter"})
			return
		}
		status := models.ImageStatus(v)
		q.Status = &status
	}
	list, err := h.Images.List(ctx, q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ImageHandler) GetImageByID(ctx context.Context, c *app.RequestContext) {
	image, err := h.Images.Get(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, image)
}

func (h *ImageHandler) GetImageFiles(ctx context.Context, c *app.RequestContext) {
	files, err := h.Images.ListFiles(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.H{"files": files})
}

type UpdateImageRequest struct {
	Name          *string           `json:"name"`
	Description   *string           `json:"description"`
	Specfile      *string           `json:"specfile"`
	Added         map[string]string `json:"added"`
	RemoveFileIDs []uint            `json:"remove_file_ids"`
}

func (h *ImageHandler) UpdateImage(ctx context.Context, c *app.RequestContext) {
	var req UpdateImageRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	in := services.UpdateImageInput{
		Name:          req.Name,
		Description:   req.Description,
		RemoveFileIDs: req.RemoveFileIDs,
	}
	if req.Specfile != nil {
		in.Specfile = []byte(*req.Specfile)
	}
	if len(req.Added) > 0 {
		in.Added = make(map[string][]byte, len(req.Added))
		for name, content := range req.Added {
			in.Added[name] = []byte(content)
		}
	}
	if err := h.Images.Update(ctx, c.Param("id"), in); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.H{"message": "Image updated"})
}

func (h *ImageHandler) BuildImage(ctx context.Context, c *app.RequestContext) {
	imageID := c.Param("id")
	if err := h.Images.StartBuild(ctx, imageID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, utils.H{"message": "Build dispatched", "image_id": imageID})
}

func (h *ImageHandler) GetBuildLogs(ctx context.Context, c *app.RequestContext) {
	offset, err := strconv.ParseInt(c.DefaultQuery("position", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid position"})
		return
	}
	chunk, err := h.Images.GetBuildLogs(ctx, c.Param("id"), offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, chunk)
}

func (h *ImageHandler) DestroyImage(ctx context.Context, c *app.RequestContext) {
	if err := h.Images.Destroy(ctx, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.H{"message": "Image returned to dormant"})
}

func (h *ImageHandler) DeleteImage(ctx context.Context, c *app.RequestContext) {
	if err := h.Images.Delete(ctx, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.H{"message": "Image deleted"})
}

// queryInt parses an integer query parameter, falling back on absence or
// garbage.
func queryInt(c *app.RequestContext, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
