package api

import (
	"context"
	"log"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"github.com/Jarrydtb/scripter/internal/models"
	"github.com/Jarrydtb/scripter/internal/services"
)

type ScriptHandler struct {
	Scripts *services.ScriptService
}

func NewScriptHandler(scripts *services.ScriptService) *ScriptHandler {
	return &ScriptHandler{Scripts: scripts}
}

type CreateScriptRequest struct {
	Name        string  `json:"name" validate:"required,gt=0"`
	Description string  `json:"description"`
	ImageID     *string `json:"image_id"`
	Language    string  `json:"language" validate:"required,gt=0"`
	Code        string  `json:"code"`
}

func (h *ScriptHandler) CreateScript(ctx context.Context, c *app.RequestContext) {
	var req CreateScriptRequest
	if err := c.Bind(&req); err != nil {
		log.Printf("CreateScript: Bind failed: %v", err)
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	if err := c.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request payload: " + err.Error()})
		return
	}
	script, err := h.Scripts.Create(ctx, services.CreateScriptInput{
		Name:        req.Name,
		Description: req.Description,
		ImageID:     req.ImageID,
		Language:    req.Language,
		Code:        []byte(req.Code),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, script)
}

func (h *ScriptHandler) GetScripts(ctx context.Context, c *app.RequestContext) {
	q := services.ScriptQuery{Page: queryInt(c, "page", 0), Limit: queryInt(c, "limit", 100)}
	if name := c.Query("name"); name != "" {
		q.Name = &name
	}
	if imageID := c.Query("image_id"); imageID != "" {
		q.ImageID = &imageID
	}
	list, err := h.Scripts.List(ctx, q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ScriptHandler) GetScriptByID(ctx context.Context, c *app.RequestContext) {
	script, err := h.Scripts.Get(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, script)
}

type UpdateScriptRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Language    *string `json:"language"`
	ImageID     *string `json:"image_id"`
}

func (h *ScriptHandler) UpdateScript(ctx context.Context, c *app.RequestContext) {
	var req UpdateScriptRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	script, err := h.Scripts.UpdateInfo(ctx, c.Param("id"), services.ScriptUpdate{
		Name:        req.Name,
		Description: req.Description,
		Language:    req.Language,
		ImageID:     req.ImageID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, script)
}

func (h *ScriptHandler) GetScriptCode(ctx context.Context, c *app.RequestContext) {
	code, err := h.Scripts.GetCode(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.H{"code": string(code)})
}

type UpdateScriptCodeRequest struct {
	Code string `json:"code" validate:"required"`
}

func (h *ScriptHandler) UpdateScriptCode(ctx context.Context, c *app.RequestContext) {
	var req UpdateScriptCodeRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	if err := h.Scripts.UpdateCode(ctx, c.Param("id"), []byte(req.Code)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.H{"message": "Script code updated"})
}

func (h *ScriptHandler) DeleteScript(ctx context.Context, c *app.RequestContext) {
	if err := h.Scripts.Delete(ctx, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.H{"message": "Script deleted"})
}

func (h *ScriptHandler) GetLanguages(ctx context.Context, c *app.RequestContext) {
	c.JSON(http.StatusOK, utils.H{"languages": models.Languages()})
}
