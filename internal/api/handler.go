package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pageza/alchemorsel-v2/recommender/internal/middleware"
	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
	"github.com/pageza/alchemorsel-v2/recommender/internal/service"
)

// Handler serves the recommendation engine over HTTP. Failures are attached
// with c.Error and rendered by middleware.ErrorHandler.
type Handler struct {
	svc service.IRecommender
	log *zap.Logger
}

// NewHandler creates a Handler for svc
func NewHandler(svc service.IRecommender, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

// RegisterRoutes mounts the public routes on rg and the model management
// routes behind admin
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, admin gin.HandlerFunc) {
	recipes := rg.Group("/recipes")
	{
		recipes.POST("/generate", h.Generate)
		recipes.POST("/suggestions", h.Suggest)
		recipes.POST("/similar", h.Similar)
	}
	rg.POST("/interactions", h.RecordInteraction)
	rg.POST("/profiles/predict", h.PredictProfile)

	models := rg.Group("/models", admin)
	{
		models.GET("", h.ListModels)
		models.POST("/train", h.Train)
		models.POST("/:id/activate", h.Activate)
		models.GET("/:id/history", h.History)
	}
}

func invalid(c *gin.Context, field string, err error) {
	_ = c.Error(service.ValidationError{Field: field, Message: err.Error()})
}

// Generate picks the best recipe for the posted request
func (h *Handler) Generate(c *gin.Context) {
	var req model.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, "body", err)
		return
	}
	got, err := h.svc.Generate(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, got)
}

// Suggest proposes recipes for the posted profile
func (h *Handler) Suggest(c *gin.Context) {
	var profile model.UserProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		invalid(c, "body", err)
		return
	}
	if profile.UserID == "" {
		profile.UserID = c.GetString(middleware.ContextUserID)
	}
	got, err := h.svc.Suggest(c.Request.Context(), &profile)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": got})
}

// PredictProfile classifies the posted profile
func (h *Handler) PredictProfile(c *gin.Context) {
	var profile model.UserProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		invalid(c, "body", err)
		return
	}
	c.JSON(http.StatusOK, h.svc.PredictUserProfile(&profile))
}

type similarRequest struct {
	Available []string `json:"available_ingredients"`
	Limit     int      `json:"limit"`
}

// Similar lists the corpus recipes closest to a pantry
func (h *Handler) Similar(c *gin.Context) {
	var req similarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, "body", err)
		return
	}
	got, err := h.svc.Similar(c.Request.Context(), req.Available, req.Limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recipes": got})
}

type interactionRequest struct {
	UserID     string        `json:"user_id"`
	RecipeName string        `json:"recipe_name"`
	Request    model.Request `json:"request"`
}

// RecordInteraction logs which recipe a user picked for a request
func (h *Handler) RecordInteraction(c *gin.Context) {
	var body interactionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		invalid(c, "body", err)
		return
	}
	user := c.GetString(middleware.ContextUserID)
	if user == "" {
		user = body.UserID
	}
	if err := h.svc.RecordSelection(c.Request.Context(), user, &body.Request, body.RecipeName); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusAccepted)
}

// Train runs a training job and activates the result. The body is optional.
func (h *Handler) Train(c *gin.Context) {
	var opts service.TrainOptions
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			invalid(c, "body", err)
			return
		}
	}
	h.log.Info("training requested", zap.String("by", c.GetString(middleware.ContextUserID)))
	res, err := h.svc.Train(c.Request.Context(), opts)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ListModels lists stored models, newest first
func (h *Handler) ListModels(c *gin.Context) {
	rows, err := h.svc.Models(c.Request.Context(), c.Query("name"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": rows, "count": len(rows)})
}

func modelID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		invalid(c, "id", err)
		return uuid.Nil, false
	}
	return id, true
}

// Activate makes a stored model the served one
func (h *Handler) Activate(c *gin.Context) {
	id, ok := modelID(c)
	if !ok {
		return
	}
	if err := h.svc.Activate(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": id})
}

// History returns the per-epoch history of a model
func (h *Handler) History(c *gin.Context) {
	id, ok := modelID(c)
	if !ok {
		return
	}
	rows, err := h.svc.History(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"model_id": id, "epochs": rows})
}
