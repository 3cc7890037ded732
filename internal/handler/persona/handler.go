package persona

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/personas-api/internal/model"
	"github.com/jwalitptl/personas-api/internal/service/persona"
	apperrors "github.com/jwalitptl/personas-api/pkg/errors"
	"github.com/jwalitptl/personas-api/pkg/httputil"
)

type Handler struct {
	service persona.PersonaService
}

func NewHandler(service persona.PersonaService) *Handler {
	return &Handler{
		service: service,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	personas := r.Group("/personas")
	{
		personas.POST("", h.CreatePersona)
		personas.GET("", h.ListPersonas)
		personas.GET("/documento/:document", h.GetPersonaByDocument)
		personas.GET("/:id", h.GetPersona)
		personas.PATCH("/:id", h.UpdatePersona)
		personas.DELETE("/:id", h.DeactivatePersona)
	}
}

func (h *Handler) CreatePersona(c *gin.Context) {
	var req model.CreatePersonaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, invalidBody(err))
		return
	}

	p, err := h.service.CreatePersona(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, p)
}

func (h *Handler) GetPersona(c *gin.Context) {
	id, err := httputil.ParamID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	p, err := h.service.GetPersona(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, p)
}

func (h *Handler) GetPersonaByDocument(c *gin.Context) {
	p, err := h.service.GetPersonaByDocument(c.Request.Context(), c.Param("document"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, p)
}

// ListPersonas serves GET /personas?skip=&limit=&estado=&search=.
func (h *Handler) ListPersonas(c *gin.Context) {
	var fields []apperrors.FieldError

	skip, fErr := httputil.QueryInt(c, "skip", 0)
	if fErr != nil {
		fields = append(fields, *fErr)
	}
	limit, fErr := httputil.QueryInt(c, "limit", persona.DefaultLimit)
	if fErr != nil {
		fields = append(fields, *fErr)
	}
	if len(fields) > 0 {
		httputil.RespondWithError(c, apperrors.Validation("invalid query parameters", fields...))
		return
	}

	filters := &model.PersonaFilters{
		Pagination: model.Pagination{Skip: skip, Limit: limit},
		Status:     model.PersonaStatus(strings.ToLower(strings.TrimSpace(c.Query("estado")))),
		SearchTerm: c.Query("search"),
	}

	personas, err := h.service.ListPersonas(c.Request.Context(), filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, personas)
}

func (h *Handler) UpdatePersona(c *gin.Context) {
	id, err := httputil.ParamID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var req model.UpdatePersonaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, invalidBody(err))
		return
	}

	p, err := h.service.UpdatePersona(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, p)
}

// DeactivatePersona serves DELETE /personas/:id as a soft delete.
func (h *Handler) DeactivatePersona(c *gin.Context) {
	id, err := httputil.ParamID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	result, err := h.service.DeactivatePersona(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, result)
}

func invalidBody(err error) error {
	e := apperrors.Validation("invalid request body", apperrors.FieldError{
		Field:   "body",
		Message: err.Error(),
	})
	e.Err = err
	return e
}
