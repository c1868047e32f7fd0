package handler

import (
	"context"
	"net/http"

	"sostrack/internal/dto"
	"sostrack/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type BatchesHandler struct{ svc service.BatchService }

func NewBatchesHandler(svc service.BatchService) *BatchesHandler {
	return &BatchesHandler{svc: svc}
}

func (h *BatchesHandler) List(c *gin.Context) {
	resp, err := h.svc.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// StartRun opens a run in Make. With ?requested=true it is only recorded as
// Requested and must be begun later.
func (h *BatchesHandler) StartRun(c *gin.Context) {
	var req dto.StartRunRequest
	if !bindAndValidate(c, &req) {
		return
	}
	start := h.svc.StartRun
	if c.Query("requested") == "true" {
		start = h.svc.RequestRun
	}
	resp, err := start(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *BatchesHandler) Begin(c *gin.Context) {
	h.advance(c, h.svc.Begin)
}

func (h *BatchesHandler) MarkPackaged(c *gin.Context) {
	h.advance(c, h.svc.MarkPackaged)
}

func (h *BatchesHandler) advance(c *gin.Context, step func(context.Context, uuid.UUID) (*dto.BatchResponse, error)) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	resp, err := step(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BatchesHandler) Finalize(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req dto.FinalizeRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Finalize(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BatchesHandler) BulkDelete(c *gin.Context) {
	var req dto.BulkDeleteRequest
	if !bindAndValidate(c, &req) {
		return
	}
	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, s := range req.IDs {
		ids = append(ids, uuid.MustParse(s))
	}
	n, err := h.svc.BulkDelete(c.Request.Context(), ids)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.BulkDeleteResponse{Deleted: n})
}

// Sweep runs the Ready auto-complete on demand.
func (h *BatchesHandler) Sweep(c *gin.Context) {
	n, err := h.svc.SweepReady(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SweepResponse{Completed: n})
}
