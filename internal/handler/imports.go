package handler

import (
	"errors"
	"net/http"

	"sostrack/internal/apierror"
	"sostrack/internal/dto"
	"sostrack/internal/service"

	"github.com/gin-gonic/gin"
)

type ImportsHandler struct {
	svc      service.ImportService
	maxBytes int64
}

func NewImportsHandler(svc service.ImportService, maxBytes int64) *ImportsHandler {
	return &ImportsHandler{svc: svc, maxBytes: maxBytes}
}

// Parse accepts a multipart upload in the "file" field.
func (h *ImportsHandler) Parse(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, apierror.New("file too large"))
			return
		}
		c.JSON(http.StatusBadRequest, apierror.New("multipart field \"file\" is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("could not read upload"))
		return
	}
	defer f.Close()

	resp, err := h.svc.Parse(c.Request.Context(), fh.Filename, f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ImportsHandler) Preview(c *gin.Context) {
	var req dto.PreviewRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Preview(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ImportsHandler) Commit(c *gin.Context) {
	var req dto.CommitRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Commit(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ImportsHandler) GetFile(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	resp, err := h.svc.GetFile(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ImportsHandler) ReplaceFile(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req dto.ReplaceCSVFileRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.ReplaceFile(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
