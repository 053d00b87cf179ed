package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Gandorini/S-T-Station/middleware"
	"github.com/Gandorini/S-T-Station/model"
	"github.com/Gandorini/S-T-Station/pkg/logger"
	"github.com/Gandorini/S-T-Station/service"
	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type SheetHandler struct {
	store  service.SheetStore
	export *service.ExportService
}

func NewSheetHandler(store service.SheetStore) *SheetHandler {
	return &SheetHandler{store: store, export: service.NewExportService(store)}
}

// Create adds a sheet owned by the caller
func (h *SheetHandler) Create(c *gin.Context) {
	var in model.MusicSheetInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	sheet, err := h.store.Create(c.Request.Context(), middleware.GetUserID(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sheet)
}

// List returns every sheet, newest first
func (h *SheetHandler) List(c *gin.Context) {
	sheets, err := h.store.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sheets)
}

// ListMine returns the caller's sheets
func (h *SheetHandler) ListMine(c *gin.Context) {
	sheets, err := h.store.ListByUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sheets)
}

// ExportMine streams the caller's sheets as a spreadsheet
func (h *SheetHandler) ExportMine(c *gin.Context) {
	data, err := h.export.ExportUserSheetsXLSX(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	filename := "music-sheets-" + time.Now().Format("20060102") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}

func (h *SheetHandler) Get(c *gin.Context) {
	id, ok := sheetID(c)
	if !ok {
		return
	}
	sheet, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sheet)
}

// Update replaces a sheet the caller owns
func (h *SheetHandler) Update(c *gin.Context) {
	id, ok := sheetID(c)
	if !ok {
		return
	}
	var in model.MusicSheetInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	sheet, err := h.store.Update(c.Request.Context(), id, middleware.GetUserID(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sheet)
}

// Delete removes a sheet the caller owns
func (h *SheetHandler) Delete(c *gin.Context) {
	id, ok := sheetID(c)
	if !ok {
		return
	}
	if err := h.store.Delete(c.Request.Context(), id, middleware.GetUserID(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func sheetID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Sheet not found"})
		return 0, false
	}
	return id, true
}

func (h *SheetHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Sheet not found"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not have permission to change this sheet"})
	default:
		logger.Error(c.Request.Context(), "sheet store failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "request_id": middleware.GetRequestID(c)})
	}
}
