package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gandorini/S-T-Station/middleware"
	"github.com/Gandorini/S-T-Station/model"
	"github.com/Gandorini/S-T-Station/service"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

func setupSheetRouter(store service.SheetStore) *gin.Engine {
	h := NewSheetHandler(store)
	auth := middleware.AuthMiddleware(middleware.NewTokenVerifier(&testAuth))

	router := gin.New()
	router.Use(middleware.RequestID())
	sheets := router.Group("/api/music-sheets")
	sheets.GET("", h.List)
	sheets.POST("", auth, h.Create)
	sheets.GET("/me", auth, h.ListMine)
	sheets.GET("/me/export", auth, h.ExportMine)
	sheets.GET("/:id", h.Get)
	sheets.PUT("/:id", auth, h.Update)
	sheets.DELETE("/:id", auth, h.Delete)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, auth string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func validInput(title string) model.MusicSheetInput {
	return model.MusicSheetInput{
		Title:      title,
		Composer:   "Villa-Lobos",
		Instrument: "guitar",
		Difficulty: "hard",
		Tags:       []string{"etude"},
		FileURL:    "https://files.test/" + title + ".pdf",
	}
}

func TestSheetHandlerCreate(t *testing.T) {
	router := setupSheetRouter(service.NewMemoryStore(0))

	w := doJSON(t, router, "POST", "/api/music-sheets", bearer(t, "alice"), validInput("etude-1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var sheet model.MusicSheet
	if err := json.Unmarshal(w.Body.Bytes(), &sheet); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if sheet.UserID != "alice" {
		t.Errorf("Expected owner from token, got '%s'", sheet.UserID)
	}
	if sheet.ID == 0 {
		t.Error("Expected an id")
	}
}

func TestSheetHandlerCreateIgnoresBodyOwner(t *testing.T) {
	router := setupSheetRouter(service.NewMemoryStore(0))

	body := map[string]any{
		"title": "x", "composer": "y", "instrument": "z", "difficulty": "easy",
		"file_url": "u", "user_id": "mallory",
	}
	w := doJSON(t, router, "POST", "/api/music-sheets", bearer(t, "alice"), body)

	var sheet model.MusicSheet
	json.Unmarshal(w.Body.Bytes(), &sheet)
	if sheet.UserID != "alice" {
		t.Errorf("Expected owner 'alice', got '%s'", sheet.UserID)
	}
}

func TestSheetHandlerCreateValidation(t *testing.T) {
	router := setupSheetRouter(service.NewMemoryStore(0))

	tests := []struct {
		name           string
		auth           string
		body           any
		expectedStatus int
	}{
		{"missing token", "", validInput("a"), http.StatusUnauthorized},
		{"missing fields", bearer(t, "alice"), map[string]string{"title": "a"}, http.StatusBadRequest},
		{"valid", bearer(t, "alice"), validInput("a"), http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, "POST", "/api/music-sheets", tt.auth, tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestSheetHandlerListAndGet(t *testing.T) {
	store := service.NewMemoryStore(0)
	router := setupSheetRouter(store)
	doJSON(t, router, "POST", "/api/music-sheets", bearer(t, "alice"), validInput("a"))
	doJSON(t, router, "POST", "/api/music-sheets", bearer(t, "bob"), validInput("b"))

	w := doJSON(t, router, "GET", "/api/music-sheets", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var all []model.MusicSheet
	json.Unmarshal(w.Body.Bytes(), &all)
	if len(all) != 2 {
		t.Errorf("Expected 2 sheets, got %d", len(all))
	}

	w = doJSON(t, router, "GET", "/api/music-sheets/me", bearer(t, "bob"), nil)
	var mine []model.MusicSheet
	json.Unmarshal(w.Body.Bytes(), &mine)
	if len(mine) != 1 || mine[0].Title != "b" {
		t.Errorf("Expected bob's single sheet, got %+v", mine)
	}

	w = doJSON(t, router, "GET", "/api/music-sheets/1", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	for _, path := range []string{"/api/music-sheets/99", "/api/music-sheets/abc"} {
		w = doJSON(t, router, "GET", path, "", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected status 404, got %d", path, w.Code)
		}
	}
}

func TestSheetHandlerListEmpty(t *testing.T) {
	router := setupSheetRouter(service.NewMemoryStore(0))

	w := doJSON(t, router, "GET", "/api/music-sheets", "", nil)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("Expected empty JSON array, got %s", w.Body.String())
	}
}

func TestSheetHandlerOwnership(t *testing.T) {
	router := setupSheetRouter(service.NewMemoryStore(0))
	doJSON(t, router, "POST", "/api/music-sheets", bearer(t, "alice"), validInput("a"))

	tests := []struct {
		name           string
		method         string
		path           string
		user           string
		expectedStatus int
	}{
		{"update foreign", "PUT", "/api/music-sheets/1", "bob", http.StatusForbidden},
		{"update missing", "PUT", "/api/music-sheets/42", "alice", http.StatusNotFound},
		{"delete foreign", "DELETE", "/api/music-sheets/1", "bob", http.StatusForbidden},
		{"delete missing", "DELETE", "/api/music-sheets/42", "alice", http.StatusNotFound},
		{"update own", "PUT", "/api/music-sheets/1", "alice", http.StatusOK},
		{"delete own", "DELETE", "/api/music-sheets/1", "alice", http.StatusOK},
		{"delete again", "DELETE", "/api/music-sheets/1", "alice", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body any
			if tt.method == "PUT" {
				body = validInput("renamed")
			}
			w := doJSON(t, router, tt.method, tt.path, bearer(t, tt.user), body)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestSheetHandlerExportMine(t *testing.T) {
	router := setupSheetRouter(service.NewMemoryStore(0))
	doJSON(t, router, "POST", "/api/music-sheets", bearer(t, "alice"), validInput("a"))
	doJSON(t, router, "POST", "/api/music-sheets", bearer(t, "bob"), validInput("b"))

	w := doJSON(t, router, "GET", "/api/music-sheets/me/export", bearer(t, "alice"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("Expected xlsx content type, got %s", ct)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), ".xlsx") {
		t.Errorf("Expected attachment filename, got %s", w.Header().Get("Content-Disposition"))
	}

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("Failed to open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("Expected header plus 1 row, got %d rows", len(rows))
	}
}
