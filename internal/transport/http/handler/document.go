package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"docqa/internal/app"
	"docqa/internal/model"
	"docqa/internal/transport/http/response"
)

// Accepted date forms for search bounds, tried in order.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

type DocumentHandler struct {
	documents *app.DocumentService
	logger    *slog.Logger
}

type UploadResponse struct {
	Message  string  `json:"message"`
	Filename string  `json:"filename"`
	Tags     *string `json:"tags"`
	Category *string `json:"category"`
}

type AskResponse struct {
	Answer string `json:"answer"`
}

func NewDocumentHandler(documents *app.DocumentService, logger *slog.Logger) *DocumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentHandler{documents: documents, logger: logger}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, "File is required")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, "Could not read uploaded file")
		return
	}
	defer file.Close()

	doc, err := h.documents.Upload(c.Request.Context(), app.UploadInput{
		Filename: fileHeader.Filename,
		Tags:     optionalForm(c, "tags"),
		Category: optionalForm(c, "category"),
		Content:  file,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	response.OK(c, UploadResponse{
		Message:  "File uploaded successfully",
		Filename: doc.Filename,
		Tags:     doc.Tags,
		Category: doc.Category,
	})
}

func (h *DocumentHandler) Ask(c *gin.Context) {
	answer, err := h.documents.Ask(c.Request.Context(), app.AskInput{
		Filename: c.PostForm("filename"),
		Question: c.PostForm("question"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, AskResponse{Answer: answer})
}

func (h *DocumentHandler) Search(c *gin.Context) {
	start, err := parseDate(c.Query("start_date"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid start_date format")
		return
	}
	end, err := parseDate(c.Query("end_date"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid end_date format")
		return
	}

	docs, err := h.documents.Search(c.Request.Context(), app.SearchInput{
		Query:     c.Query("query"),
		StartDate: start,
		EndDate:   end,
		Category:  c.Query("category"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("file_id"), 10, 0)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid file id")
		return
	}
	if err := h.documents.Delete(c.Request.Context(), uint(id)); err != nil {
		h.fail(c, err)
		return
	}
	response.Message(c, "File deleted successfully")
}

func (h *DocumentHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	} else {
		h.logger.Info("request rejected", "path", c.FullPath(), "status", status, "error", err)
	}
	response.Error(c, status, app.Detail(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrValidation), errors.Is(err, app.ErrDuplicate):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errors.New("unrecognised date")
}

// optionalForm distinguishes an absent form field from an empty one.
func optionalForm(c *gin.Context, key string) *string {
	v, ok := c.GetPostForm(key)
	if !ok {
		return nil
	}
	return &v
}
