package handlers

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/trackdrop/backend/internal/core/ports"
	"github.com/trackdrop/backend/internal/core/services"
	"github.com/trackdrop/backend/internal/domain"
	"github.com/trackdrop/backend/internal/infrastructure/logger"
	"github.com/trackdrop/backend/internal/transport/http/dto"
)

//go:embed templates/*.html
var templateFS embed.FS

var indexTemplate = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"expiresIn": func(seconds int64) string {
		return (time.Duration(seconds) * time.Second).String()
	},
}).ParseFS(templateFS, "templates/index.html"))

type indexPage struct {
	Files          []domain.StoredFile
	DefaultFormat  string
	DefaultBitrate string
	Formats        []string
}

type FileHandler struct {
	service        ports.DownloadService
	defaultFormat  string
	defaultBitrate string
	logger         *logger.Logger
}

func NewFileHandler(service ports.DownloadService, defaultFormat, defaultBitrate string, logger *logger.Logger) *FileHandler {
	return &FileHandler{
		service:        service,
		defaultFormat:  defaultFormat,
		defaultBitrate: defaultBitrate,
		logger:         logger,
	}
}

// Index renders the submit form and the current file listing.
func (h *FileHandler) Index(c *fiber.Ctx) error {
	files, err := h.service.ListFiles(c.UserContext())
	if err != nil {
		h.logger.Warnw("index_file_list_failed", "error", err)
		files = nil
	}

	var buf bytes.Buffer
	err = indexTemplate.Execute(&buf, indexPage{
		Files:          files,
		DefaultFormat:  h.defaultFormat,
		DefaultBitrate: h.defaultBitrate,
		Formats:        []string{"mp3", "m4a", "ogg", "opus", "flac", "wav"},
	})
	if err != nil {
		h.logger.Errorw("index_render_failed", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to render page")
	}

	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}

func (h *FileHandler) ListFiles(c *fiber.Ctx) error {
	files, err := h.service.ListFiles(c.UserContext())
	if err != nil {
		h.logger.Errorw("files_list_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}
	return c.JSON(dto.FileListResponse{Files: files, Count: len(files)})
}

// ServeFile streams a stored file as an attachment. The name comes from the
// :filename param or, for the legacy route, the wildcard.
func (h *FileHandler) ServeFile(c *fiber.Ctx) error {
	requested := c.Params("filename")
	if requested == "" {
		requested = c.Params("*")
	}

	path, err := h.service.ResolveFile(c.UserContext(), requested)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPathTraversal):
			h.logger.Warnw("file_serve_traversal_rejected", "requested", requested, "ip", c.IP())
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: "Invalid file path",
			})
		case errors.Is(err, services.ErrFileNotFound):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: "File not found",
			})
		}
		h.logger.Errorw("file_serve_resolve_failed", "requested", requested, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: "Error downloading file: " + err.Error(),
		})
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: "File not found",
			})
		}
		h.logger.Errorw("file_serve_open_failed", "file", filepath.Base(path), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: "Error downloading file: " + err.Error(),
		})
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		h.logger.Errorw("file_serve_stat_failed", "file", filepath.Base(path), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: "Error downloading file: " + err.Error(),
		})
	}

	// Streamed from the open handle: names may hold '?', '#' or '%', which do not
	// survive being routed through a request URI.
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Attachment(filepath.Base(path))
	return c.SendStream(file, int(info.Size()))
}
