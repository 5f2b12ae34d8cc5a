package api

import (
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

// DefaultMaxUploadBytes bounds a multipart upload when no limit is configured
const DefaultMaxUploadBytes = 32 << 20

// Handler serves the image endpoints on top of a simpleimage.Service
type Handler struct {
	service        simpleimage.Service
	logger         *slog.Logger
	limiter        *rate.Limiter
	maxUploadBytes int64
	basePath       string
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithUploadLimiter rejects uploads with 429 once limiter is exhausted
func WithUploadLimiter(limiter *rate.Limiter) HandlerOption {
	return func(h *Handler) {
		h.limiter = limiter
	}
}

// WithMaxUploadBytes bounds the multipart request body
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithBasePath sets the prefix the routes are mounted under, used for
// links in the gallery page (default "/api")
func WithBasePath(path string) HandlerOption {
	return func(h *Handler) {
		h.basePath = path
	}
}

func NewHandler(service simpleimage.Service, opts ...HandlerOption) *Handler {
	h := &Handler{
		service:        service,
		logger:         slog.Default(),
		maxUploadBytes: DefaultMaxUploadBytes,
		basePath:       "/api",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for image endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(UploadRateLimit(h.limiter)).Post("/upload", h.Upload)
	r.Get("/images", h.ListImages)
	r.Get("/images/{id}", h.GetImage)
	r.Delete("/images/{id}", h.DeleteImage)
	return r
}

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is the JSON body of successful mutations
type MessageResponse struct {
	Message string             `json:"message"`
	Image   *simpleimage.Asset `json:"image,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: message})
}

// Upload ingests the multipart file field "image"
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, r, http.StatusRequestEntityTooLarge, "Image too large")
			return
		}
		h.logger.Warn("Failed to parse upload", "err", err)
		h.writeError(w, r, http.StatusBadRequest, "Invalid multipart upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "No image file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("Failed to read upload", "name", header.Filename, "err", err)
		h.writeError(w, r, http.StatusBadRequest, "Failed to read image")
		return
	}

	asset, err := h.service.Ingest(r.Context(), simpleimage.IngestRequest{
		Name: header.Filename,
		Data: data,
	})
	if err != nil {
		var transcodeErr *simpleimage.TranscodeError
		switch {
		case errors.Is(err, simpleimage.ErrInvalidRequest):
			h.writeError(w, r, http.StatusBadRequest, "Invalid image name or content")
		case errors.As(err, &transcodeErr):
			h.writeError(w, r, http.StatusUnprocessableEntity, "Unsupported or corrupt image")
		default:
			h.logger.Error("Error uploading image", "name", header.Filename, "err", err)
			h.writeError(w, r, http.StatusInternalServerError, "Failed to upload image")
		}
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, MessageResponse{
		Message: "Image uploaded and compressed successfully",
		Image:   asset,
	})
}

var galleryTemplate = template.Must(template.New("gallery").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Images</title>
    <style>
        body { font-family: Arial, sans-serif; padding: 20px; }
        .image-gallery { display: flex; flex-wrap: wrap; gap: 30px; justify-content: flex-start; }
        .image { display: inline-block; margin: 35px; text-align: center; }
        .image img { max-width: 500px; }
    </style>
</head>
<body>
    <h1>Images</h1>
    <div class="image-gallery">
    {{- range .Assets}}
        <div class="image">
            <h3>{{.Name}}</h3>
            <img src="{{$.BasePath}}/images/{{.ID}}" alt="{{.Name}}"/>
        </div>
    {{- end}}
    </div>
</body>
</html>
`))

type galleryData struct {
	BasePath string
	Assets   []*simpleimage.Asset
}

// ListImages renders the gallery page, or the asset list as JSON when
// ?format=json is given
func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	assets, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("Error retrieving images", "err", err)
		if r.URL.Query().Get("format") == "json" {
			h.writeError(w, r, http.StatusInternalServerError, "Failed to retrieve images")
			return
		}
		http.Error(w, "Failed to retrieve images", http.StatusInternalServerError)
		return
	}
	if assets == nil {
		assets = []*simpleimage.Asset{}
	}

	if r.URL.Query().Get("format") == "json" {
		render.JSON(w, r, assets)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := galleryTemplate.Execute(w, galleryData{BasePath: h.basePath, Assets: assets}); err != nil {
		h.logger.Error("Failed to render gallery", "err", err)
	}
}

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// GetImage streams the stored bytes of one asset
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		h.writeError(w, r, http.StatusBadRequest, "Invalid image id")
		return
	}

	img, err := h.service.Fetch(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, simpleimage.ErrAssetNotFound):
			h.writeError(w, r, http.StatusNotFound, "Image not found")
		case errors.Is(err, simpleimage.ErrBlobNotFound):
			h.logger.Warn("Dangling image record", "id", id)
			h.writeError(w, r, http.StatusNotFound, "Image file not found")
		default:
			h.logger.Error("Error retrieving image", "id", id, "err", err)
			h.writeError(w, r, http.StatusInternalServerError, "Failed to retrieve image")
		}
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img.Data); err != nil {
		h.logger.Warn("Failed to write image", "id", id, "err", err)
	}
}

// DeleteImage removes the asset and its bytes
func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		h.writeError(w, r, http.StatusBadRequest, "Invalid image id")
		return
	}

	if err := h.service.Remove(r.Context(), id); err != nil {
		if errors.Is(err, simpleimage.ErrAssetNotFound) {
			h.writeError(w, r, http.StatusNotFound, "Image not found")
			return
		}
		h.logger.Error("Error deleting image", "id", id, "err", err)
		h.writeError(w, r, http.StatusInternalServerError, "Failed to delete image")
		return
	}

	render.JSON(w, r, MessageResponse{Message: "Image deleted successfully"})
}
