package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"babycare-backend/internal/imageproc"
	"babycare-backend/internal/middleware"
	"babycare-backend/internal/models"
	"babycare-backend/internal/services"
)

const (
	profilePictureField = "profilePicture"
	// multipartOverhead covers the text fields and part headers on top of the
	// file itself.
	multipartOverhead = 1 << 20
)

type ProfilePictureHandler struct {
	gatekeeper *imageproc.Gatekeeper
	service    *services.ProfilePictureService
	logger     *slog.Logger
}

func NewProfilePictureHandler(gatekeeper *imageproc.Gatekeeper, service *services.ProfilePictureService, logger *slog.Logger) *ProfilePictureHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfilePictureHandler{
		gatekeeper: gatekeeper,
		service:    service,
		logger:     logger,
	}
}

// Upload godoc
// @Summary     Upload a profile picture
// @Description Uploads a picture for a user or a baby. The file is checked by content, resized
// @Description and re-encoded (AVIF, WebP or PNG; animated GIFs stay GIF) before it replaces the
// @Description entity's current picture.
// @Tags        profile-picture
// @Accept      multipart/form-data
// @Produce     json
// @Security    Bearer
// @Param       profilePicture formData file   true "Image file (jpg, jpeg, png, gif, webp, avif, bmp, tiff)"
// @Param       entityType     formData string true "user or baby"
// @Param       entityId       formData string true "Id of the user or baby"
// @Success     200 {object} models.UploadProfilePictureResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     403 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /profile-picture/upload [post]
func (h *ProfilePictureHandler) Upload(c *gin.Context) {
	callerID := middleware.UserID(c)
	if callerID == "" {
		h.respondError(c, services.ErrUnauthorized)
		return
	}

	maxBytes := h.gatekeeper.MaxBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(c, &imageproc.ValidationError{
				Code:    imageproc.CodeFileTooLarge,
				Message: fmt.Sprintf("file size exceeds the %d MB limit", maxBytes>>20),
			})
			return
		}
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "failed to parse multipart form",
		})
		return
	}
	defer c.Request.MultipartForm.RemoveAll()

	entityType, ok := models.ParseEntityType(strings.TrimSpace(c.PostForm("entityType")))
	if !ok {
		h.respondError(c, services.ErrInvalidEntity)
		return
	}
	entityID := strings.TrimSpace(c.PostForm("entityId"))
	if entityID == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "entityId is required",
		})
		return
	}

	fileHeader, err := c.FormFile(profilePictureField)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: fmt.Sprintf("no file uploaded; send the image in the %q field", profilePictureField),
		})
		return
	}

	// Authorization comes before any work on the file.
	if err := h.service.Authorize(c.Request.Context(), callerID, entityType, entityID); err != nil {
		h.respondError(c, err)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.respondError(c, fmt.Errorf("failed to open uploaded file: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		h.respondError(c, fmt.Errorf("failed to read uploaded file: %w", err))
		return
	}

	candidate, verdict, err := h.gatekeeper.Admit(c.Request.Context(), &imageproc.UploadCandidate{
		Data:         data,
		DeclaredMIME: fileHeader.Header.Get("Content-Type"),
		Filename:     fileHeader.Filename,
		DeclaredSize: fileHeader.Size,
	})
	if err != nil {
		h.logger.Info("upload rejected", "entity_type", entityType, "entity_id", entityID, "reason", err.Error())
		h.respondError(c, err)
		return
	}

	result, err := h.service.Upload(c.Request.Context(), services.UploadInput{
		CallerID:       callerID,
		EntityType:     entityType,
		EntityID:       entityID,
		Candidate:      candidate,
		OriginalFormat: verdict.Format,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.UploadProfilePictureResponse{
		Message:          "profile picture updated successfully",
		ProfileURL:       result.ProfileURL,
		OriginalFormat:   result.OriginalFormat,
		OptimizedFormat:  result.OptimizedFormat,
		Dimensions:       fmt.Sprintf("%dx%d", result.Width, result.Height),
		OriginalSize:     result.OriginalSize,
		OptimizedSize:    result.OptimizedSize,
		CompressionRatio: result.CompressionRatio,
		IsAnimated:       result.Animated,
	})
}

// Delete godoc
// @Summary     Delete a profile picture
// @Description Removes the stored picture and points the entity back at its default picture.
// @Tags        profile-picture
// @Produce     json
// @Security    Bearer
// @Param       entityType path string true "user or baby"
// @Param       entityId   path string true "Id of the user or baby"
// @Success     200 {object} models.DeleteProfilePictureResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     403 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /profile-picture/{entityType}/{entityId} [delete]
func (h *ProfilePictureHandler) Delete(c *gin.Context) {
	callerID := middleware.UserID(c)
	if callerID == "" {
		h.respondError(c, services.ErrUnauthorized)
		return
	}

	entityType, ok := models.ParseEntityType(c.Param("entityType"))
	if !ok {
		h.respondError(c, services.ErrInvalidEntity)
		return
	}
	entityID := strings.TrimSpace(c.Param("entityId"))

	defaultURL, err := h.service.Delete(c.Request.Context(), callerID, entityType, entityID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.DeleteProfilePictureResponse{
		Message:    "profile picture deleted",
		ProfileURL: defaultURL,
	})
}

// Get godoc
// @Summary     Fetch a profile picture
// @Description Returns the stored image bytes with their content type.
// @Tags        profile-picture
// @Produce     image/avif,image/webp,image/png,image/gif
// @Param       entityType path string true "user or baby"
// @Param       entityId   path string true "Id of the user or baby"
// @Success     200 {file}   binary
// @Success     304
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /profile-picture/{entityType}/{entityId} [get]
func (h *ProfilePictureHandler) Get(c *gin.Context) {
	entityType, ok := models.ParseEntityType(c.Param("entityType"))
	if !ok {
		h.respondError(c, services.ErrInvalidEntity)
		return
	}
	entityID := strings.TrimSpace(c.Param("entityId"))

	img, err := h.service.Get(c.Request.Context(), entityType, entityID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	etag := fmt.Sprintf(`"%s-%d"`, img.ImageID, img.CreatedAt.UnixMilli())
	c.Header("ETag", etag)
	c.Header("Cache-Control", "public, max-age=86400")
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, img.MimeType, img.ImageData)
}

// respondError maps pipeline errors to status codes. Unknown errors are
// logged and reported without detail.
func (h *ProfilePictureHandler) respondError(c *gin.Context, err error) {
	var validation *imageproc.ValidationError
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: validation.Code, Message: validation.Message})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized", Message: err.Error()})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "forbidden", Message: err.Error()})
	case errors.Is(err, services.ErrInvalidEntity):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_entity", Message: err.Error()})
	case errors.Is(err, services.ErrEntityNotFound), errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found", Message: err.Error()})
	default:
		h.logger.Error("profile picture request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "failed to process profile picture, please try again",
		})
	}
}
