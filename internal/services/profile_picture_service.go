package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"babycare-backend/internal/cache"
	"babycare-backend/internal/database"
	"babycare-backend/internal/imageproc"
	"babycare-backend/internal/metrics"
	"babycare-backend/internal/models"
)

var (
	ErrUnauthorized   = errors.New("authentication required")
	ErrForbidden      = errors.New("not authorized for this entity")
	ErrInvalidEntity  = errors.New("entity type must be user or baby")
	ErrNotFound       = errors.New("profile picture not found")
	ErrEntityNotFound = errors.New("entity not found")
)

// ProfileImageStore is the persistence the service needs. Save and Delete
// must each run as a single transaction.
type ProfileImageStore interface {
	SaveProfileImage(ctx context.Context, img *models.ProfileImage, profileURL string) error
	DeleteProfileImage(ctx context.Context, entityType models.EntityType, entityID, defaultURL string) error
	GetProfileImage(ctx context.Context, entityType models.EntityType, entityID string) (*models.ProfileImage, error)
	BabyBelongsToUser(ctx context.Context, babyID, userID string) (bool, error)
}

type ImageNormalizer interface {
	Normalize(ctx context.Context, data []byte, detectedMIME, filename string) (*imageproc.NormalizedImage, error)
}

type ServiceOptions struct {
	// Concurrency bounds how many uploads are decoded and re-encoded at once.
	Concurrency        int64
	// Slots, when set, is used instead of a semaphore sized by Concurrency so
	// the Gatekeeper's decodes can share the same budget.
	Slots              *semaphore.Weighted
	DefaultUserPicture string
	DefaultBabyPicture string
}

type ProfilePictureService struct {
	store      ProfileImageStore
	normalizer ImageNormalizer
	cache      *cache.ImageCache
	metrics    *metrics.Metrics
	slots      *semaphore.Weighted
	opts       ServiceOptions
	logger     *slog.Logger
	now        func() time.Time
}

func NewProfilePictureService(
	store ProfileImageStore,
	normalizer ImageNormalizer,
	imageCache *cache.ImageCache,
	m *metrics.Metrics,
	opts ServiceOptions,
	logger *slog.Logger,
) *ProfilePictureService {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.DefaultUserPicture == "" {
		opts.DefaultUserPicture = "/images/default-user.png"
	}
	if opts.DefaultBabyPicture == "" {
		opts.DefaultBabyPicture = "/images/default-baby.png"
	}
	if logger == nil {
		logger = slog.Default()
	}
	slots := opts.Slots
	if slots == nil {
		slots = semaphore.NewWeighted(opts.Concurrency)
	}
	return &ProfilePictureService{
		store:      store,
		normalizer: normalizer,
		cache:      imageCache,
		metrics:    m,
		slots:      slots,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// UploadInput carries an upload that has already passed the Gatekeeper.
type UploadInput struct {
	CallerID       string
	EntityType     models.EntityType
	EntityID       string
	Candidate      *imageproc.UploadCandidate
	OriginalFormat string
}

type UploadResult struct {
	ProfileURL       string
	OriginalFormat   string
	OptimizedFormat  string
	Width            int
	Height           int
	OriginalSize     int64
	OptimizedSize    int
	CompressionRatio float64
	Animated         bool
}

// NormalizeID canonicalises ids so "42", " 42" and "042" compare equal.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return strings.ToLower(id)
}

// Authorize checks that callerID may change the picture of the entity. Users
// may only touch their own picture; babies require a parent/guardian link.
func (s *ProfilePictureService) Authorize(ctx context.Context, callerID string, entityType models.EntityType, entityID string) error {
	if strings.TrimSpace(callerID) == "" {
		return ErrUnauthorized
	}
	switch entityType {
	case models.EntityUser:
		if NormalizeID(callerID) != NormalizeID(entityID) {
			return ErrForbidden
		}
		return nil
	case models.EntityBaby:
		ok, err := s.store.BabyBelongsToUser(ctx, entityID, callerID)
		if err != nil {
			return fmt.Errorf("failed to verify baby ownership: %w", err)
		}
		if !ok {
			return ErrForbidden
		}
		return nil
	default:
		return ErrInvalidEntity
	}
}

func (s *ProfilePictureService) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if in.Candidate == nil || len(in.Candidate.Data) == 0 {
		return nil, errors.New("upload has no image data")
	}
	if err := s.Authorize(ctx, in.CallerID, in.EntityType, in.EntityID); err != nil {
		s.metrics.Uploads.WithLabelValues(string(in.EntityType), "denied").Inc()
		return nil, err
	}

	normalized, err := s.normalize(ctx, in.Candidate)
	if err != nil {
		s.metrics.Uploads.WithLabelValues(string(in.EntityType), "processing_error").Inc()
		return nil, err
	}

	profileURL := ProfileURL(in.EntityType, in.EntityID, s.now())
	record := &models.ProfileImage{
		EntityType:       in.EntityType,
		EntityID:         in.EntityID,
		ImageData:        normalized.Data,
		MimeType:         normalized.MIMEType,
		OriginalFilename: in.Candidate.Filename,
		FileSize:         normalized.Size,
		Width:            normalized.Width,
		Height:           normalized.Height,
		IsAnimated:       normalized.Animated,
	}

	if err := s.store.SaveProfileImage(ctx, record, profileURL); err != nil {
		s.metrics.Uploads.WithLabelValues(string(in.EntityType), "storage_error").Inc()
		if errors.Is(err, database.ErrEntityNotFound) {
			return nil, ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to save profile picture: %w", err)
	}
	s.cache.Invalidate(in.EntityType, in.EntityID)

	originalSize := int64(len(in.Candidate.Data))
	s.metrics.Uploads.WithLabelValues(string(in.EntityType), "success").Inc()
	s.metrics.OptimizedFormats.WithLabelValues(string(normalized.Format)).Inc()
	if saved := originalSize - int64(normalized.Size); saved > 0 {
		s.metrics.BytesSaved.Add(float64(saved))
	}

	s.logger.Info("profile picture stored",
		"entity_type", in.EntityType,
		"entity_id", in.EntityID,
		"format", normalized.Format,
		"original_size", originalSize,
		"optimized_size", normalized.Size,
		"animated", normalized.Animated,
	)

	return &UploadResult{
		ProfileURL:       profileURL,
		OriginalFormat:   in.OriginalFormat,
		OptimizedFormat:  string(normalized.Format),
		Width:            normalized.Width,
		Height:           normalized.Height,
		OriginalSize:     originalSize,
		OptimizedSize:    normalized.Size,
		CompressionRatio: compressionRatio(originalSize, normalized.Size),
		Animated:         normalized.Animated,
	}, nil
}

// normalize runs the CPU-heavy part while holding a processing slot. Waiting
// for a slot stops as soon as the request context is done.
func (s *ProfilePictureService) normalize(ctx context.Context, c *imageproc.UploadCandidate) (*imageproc.NormalizedImage, error) {
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for processing slot: %w", err)
	}
	defer s.slots.Release(1)

	start := time.Now()
	normalized, err := s.normalizer.Normalize(ctx, c.Data, c.DeclaredMIME, c.Filename)
	s.metrics.ProcessingTime.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to process image: %w", err)
	}
	return normalized, nil
}

// Delete removes the entity's picture and returns the default path its
// reference now points to.
func (s *ProfilePictureService) Delete(ctx context.Context, callerID string, entityType models.EntityType, entityID string) (string, error) {
	if err := s.Authorize(ctx, callerID, entityType, entityID); err != nil {
		s.metrics.Deletes.WithLabelValues(string(entityType), "denied").Inc()
		return "", err
	}

	defaultURL := s.DefaultPicture(entityType)
	if err := s.store.DeleteProfileImage(ctx, entityType, entityID, defaultURL); err != nil {
		s.metrics.Deletes.WithLabelValues(string(entityType), "storage_error").Inc()
		if errors.Is(err, database.ErrEntityNotFound) {
			return "", ErrEntityNotFound
		}
		return "", fmt.Errorf("failed to delete profile picture: %w", err)
	}
	s.cache.Invalidate(entityType, entityID)
	s.metrics.Deletes.WithLabelValues(string(entityType), "success").Inc()

	s.logger.Info("profile picture deleted", "entity_type", entityType, "entity_id", entityID)
	return defaultURL, nil
}

// Get returns the stored picture, served from the in-memory cache when
// possible.
func (s *ProfilePictureService) Get(ctx context.Context, entityType models.EntityType, entityID string) (*models.ProfileImage, error) {
	if _, ok := models.ParseEntityType(string(entityType)); !ok {
		return nil, ErrInvalidEntity
	}
	if img, ok := s.cache.Get(entityType, entityID); ok {
		s.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return img, nil
	}
	s.metrics.CacheLookups.WithLabelValues("miss").Inc()

	generation := s.cache.Generation()
	img, err := s.store.GetProfileImage(ctx, entityType, entityID)
	if errors.Is(err, database.ErrImageNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.cache.AddIfCurrent(img, generation)
	return img, nil
}

func (s *ProfilePictureService) DefaultPicture(entityType models.EntityType) string {
	if entityType == models.EntityBaby {
		return s.opts.DefaultBabyPicture
	}
	return s.opts.DefaultUserPicture
}

// ProfileURL builds the reference stored on the entity. The v parameter
// changes on every upload so clients never reuse a cached old picture.
func ProfileURL(entityType models.EntityType, entityID string, at time.Time) string {
	return fmt.Sprintf("/v1/profile-picture/%s/%s?v=%d", entityType, url.PathEscape(entityID), at.UnixMilli())
}

func compressionRatio(original int64, optimized int) float64 {
	if optimized <= 0 {
		return 0
	}
	return math.Round(float64(original)/float64(optimized)*100) / 100
}
