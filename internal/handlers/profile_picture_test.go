package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"babycare-backend/internal/cache"
	"babycare-backend/internal/config"
	"babycare-backend/internal/database"
	"babycare-backend/internal/handlers"
	"babycare-backend/internal/imageproc"
	"babycare-backend/internal/imageproc/imagetest"
	"babycare-backend/internal/logging"
	"babycare-backend/internal/metrics"
	"babycare-backend/internal/middleware"
	"babycare-backend/internal/models"
	"babycare-backend/internal/services"
)

const testSecret = "handler-test-secret"

type memoryStore struct {
	mu       sync.Mutex
	images   map[string]*models.ProfileImage
	refs     map[string]string
	guardian map[string]string
	saveErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		images:   map[string]*models.ProfileImage{},
		refs:     map[string]string{},
		guardian: map[string]string{},
	}
}

func (m *memoryStore) SaveProfileImage(_ context.Context, img *models.ProfileImage, profileURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	stored := *img
	stored.ImageID = uuid.New()
	stored.CreatedAt = time.Now()
	key := string(img.EntityType) + ":" + img.EntityID
	m.images[key] = &stored
	m.refs[key] = profileURL
	return nil
}

func (m *memoryStore) DeleteProfileImage(_ context.Context, entityType models.EntityType, entityID, defaultURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(entityType) + ":" + entityID
	delete(m.images, key)
	m.refs[key] = defaultURL
	return nil
}

func (m *memoryStore) GetProfileImage(_ context.Context, entityType models.EntityType, entityID string) (*models.ProfileImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[string(entityType)+":"+entityID]
	if !ok {
		return nil, database.ErrImageNotFound
	}
	return img, nil
}

func (m *memoryStore) BabyBelongsToUser(_ context.Context, babyID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.guardian[babyID] == userID, nil
}

type fixture struct {
	router *gin.Engine
	store  *memoryStore
	avif   *imagetest.Encoder
	webp   *imagetest.Encoder
}

func newFixture(t *testing.T, gatekeeperOpts imageproc.GatekeeperOptions) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMemoryStore()
	avif := &imagetest.Encoder{Fmt: imageproc.FormatAVIF, Size: 64}
	webp := &imagetest.Encoder{Fmt: imageproc.FormatWebP, Size: 96}
	chain := imageproc.DefaultChain(avif, webp, imageproc.PNGEncoder{}, imageproc.DefaultAVIFMaxRatio)
	normalizer := imageproc.NewNormalizer(imageproc.DefaultNormalizerOptions(), chain, logging.Discard())

	imageCache, err := cache.NewImageCache(8)
	require.NoError(t, err)
	svc := services.NewProfilePictureService(store, normalizer, imageCache, metrics.New(), services.ServiceOptions{
		Concurrency:        2,
		DefaultUserPicture: "/images/default-user.png",
		DefaultBabyPicture: "/images/default-baby.png",
	}, logging.Discard())
	h := handlers.NewProfilePictureHandler(imageproc.NewGatekeeper(gatekeeperOpts), svc, logging.Discard())

	router := gin.New()
	v1 := router.Group("/v1")
	auth := middleware.AuthMiddleware(&config.Config{JWTSecret: testSecret})
	v1.POST("/profile-picture/upload", auth, h.Upload)
	v1.DELETE("/profile-picture/:entityType/:entityId", auth, h.Delete)
	v1.GET("/profile-picture/:entityType/:entityId", h.Get)

	return &fixture{router: router, store: store, avif: avif, webp: webp}
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": userID}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

type uploadForm struct {
	entityType string
	entityID   string
	filename   string
	data       []byte
}

func (f *fixture) upload(t *testing.T, auth string, form uploadForm) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("entityType", form.entityType))
	require.NoError(t, w.WriteField("entityId", form.entityID))
	if form.data != nil {
		part, err := w.CreateFormFile("profilePicture", form.filename)
		require.NoError(t, err)
		_, err = part.Write(form.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req, _ := http.NewRequest("POST", "/v1/profile-picture/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) request(method, path, auth string, header map[string]string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Message)
	return resp
}

func TestUpload_StoresOptimizedPicture(t *testing.T) {
	f := newFixture(t, imageproc.DefaultGatekeeperOptions())
	original := imagetest.PNG(1200, 800)

	rec := f.upload(t, bearer(t, "42"), uploadForm{entityType: "user", entityID: "42", filename: "me.png", data: original})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.UploadProfilePictureResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.ProfileURL, "/v1/profile-picture/user/42?v=")
	assert.Equal(t, "png", resp.OriginalFormat)
	assert.Equal(t, "avif", resp.OptimizedFormat)
	assert.Equal(t, "300x200", resp.Dimensions)
	assert.Equal(t, int64(len(original)), resp.OriginalSize)
	assert.Equal(t, 64, resp.OptimizedSize)
	assert.Greater(t, resp.CompressionRatio, 1.0)
	assert.False(t, resp.IsAnimated)

	assert.Equal(t, resp.ProfileURL, f.store.refs["user:42"])
	assert.Equal(t, 0, f.webp.Calls)
}

func TestUpload_ThenGetServesStoredBytes(t *testing.T) {
	f := newFixture(t, imageproc.DefaultGatekeeperOptions())
	rec := f.upload(t, bearer(t, "42"), uploadForm{entityType: "user", entityID: "42", filename: "me.png", data: imagetest.PNG(640, 640)})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.request("GET", "/v1/profile-picture/user/42", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/avif", rec.Header().Get("Content-Type"))
	assert.Len(t, rec.Body.Bytes(), 64)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec = f.request("GET", "/v1/profile-picture/user/42", "", map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, rec.Code)
}

func TestUpload_AnimatedGIFStaysGIF(t *testing.T) {
	f := newFixture(t, imageproc.DefaultGatekeeperOptions())
	f.store.guardian["7"] = "42"

	rec := f.upload(t, bearer(t, "42"), uploadForm{entityType: "baby", entityID: "7", filename: "wave.gif", data: imagetest.AnimatedGIF(120, 120, 3)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.UploadProfilePictureResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "gif", resp.OptimizedFormat)
	assert.True(t, resp.IsAnimated)
	assert.Equal(t, "120x120", resp.Dimensions)
	assert.Equal(t, 0, f.avif.Calls)
}

func TestUpload_RequiresToken(t *testing.T) {
	f := newFixture(t, imageproc.DefaultGatekeeperOptions())

	rec := f.upload(t, "", uploadForm{entityType: "user", entityID: "42", filename: "me.png", data: imagetest.PNG(10, 10)})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	decodeError(t, rec)
}

func TestUpload_AnotherUsersPictureIsForbidden(t *testing.T) {
	f := newFixture(t, imageproc.DefaultGatekeeperOptions())

	rec := f.upload(t, bearer(t, "1"), uploadForm{entityType: "user", entityID: "2", filename: "me.png", data: imagetest.PNG(400, 400)})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Error)
	assert.Empty(t, f.store.images)
	assert.Equal(t, 0, f.avif.Calls)
}

func TestUpload_AnotherParentsBabyIsForbidden(t *testing.T) {
	f := newFixture(t, imageproc.DefaultGatekeeperOptions())
	f.store.guardian["7"] = "parent-b"

	rec := f.upload(t, bearer(t, "parent-a"), uploadForm{entityType: "baby", entityID: "7", filename: "baby.png", data: imagetest.PNG(400, 400)})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, f.store.images)
}

func TestUpload_DisguisedFileIsRejected(t *testing.T) {
	f := newFixture(t, imageproc.DefaultGatekeeperOptions())

	rec := f.upload(t, bearer(t, "42"), uploadForm{
		entityType: "user",
		entityID:   "42",
		filename:   "holiday.png",
		data:       []byte("#!/bin/sh\necho this is not an image\n"),
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, imageproc.CodeInvalidImage, decodeError(t, rec).Error)
	assert.Empty(t, f.store.images)
	assert.Equal(t, 0, f.avif.Calls)
}

func TestUpload_TruncatedImageIsRejected(t *testing.T) {
	f := newFixture(t, imageproc.DefaultGatekeeperOptions())
	full := imagetest.PNG(400, 400)

	rec := f.upload(t, bearer(t, "42"), uploadForm{entityType: "user", entityID: "42", filename: "me.png", data: full[:len(full)/2]})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, imageproc.CodeInvalidImage, decodeError(t, rec).Error)
	assert.Empty(t, f.store.images)
	assert.Equal(t, 0, f.avif.Calls)
}

func TestUpload_ExtensionNotAllowed(t *testing.T) {
	f := newFixture(t, imageproc.DefaultGatekeeperOptions())

	rec := f.upload(t, bearer(t, "42"), uploadForm{entityType: "user", entityID: "42", filename: "me.exe", data: imagetest.PNG(10, 10)})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, imageproc.CodeExtensionNotAllowed, decodeError(t, rec).Error)
}

func TestUpload_FileTooLarge(t *testing.T) {
	opts := imageproc.DefaultGatekeeperOptions()
	opts.MaxBytes = 1024
	f := newFixture(t, opts)

	rec := f.upload(t, bearer(t, "42"), uploadForm{entityType: "user", entityID: "42", filename: "me.png", data: imagetest.Pad(imagetest.PNG(10, 10), 4096)})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, imageproc.CodeFileTooLarge, decodeError(t, rec).Error)
}

func TestUpload_MissingFields(t *testing.T) {
	f := newFixture(t, imageproc.DefaultGatekeeperOptions())
	auth := bearer(t, "42")

	tests := []struct {
		name string
		form uploadForm
	}{
		{"unknown entity type", uploadForm{entityType: "dog", entityID: "42", filename: "me.png", data: imagetest.PNG(10, 10)}},
		{"missing entity id", uploadForm{entityType: "user", entityID: "", filename: "me.png", data: imagetest.PNG(10, 10)}},
		{"missing file", uploadForm{entityType: "user", entityID: "42"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.upload(t, auth, tt.form)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			decodeError(t, rec)
		})
	}
}

func TestUpload_StorageFailureIsGeneric(t *testing.T) {
	f := newFixture(t, imageproc.DefaultGatekeeperOptions())
	f.store.saveErr = errors.New("pq: could not serialize access due to concurrent update")

	rec := f.upload(t, bearer(t, "42"), uploadForm{entityType: "user", entityID: "42", filename: "me.png", data: imagetest.PNG(400, 400)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
	decodeError(t, rec)
}

func TestUpload_MissingEntityRow(t *testing.T) {
	f := newFixture(t, imageproc.DefaultGatekeeperOptions())
	f.store.saveErr = database.ErrEntityNotFound

	rec := f.upload(t, bearer(t, "42"), uploadForm{entityType: "user", entityID: "42", filename: "me.png", data: imagetest.PNG(400, 400)})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDelete_ResetsToDefault(t *testing.T) {
	f := newFixture(t, imageproc.DefaultGatekeeperOptions())
	f.store.guardian["7"] = "42"
	rec := f.upload(t, bearer(t, "42"), uploadForm{entityType: "baby", entityID: "7", filename: "baby.jpg.png", data: imagetest.PNG(400, 400)})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.request("DELETE", "/v1/profile-picture/baby/7", bearer(t, "42"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.DeleteProfilePictureResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "/images/default-baby.png", resp.ProfileURL)

	rec = f.request("GET", "/v1/profile-picture/baby/7", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDelete_Forbidden(t *testing.T) {
	f := newFixture(t, imageproc.DefaultGatekeeperOptions())

	rec := f.request("DELETE", "/v1/profile-picture/user/2", bearer(t, "1"), nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDelete_RequiresToken(t *testing.T) {
	f := newFixture(t, imageproc.DefaultGatekeeperOptions())

	rec := f.request("DELETE", "/v1/profile-picture/user/2", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGet_UnknownEntityType(t *testing.T) {
	f := newFixture(t, imageproc.DefaultGatekeeperOptions())

	rec := f.request("GET", "/v1/profile-picture/dog/1", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
