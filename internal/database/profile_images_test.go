package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"babycare-backend/internal/database"
	"babycare-backend/internal/models"
)

func newMockClient(t *testing.T) (*database.DatabaseClient, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return database.NewDatabaseClientFromDB(db), mock
}

func sampleImage(entityType models.EntityType, entityID string) *models.ProfileImage {
	return &models.ProfileImage{
		EntityType:       entityType,
		EntityID:         entityID,
		ImageData:        []byte("new-image-bytes"),
		MimeType:         "image/webp",
		OriginalFilename: "me.png",
		FileSize:         15,
		Width:            300,
		Height:           200,
	}
}

func TestSaveProfileImage_OverwritesExistingRow(t *testing.T) {
	client, mock := newMockClient(t)
	existing := uuid.New()
	img := sampleImage(models.EntityUser, "42")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT image_id FROM profile_images WHERE entity_type = \$1 AND entity_id = \$2 FOR UPDATE`).
		WithArgs("user", "42").
		WillReturnRows(sqlmock.NewRows([]string{"image_id"}).AddRow(existing.String()))
	mock.ExpectExec(`UPDATE profile_images SET image_data = \$1`).
		WithArgs(img.ImageData, "image/webp", "me.png", 15, 300, 200, false, sqlmock.AnyArg(), existing).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET profile_picture_url = \$1 WHERE user_id = \$2`).
		WithArgs("/v1/profile-picture/user/42?v=1", "42").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := client.SaveProfileImage(context.Background(), img, "/v1/profile-picture/user/42?v=1")
	require.NoError(t, err)
	assert.Equal(t, existing, img.ImageID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveProfileImage_InsertsWhenMissing(t *testing.T) {
	client, mock := newMockClient(t)
	img := sampleImage(models.EntityBaby, "7")
	inserted := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT image_id FROM profile_images`).
		WithArgs("baby", "7").
		WillReturnRows(sqlmock.NewRows([]string{"image_id"}))
	mock.ExpectQuery(`INSERT INTO profile_images .* ON CONFLICT \(entity_type, entity_id\) DO UPDATE`).
		WithArgs(sqlmock.AnyArg(), "baby", "7", img.ImageData, "image/webp", "me.png", 15, 300, 200, false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"image_id"}).AddRow(inserted.String()))
	mock.ExpectExec(`UPDATE baby SET profile_picture_url = \$1 WHERE baby_id = \$2`).
		WithArgs("/v1/profile-picture/baby/7?v=2", "7").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := client.SaveProfileImage(context.Background(), img, "/v1/profile-picture/baby/7?v=2")
	require.NoError(t, err)
	assert.Equal(t, inserted, img.ImageID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveProfileImage_RollsBackWhenReferenceUpdateFails(t *testing.T) {
	client, mock := newMockClient(t)
	img := sampleImage(models.EntityUser, "42")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT image_id FROM profile_images`).
		WillReturnRows(sqlmock.NewRows([]string{"image_id"}))
	mock.ExpectQuery(`INSERT INTO profile_images`).
		WillReturnRows(sqlmock.NewRows([]string{"image_id"}).AddRow(uuid.New().String()))
	mock.ExpectExec(`UPDATE users SET profile_picture_url`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := client.SaveProfileImage(context.Background(), img, "/v1/profile-picture/user/42?v=3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveProfileImage_MissingEntityRollsBack(t *testing.T) {
	client, mock := newMockClient(t)
	img := sampleImage(models.EntityUser, "404")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT image_id FROM profile_images`).
		WillReturnRows(sqlmock.NewRows([]string{"image_id"}).AddRow(uuid.New().String()))
	mock.ExpectExec(`UPDATE profile_images`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET profile_picture_url`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := client.SaveProfileImage(context.Background(), img, "/v1/profile-picture/user/404?v=1")
	assert.ErrorIs(t, err, database.ErrEntityNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveProfileImage_LookupFailureRollsBack(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT image_id FROM profile_images`).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	err := client.SaveProfileImage(context.Background(), sampleImage(models.EntityUser, "1"), "/x")
	assert.ErrorContains(t, err, "failed to look up profile image")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveProfileImage_RejectsUnknownEntityType(t *testing.T) {
	client, mock := newMockClient(t)

	err := client.SaveProfileImage(context.Background(), sampleImage("forum", "1"), "/x")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteProfileImage_ResetsReference(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM profile_images WHERE entity_type = \$1 AND entity_id = \$2`).
		WithArgs("baby", "7").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE baby SET profile_picture_url = \$1 WHERE baby_id = \$2`).
		WithArgs("/images/default-baby.png", "7").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := client.DeleteProfileImage(context.Background(), models.EntityBaby, "7", "/images/default-baby.png")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteProfileImage_RollsBackOnReferenceFailure(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM profile_images`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET profile_picture_url`).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := client.DeleteProfileImage(context.Background(), models.EntityUser, "42", "/images/default-user.png")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfileImage(t *testing.T) {
	client, mock := newMockClient(t)
	id := uuid.New()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`SELECT image_id, entity_type, entity_id, image_data`).
		WithArgs("user", "42").
		WillReturnRows(sqlmock.NewRows([]string{
			"image_id", "entity_type", "entity_id", "image_data", "mime_type", "original_filename",
			"file_size", "width", "height", "is_animated", "created_at",
		}).AddRow(id.String(), "user", "42", []byte("gif"), "image/gif", "a.gif", 3, 10, 10, true, created))

	img, err := client.GetProfileImage(context.Background(), models.EntityUser, "42")
	require.NoError(t, err)
	assert.Equal(t, id, img.ImageID)
	assert.Equal(t, models.EntityUser, img.EntityType)
	assert.Equal(t, []byte("gif"), img.ImageData)
	assert.True(t, img.IsAnimated)
	assert.Equal(t, created, img.CreatedAt)
}

func TestGetProfileImage_NotFound(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectQuery(`SELECT image_id, entity_type`).
		WillReturnRows(sqlmock.NewRows([]string{"image_id"}))

	_, err := client.GetProfileImage(context.Background(), models.EntityBaby, "9")
	assert.ErrorIs(t, err, database.ErrImageNotFound)
}

func TestBabyBelongsToUser(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("7", "42").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := client.BabyBelongsToUser(context.Background(), "7", "42")
	require.NoError(t, err)
	assert.True(t, ok)
}
