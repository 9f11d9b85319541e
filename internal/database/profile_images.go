package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"babycare-backend/internal/models"
)

// entityTables maps entity types to the table holding profile_picture_url
// and its key column. Only these fixed identifiers are ever interpolated.
var entityTables = map[models.EntityType]struct{ table, key string }{
	models.EntityUser: {table: "users", key: "user_id"},
	models.EntityBaby: {table: "baby", key: "baby_id"},
}

func entityTable(entityType models.EntityType) (string, string, error) {
	t, ok := entityTables[entityType]
	if !ok {
		return "", "", fmt.Errorf("unknown entity type %q", entityType)
	}
	return t.table, t.key, nil
}

// SaveProfileImage stores img as the single image of its entity and points
// the entity's profile_picture_url at profileURL, in one transaction.
func (d *DatabaseClient) SaveProfileImage(ctx context.Context, img *models.ProfileImage, profileURL string) error {
	table, key, err := entityTable(img.EntityType)
	if err != nil {
		return err
	}

	return withTx(ctx, d.db, func(tx *sql.Tx) error {
		var existingID uuid.UUID
		err := tx.QueryRowContext(ctx, `
			SELECT image_id
			FROM profile_images
			WHERE entity_type = $1 AND entity_id = $2
			FOR UPDATE
		`, img.EntityType, img.EntityID).Scan(&existingID)

		switch {
		case err == nil:
			_, err = tx.ExecContext(ctx, `
				UPDATE profile_images
				SET image_data = $1, mime_type = $2, original_filename = $3, file_size = $4,
				    width = $5, height = $6, is_animated = $7, created_at = $8
				WHERE image_id = $9
			`, img.ImageData, img.MimeType, img.OriginalFilename, img.FileSize,
				img.Width, img.Height, img.IsAnimated, d.now(), existingID)
			if err != nil {
				return fmt.Errorf("failed to update profile image: %w", err)
			}
			img.ImageID = existingID

		case errors.Is(err, sql.ErrNoRows):
			if img.ImageID == uuid.Nil {
				img.ImageID = uuid.New()
			}
			// A concurrent insert for the same entity lands on the unique
			// constraint and turns into an update.
			err = tx.QueryRowContext(ctx, `
				INSERT INTO profile_images (image_id, entity_type, entity_id, image_data, mime_type,
				                            original_filename, file_size, width, height, is_animated, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				ON CONFLICT (entity_type, entity_id) DO UPDATE
				SET image_data = EXCLUDED.image_data, mime_type = EXCLUDED.mime_type,
				    original_filename = EXCLUDED.original_filename, file_size = EXCLUDED.file_size,
				    width = EXCLUDED.width, height = EXCLUDED.height,
				    is_animated = EXCLUDED.is_animated, created_at = EXCLUDED.created_at
				RETURNING image_id
			`, img.ImageID, img.EntityType, img.EntityID, img.ImageData, img.MimeType,
				img.OriginalFilename, img.FileSize, img.Width, img.Height, img.IsAnimated, d.now(),
			).Scan(&img.ImageID)
			if err != nil {
				return fmt.Errorf("failed to insert profile image: %w", err)
			}

		default:
			return fmt.Errorf("failed to look up profile image: %w", err)
		}

		return updateProfileURL(ctx, tx, table, key, img.EntityID, profileURL)
	})
}

// DeleteProfileImage removes the entity's image and resets its
// profile_picture_url to defaultURL, in one transaction. Deleting when no
// image is stored still resets the reference.
func (d *DatabaseClient) DeleteProfileImage(ctx context.Context, entityType models.EntityType, entityID, defaultURL string) error {
	table, key, err := entityTable(entityType)
	if err != nil {
		return err
	}

	return withTx(ctx, d.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM profile_images
			WHERE entity_type = $1 AND entity_id = $2
		`, entityType, entityID); err != nil {
			return fmt.Errorf("failed to delete profile image: %w", err)
		}
		return updateProfileURL(ctx, tx, table, key, entityID, defaultURL)
	})
}

func updateProfileURL(ctx context.Context, tx *sql.Tx, table, key, entityID, url string) error {
	query := fmt.Sprintf(`UPDATE %s SET profile_picture_url = $1 WHERE %s = $2`, table, key)
	result, err := tx.ExecContext(ctx, query, url, entityID)
	if err != nil {
		return fmt.Errorf("failed to update %s profile_picture_url: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrEntityNotFound
	}
	return nil
}

func (d *DatabaseClient) GetProfileImage(ctx context.Context, entityType models.EntityType, entityID string) (*models.ProfileImage, error) {
	var img models.ProfileImage
	err := d.db.QueryRowContext(ctx, `
		SELECT image_id, entity_type, entity_id, image_data, mime_type, original_filename,
		       file_size, width, height, is_animated, created_at
		FROM profile_images
		WHERE entity_type = $1 AND entity_id = $2
	`, entityType, entityID).Scan(
		&img.ImageID, &img.EntityType, &img.EntityID, &img.ImageData, &img.MimeType,
		&img.OriginalFilename, &img.FileSize, &img.Width, &img.Height, &img.IsAnimated, &img.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrImageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile image: %w", err)
	}
	return &img, nil
}

// BabyBelongsToUser reports whether userID is a parent or guardian of babyID.
func (d *DatabaseClient) BabyBelongsToUser(ctx context.Context, babyID, userID string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_baby WHERE baby_id = $1 AND user_id = $2
		)
	`, babyID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check baby ownership: %w", err)
	}
	return exists, nil
}
