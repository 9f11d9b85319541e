package models

import (
	"time"

	"github.com/google/uuid"
)

// EntityType names the owner of a profile picture.
type EntityType string

const (
	EntityUser EntityType = "user"
	EntityBaby EntityType = "baby"
)

func ParseEntityType(s string) (EntityType, bool) {
	switch EntityType(s) {
	case EntityUser, EntityBaby:
		return EntityType(s), true
	default:
		return "", false
	}
}

// ProfileImage is one row of profile_images. There is at most one row per
// (EntityType, EntityID).
type ProfileImage struct {
	ImageID          uuid.UUID
	EntityType       EntityType
	EntityID         string
	ImageData        []byte
	MimeType         string
	OriginalFilename string
	FileSize         int
	Width            int
	Height           int
	IsAnimated       bool
	CreatedAt        time.Time
}
