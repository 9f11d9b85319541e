package cache

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"babycare-backend/internal/models"
)

// ImageCache keeps recently served profile images in memory. It is built once
// at startup and passed to whoever needs it.
//
// Fills are guarded by a generation that every Invalidate bumps: a reader
// takes Generation before loading from the store and fills with AddIfCurrent,
// which drops the image if any write landed in between.
type ImageCache struct {
	mu         sync.Mutex
	lru        *lru.Cache[string, *models.ProfileImage]
	generation uint64
}

func NewImageCache(size int) (*ImageCache, error) {
	c, err := lru.New[string, *models.ProfileImage](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}
	return &ImageCache{lru: c}, nil
}

func key(entityType models.EntityType, entityID string) string {
	return string(entityType) + ":" + entityID
}

func (c *ImageCache) Get(entityType models.EntityType, entityID string) (*models.ProfileImage, bool) {
	return c.lru.Get(key(entityType, entityID))
}

// Generation returns the current write generation.
func (c *ImageCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// AddIfCurrent caches img only when no Invalidate happened since generation
// was taken. It reports whether img was cached.
func (c *ImageCache) AddIfCurrent(img *models.ProfileImage, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != generation {
		return false
	}
	c.lru.Add(key(img.EntityType, img.EntityID), img)
	return true
}

func (c *ImageCache) Invalidate(entityType models.EntityType, entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.lru.Remove(key(entityType, entityID))
}

func (c *ImageCache) Len() int {
	return c.lru.Len()
}
