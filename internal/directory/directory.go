// Package directory is the cached read model for camera lookups. It
// memoizes single-record and per-user list queries against the repository
// and is invalidated explicitly when ownership or sharing relations change.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/buurz-forks/evercam-server/internal/models"
)

// Repository is the persistence collaborator the directory reads through on
// cache misses.
type Repository interface {
	FindCameraByExid(ctx context.Context, exid string) (models.Camera, bool, error)
	FullCameraByExid(ctx context.Context, exid string) (models.FullCamera, bool, error)
	ListCamerasOwnedBy(ctx context.Context, userID string) ([]models.Camera, error)
	ListCamerasSharedWith(ctx context.Context, userID string) ([]models.Camera, error)
	AffectedUsers(ctx context.Context, cameraID int64) ([]string, error)
}

// Directory caches camera lookups by external identifier and by
// (user, include-shared) query shape.
type Directory struct {
	repo   Repository
	cache  Cache
	logger *slog.Logger
}

// New constructs a Directory. The cache defaults to an in-process map.
func New(repo Repository, cache Cache, logger *slog.Logger) *Directory {
	if cache == nil {
		cache = NewMemoryCache(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{repo: repo, cache: cache, logger: logger}
}

type cachedCamera struct {
	Found  bool               `json:"found"`
	Camera *models.Camera     `json:"camera,omitempty"`
	Full   *models.FullCamera `json:"full,omitempty"`
}

func cameraKey(exid string) string     { return "camera:" + exid }
func fullCameraKey(exid string) string { return "camera-full:" + exid }
func listKey(userID string, includeShared bool) string {
	return "cameras:" + userID + ":" + strconv.FormatBool(includeShared)
}

// GetByID returns the camera with the given external identifier, memoized.
// Negative lookups are cached too, so repeated probes for unknown cameras do
// not reach the repository.
func (d *Directory) GetByID(ctx context.Context, exid string) (models.Camera, bool, error) {
	exid = strings.TrimSpace(exid)
	if exid == "" {
		return models.Camera{}, false, nil
	}
	key := cameraKey(exid)
	if raw, hit, err := d.cache.Get(ctx, key); err == nil && hit {
		var entry cachedCamera
		if err := json.Unmarshal(raw, &entry); err == nil {
			if !entry.Found || entry.Camera == nil {
				return models.Camera{}, false, nil
			}
			return *entry.Camera, true, nil
		}
	} else if err != nil {
		d.logger.Warn("directory cache read failed", "key", key, "error", err)
	}

	cam, found, err := d.repo.FindCameraByExid(ctx, exid)
	if err != nil {
		return models.Camera{}, false, fmt.Errorf("find camera %s: %w", exid, err)
	}
	entry := cachedCamera{Found: found}
	if found {
		entry.Camera = &cam
	}
	d.store(ctx, key, entry)
	return cam, found, nil
}

// GetFull returns the hydrated camera record including owner, vendor chain,
// and access rights, memoized under its own key.
func (d *Directory) GetFull(ctx context.Context, exid string) (models.FullCamera, bool, error) {
	exid = strings.TrimSpace(exid)
	if exid == "" {
		return models.FullCamera{}, false, nil
	}
	key := fullCameraKey(exid)
	if raw, hit, err := d.cache.Get(ctx, key); err == nil && hit {
		var entry cachedCamera
		if err := json.Unmarshal(raw, &entry); err == nil {
			if !entry.Found || entry.Full == nil {
				return models.FullCamera{}, false, nil
			}
			return *entry.Full, true, nil
		}
	} else if err != nil {
		d.logger.Warn("directory cache read failed", "key", key, "error", err)
	}

	cam, found, err := d.repo.FullCameraByExid(ctx, exid)
	if err != nil {
		return models.FullCamera{}, false, fmt.Errorf("load camera %s: %w", exid, err)
	}
	entry := cachedCamera{Found: found}
	if found {
		entry.Full = &cam
	}
	d.store(ctx, key, entry)
	return cam, found, nil
}

// ListForUser returns the cameras visible to a user: owned cameras, plus
// shared ones when includeShared is set. The result is memoized per
// (user, include-shared) pair.
func (d *Directory) ListForUser(ctx context.Context, userID string, includeShared bool) ([]models.Camera, error) {
	key := listKey(userID, includeShared)
	if raw, hit, err := d.cache.Get(ctx, key); err == nil && hit {
		var cameras []models.Camera
		if err := json.Unmarshal(raw, &cameras); err == nil {
			return cameras, nil
		}
	} else if err != nil {
		d.logger.Warn("directory cache read failed", "key", key, "error", err)
	}

	cameras, err := d.repo.ListCamerasOwnedBy(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cameras for %s: %w", userID, err)
	}
	if includeShared {
		shared, err := d.repo.ListCamerasSharedWith(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list shared cameras for %s: %w", userID, err)
		}
		seen := make(map[string]struct{}, len(cameras))
		for _, cam := range cameras {
			seen[cam.Exid] = struct{}{}
		}
		for _, cam := range shared {
			if _, dup := seen[cam.Exid]; !dup {
				cameras = append(cameras, cam)
			}
		}
	}
	if raw, err := json.Marshal(cameras); err == nil {
		if err := d.cache.Set(ctx, key, raw); err != nil {
			d.logger.Warn("directory cache write failed", "key", key, "error", err)
		}
	}
	return cameras, nil
}

// InvalidateCamera evicts the camera's record entries and the list entries
// of every user whose visible set may have changed: the owner and everyone
// holding a share. Safe to call repeatedly.
func (d *Directory) InvalidateCamera(ctx context.Context, cam models.FullCamera) error {
	keys := []string{cameraKey(cam.Exid), fullCameraKey(cam.Exid)}

	affected, err := d.repo.AffectedUsers(ctx, cam.ID)
	if err != nil {
		// Fall back to the rights already hydrated on the record.
		d.logger.Warn("affected-users query failed", "camera", cam.Exid, "error", err)
		affected = affected[:0]
		for _, right := range cam.Rights {
			if right.Active() {
				affected = append(affected, right.TokenUserID)
			}
		}
	}
	affected = append(affected, cam.OwnerID)

	seen := make(map[string]struct{}, len(affected))
	for _, userID := range affected {
		if userID == "" {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		keys = append(keys, listKey(userID, true), listKey(userID, false))
	}
	return d.cache.Delete(ctx, keys...)
}

// InvalidateUser evicts both list-cache entries for a user.
func (d *Directory) InvalidateUser(ctx context.Context, userID string) error {
	return d.cache.Delete(ctx, listKey(userID, true), listKey(userID, false))
}

func (d *Directory) store(ctx context.Context, key string, entry cachedCamera) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, key, raw); err != nil {
		d.logger.Warn("directory cache write failed", "key", key, "error", err)
	}
}

// Rights computes the capability string a user holds on a camera. Owners
// hold every capability and its grant variant. Any other user holds the
// baseline snapshot,list plus whatever has been granted to them.
func Rights(cam models.FullCamera, userID string) string {
	if userID != "" && userID == cam.OwnerID {
		full := make([]string, 0, 2*len(allRights))
		full = append(full, allRights...)
		for _, right := range allRights {
			full = append(full, models.GrantPrefix+right)
		}
		return strings.Join(full, ",")
	}

	rights := make([]string, 0, len(models.BaseRights)+len(cam.Rights))
	rights = append(rights, models.BaseRights...)
	seen := map[string]struct{}{models.RightSnapshot: {}, models.RightList: {}}
	for _, right := range cam.Rights {
		if !right.Active() || right.TokenUserID != userID {
			continue
		}
		name := strings.TrimSpace(right.Right)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		rights = append(rights, name)
	}
	return strings.Join(rights, ",")
}

var allRights = []string{
	models.RightSnapshot,
	models.RightList,
	models.RightEdit,
	models.RightDelete,
	models.RightView,
}
