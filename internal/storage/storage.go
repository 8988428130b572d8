// Package storage persists cameras, users, vendors, and access rights. Two
// drivers implement the same Repository contract: a JSON-file store for
// development and tests, and a Postgres store for production.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/buurz-forks/evercam-server/internal/models"
)

type dataset struct {
	Users        map[string]models.User        `json:"users"`
	Cameras      map[string]models.Camera      `json:"cameras"`
	Vendors      map[string]models.Vendor      `json:"vendors"`
	VendorModels map[string]models.VendorModel `json:"vendorModels"`
	AccessRights []models.AccessRight          `json:"accessRights"`
	NextID       int64                         `json:"nextId"`
}

func newDataset() dataset {
	return dataset{
		Users:        make(map[string]models.User),
		Cameras:      make(map[string]models.Camera),
		Vendors:      make(map[string]models.Vendor),
		VendorModels: make(map[string]models.VendorModel),
		NextID:       1,
	}
}

// Storage is the JSON-file Repository driver. All mutations clone the
// dataset, persist the copy atomically, and only then swap it in.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
}

// NewStorage loads (or initialises) the JSON datastore at path.
func NewStorage(path string) (*Storage, error) {
	store := &Storage{filePath: path}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("read store file: %w", err)
	}
	data := newDataset()
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("decode store file: %w", err)
	}
	if data.NextID <= 0 {
		data.NextID = 1
	}
	s.data = data
	return nil
}

func (s *Storage) persistDataset(data dataset) error {
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

func cloneDataset(src dataset) dataset {
	out := newDataset()
	for id, user := range src.Users {
		out.Users[id] = user
	}
	for exid, cam := range src.Cameras {
		out.Cameras[exid] = cam
	}
	for exid, vendor := range src.Vendors {
		out.Vendors[exid] = vendor
	}
	for name, model := range src.VendorModels {
		out.VendorModels[name] = model
	}
	out.AccessRights = append([]models.AccessRight(nil), src.AccessRights...)
	out.NextID = src.NextID
	return out
}

// Ping reports the store as reachable; the file store has no remote side.
func (s *Storage) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the file store.
func (s *Storage) Close(ctx context.Context) error {
	return nil
}

// FindCameraByExid returns the camera with the given external identifier.
func (s *Storage) FindCameraByExid(ctx context.Context, exid string) (models.Camera, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cam, ok := s.data.Cameras[exid]
	return cam, ok, nil
}

// FullCameraByExid hydrates the camera with owner, vendor chain, and rights.
func (s *Storage) FullCameraByExid(ctx context.Context, exid string) (models.FullCamera, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cam, ok := s.data.Cameras[exid]
	if !ok {
		return models.FullCamera{}, false, nil
	}
	full := models.FullCamera{Camera: cam}
	full.Owner = s.data.Users[cam.OwnerID]
	if cam.VendorModelID != 0 {
		for _, model := range s.data.VendorModels {
			if model.ID != cam.VendorModelID {
				continue
			}
			vendorModel := model
			full.VendorModel = &vendorModel
			for _, vendor := range s.data.Vendors {
				if vendor.ID == model.VendorID {
					hydrated := vendor
					full.Vendor = &hydrated
					break
				}
			}
			break
		}
	}
	for _, right := range s.data.AccessRights {
		if right.CameraID == cam.ID {
			full.Rights = append(full.Rights, right)
		}
	}
	return full, true, nil
}

// ListCamerasOwnedBy returns the cameras owned by a user, ordered by exid.
func (s *Storage) ListCamerasOwnedBy(ctx context.Context, userID string) ([]models.Camera, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var cameras []models.Camera
	for _, cam := range s.data.Cameras {
		if cam.OwnerID == userID {
			cameras = append(cameras, cam)
		}
	}
	sortCameras(cameras)
	return cameras, nil
}

// ListCamerasSharedWith returns cameras the user holds an active right on.
func (s *Storage) ListCamerasSharedWith(ctx context.Context, userID string) ([]models.Camera, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	shared := make(map[int64]struct{})
	for _, right := range s.data.AccessRights {
		if right.Active() && right.TokenUserID == userID {
			shared[right.CameraID] = struct{}{}
		}
	}
	var cameras []models.Camera
	for _, cam := range s.data.Cameras {
		if _, ok := shared[cam.ID]; ok && cam.OwnerID != userID {
			cameras = append(cameras, cam)
		}
	}
	sortCameras(cameras)
	return cameras, nil
}

// AffectedUsers returns the owner and every user with an active share on the
// camera, the set whose cached camera lists an invalidation must evict.
func (s *Storage) AffectedUsers(ctx context.Context, cameraID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var users []string
	for _, cam := range s.data.Cameras {
		if cam.ID == cameraID && cam.OwnerID != "" {
			seen[cam.OwnerID] = struct{}{}
			users = append(users, cam.OwnerID)
			break
		}
	}
	for _, right := range s.data.AccessRights {
		if right.CameraID != cameraID || !right.Active() {
			continue
		}
		if _, dup := seen[right.TokenUserID]; dup {
			continue
		}
		seen[right.TokenUserID] = struct{}{}
		users = append(users, right.TokenUserID)
	}
	sort.Strings(users)
	return users, nil
}

// CreateUser registers a user and returns the record alongside the raw API
// key, which is shown once and stored only as a hash.
func (s *Storage) CreateUser(ctx context.Context, params CreateUserParams) (models.User, string, error) {
	username := strings.TrimSpace(params.Username)
	if username == "" {
		return models.User{}, "", fmt.Errorf("username is required")
	}
	passwordHash, err := hashPassword(params.Password)
	if err != nil {
		return models.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	id, err := generateID()
	if err != nil {
		return models.User{}, "", err
	}
	apiID, apiKey, apiKeyHash, err := generateAPICredentials()
	if err != nil {
		return models.User{}, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.Users {
		if existing.Username == username {
			return models.User{}, "", fmt.Errorf("username %s already taken", username)
		}
	}
	updated := cloneDataset(s.data)
	user := models.User{
		ID:           id,
		Username:     username,
		Email:        strings.TrimSpace(params.Email),
		PasswordHash: passwordHash,
		APIID:        apiID,
		APIKeyHash:   apiKeyHash,
		CreatedAt:    time.Now().UTC(),
	}
	updated.Users[user.ID] = user
	if err := s.persistDataset(updated); err != nil {
		return models.User{}, "", err
	}
	s.data = updated
	return user, apiKey, nil
}

// GetUser returns the user with the given id.
func (s *Storage) GetUser(ctx context.Context, id string) (models.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[id]
	return user, ok, nil
}

// FindUserByUsername returns the user with the given username.
func (s *Storage) FindUserByUsername(ctx context.Context, username string) (models.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.data.Users {
		if user.Username == username {
			return user, true, nil
		}
	}
	return models.User{}, false, nil
}

// AuthenticateUser verifies a username/password pair. All failures collapse
// to ErrInvalidCredentials.
func (s *Storage) AuthenticateUser(ctx context.Context, username, password string) (models.User, error) {
	if password == "" {
		return models.User{}, ErrInvalidCredentials
	}
	user, ok, err := s.FindUserByUsername(ctx, username)
	if err != nil || !ok {
		return models.User{}, ErrInvalidCredentials
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// AuthenticateAPI verifies an API id/key pair. All failures collapse to
// ErrInvalidCredentials.
func (s *Storage) AuthenticateAPI(ctx context.Context, apiID, apiKey string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.data.Users {
		if user.APIID != apiID {
			continue
		}
		if verifyAPIKey(user.APIKeyHash, apiKey) {
			return user, nil
		}
		return models.User{}, ErrInvalidCredentials
	}
	return models.User{}, ErrInvalidCredentials
}

// CreateCamera registers a camera. When VendorModel names a known model the
// camera is linked to it for config fallback.
func (s *Storage) CreateCamera(ctx context.Context, params CreateCameraParams) (models.Camera, error) {
	exid := strings.TrimSpace(params.Exid)
	if exid == "" {
		return models.Camera{}, fmt.Errorf("camera exid is required")
	}
	if params.OwnerID == "" {
		return models.Camera{}, fmt.Errorf("camera owner is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.Cameras[exid]; exists {
		return models.Camera{}, fmt.Errorf("camera %s already exists", exid)
	}
	if _, ok := s.data.Users[params.OwnerID]; !ok {
		return models.Camera{}, fmt.Errorf("owner %s: %w", params.OwnerID, ErrNotFound)
	}

	updated := cloneDataset(s.data)
	now := time.Now().UTC()
	cam := models.Camera{
		ID:        updated.NextID,
		Exid:      exid,
		OwnerID:   params.OwnerID,
		Name:      strings.TrimSpace(params.Name),
		Timezone:  strings.TrimSpace(params.Timezone),
		Config:    params.Config,
		CreatedAt: now,
		UpdatedAt: now,
	}
	updated.NextID++
	if name := strings.TrimSpace(params.VendorModel); name != "" {
		model, ok := updated.VendorModels[name]
		if !ok {
			return models.Camera{}, fmt.Errorf("vendor model %s: %w", name, ErrNotFound)
		}
		cam.VendorModelID = model.ID
	}
	if cam.Config == nil {
		cam.Config = models.CameraConfig{}
	}
	updated.Cameras[exid] = cam
	if err := s.persistDataset(updated); err != nil {
		return models.Camera{}, err
	}
	s.data = updated
	return cam, nil
}

// UpdateCameraConfig replaces the camera's configuration blob.
func (s *Storage) UpdateCameraConfig(ctx context.Context, exid string, config models.CameraConfig) (models.Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cam, ok := s.data.Cameras[exid]
	if !ok {
		return models.Camera{}, fmt.Errorf("camera %s: %w", exid, ErrNotFound)
	}
	updated := cloneDataset(s.data)
	cam.Config = config
	cam.UpdatedAt = time.Now().UTC()
	updated.Cameras[exid] = cam
	if err := s.persistDataset(updated); err != nil {
		return models.Camera{}, err
	}
	s.data = updated
	return cam, nil
}

// CreateAccessRight grants a capability on a camera to a user.
func (s *Storage) CreateAccessRight(ctx context.Context, params CreateAccessRightParams) (models.AccessRight, error) {
	right := strings.TrimSpace(params.Right)
	if right == "" {
		return models.AccessRight{}, fmt.Errorf("right name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cam, ok := s.data.Cameras[params.CameraExid]
	if !ok {
		return models.AccessRight{}, fmt.Errorf("camera %s: %w", params.CameraExid, ErrNotFound)
	}
	if _, ok := s.data.Users[params.TokenUserID]; !ok {
		return models.AccessRight{}, fmt.Errorf("user %s: %w", params.TokenUserID, ErrNotFound)
	}

	updated := cloneDataset(s.data)
	record := models.AccessRight{
		ID:          updated.NextID,
		CameraID:    cam.ID,
		TokenUserID: params.TokenUserID,
		Right:       right,
		Status:      models.AccessRightActive,
		CreatedAt:   time.Now().UTC(),
	}
	updated.NextID++
	updated.AccessRights = append(updated.AccessRights, record)
	if err := s.persistDataset(updated); err != nil {
		return models.AccessRight{}, err
	}
	s.data = updated
	return record, nil
}

// RevokeAccessRight marks a granted right as revoked. Revoking an absent
// right is not an error.
func (s *Storage) RevokeAccessRight(ctx context.Context, cameraExid, tokenUserID, right string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cam, ok := s.data.Cameras[cameraExid]
	if !ok {
		return fmt.Errorf("camera %s: %w", cameraExid, ErrNotFound)
	}
	updated := cloneDataset(s.data)
	changed := false
	for i, record := range updated.AccessRights {
		if record.CameraID == cam.ID && record.TokenUserID == tokenUserID && record.Right == right && record.Active() {
			updated.AccessRights[i].Status = models.AccessRightRevoked
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

// SeedVendorModel registers a vendor and one of its models, used to populate
// fallback configuration data.
func (s *Storage) SeedVendorModel(ctx context.Context, vendor models.Vendor, model models.VendorModel) (models.VendorModel, error) {
	if strings.TrimSpace(vendor.Exid) == "" || strings.TrimSpace(model.Name) == "" {
		return models.VendorModel{}, fmt.Errorf("vendor exid and model name are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := cloneDataset(s.data)
	existing, ok := updated.Vendors[vendor.Exid]
	if !ok {
		vendor.ID = updated.NextID
		updated.NextID++
		updated.Vendors[vendor.Exid] = vendor
		existing = vendor
	}
	model.ID = updated.NextID
	updated.NextID++
	model.VendorID = existing.ID
	updated.VendorModels[model.Name] = model
	if err := s.persistDataset(updated); err != nil {
		return models.VendorModel{}, err
	}
	s.data = updated
	return model, nil
}

func sortCameras(cameras []models.Camera) {
	sort.Slice(cameras, func(i, j int) bool {
		return cameras[i].Exid < cameras[j].Exid
	})
}
