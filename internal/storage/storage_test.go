package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/buurz-forks/evercam-server/internal/models"
)

func newTestStore(t *testing.T) *Storage {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStorage(filepath.Join(dir, "store.json"))
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	return store
}

func createTestUser(t *testing.T, store *Storage, username string) models.User {
	t.Helper()
	user, _, err := store.CreateUser(context.Background(), CreateUserParams{
		Username: username,
		Email:    username + "@example.com",
		Password: "correct horse battery",
	})
	if err != nil {
		t.Fatalf("CreateUser %s: %v", username, err)
	}
	return user
}

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	store := newTestStore(t)
	createTestUser(t, store, "alice")

	_, _, err := store.CreateUser(context.Background(), CreateUserParams{
		Username: "alice",
		Password: "another password",
	})
	if err == nil {
		t.Fatal("expected duplicate username to be rejected")
	}
}

func TestCreateUserRejectsShortPassword(t *testing.T) {
	store := newTestStore(t)
	_, _, err := store.CreateUser(context.Background(), CreateUserParams{
		Username: "bob",
		Password: "short",
	})
	if err == nil {
		t.Fatal("expected short password to be rejected")
	}
}

func TestAuthenticateUser(t *testing.T) {
	store := newTestStore(t)
	created := createTestUser(t, store, "alice")

	user, err := store.AuthenticateUser(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	if user.ID != created.ID {
		t.Fatalf("authenticated user id = %s, want %s", user.ID, created.ID)
	}

	if _, err := store.AuthenticateUser(context.Background(), "alice", "wrong password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := store.AuthenticateUser(context.Background(), "nobody", "correct horse battery"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := store.AuthenticateUser(context.Background(), "alice", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty password error = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticateAPI(t *testing.T) {
	store := newTestStore(t)
	created, apiKey, err := store.CreateUser(context.Background(), CreateUserParams{
		Username: "alice",
		Password: "correct horse battery",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if apiKey == "" {
		t.Fatal("expected a raw API key to be returned once")
	}

	user, err := store.AuthenticateAPI(context.Background(), created.APIID, apiKey)
	if err != nil {
		t.Fatalf("AuthenticateAPI: %v", err)
	}
	if user.ID != created.ID {
		t.Fatalf("authenticated user id = %s, want %s", user.ID, created.ID)
	}
	if _, err := store.AuthenticateAPI(context.Background(), created.APIID, "bogus"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("bad key error = %v, want ErrInvalidCredentials", err)
	}
}

func TestCreateCameraLinksVendorModel(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "owner")

	model, err := store.SeedVendorModel(context.Background(),
		models.Vendor{Exid: "hikvision", Name: "Hikvision"},
		models.VendorModel{Name: "hikvision-default", Config: models.CameraConfig{
			"snapshots": map[string]any{"h264": "/Streaming/Channels/101"},
		}})
	if err != nil {
		t.Fatalf("SeedVendorModel: %v", err)
	}

	cam, err := store.CreateCamera(context.Background(), CreateCameraParams{
		Exid:        "front-gate",
		OwnerID:     owner.ID,
		Name:        "Front Gate",
		VendorModel: "hikvision-default",
		Config: models.CameraConfig{
			"external_host":      "203.0.113.9",
			"external_rtsp_port": 554,
		},
	})
	if err != nil {
		t.Fatalf("CreateCamera: %v", err)
	}
	if cam.VendorModelID != model.ID {
		t.Fatalf("camera vendor model id = %d, want %d", cam.VendorModelID, model.ID)
	}

	full, ok, err := store.FullCameraByExid(context.Background(), "front-gate")
	if err != nil || !ok {
		t.Fatalf("FullCameraByExid ok=%v err=%v", ok, err)
	}
	if full.Owner.ID != owner.ID {
		t.Fatalf("hydrated owner = %s, want %s", full.Owner.ID, owner.ID)
	}
	if full.VendorModel == nil || full.VendorModel.Name != "hikvision-default" {
		t.Fatal("expected vendor model to be hydrated")
	}
	if full.Vendor == nil || full.Vendor.Exid != "hikvision" {
		t.Fatal("expected vendor to be hydrated")
	}
}

func TestCreateCameraRequiresKnownOwnerAndModel(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "owner")

	if _, err := store.CreateCamera(context.Background(), CreateCameraParams{
		Exid:    "cam-1",
		OwnerID: "ghost",
	}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown owner error = %v, want ErrNotFound", err)
	}
	if _, err := store.CreateCamera(context.Background(), CreateCameraParams{
		Exid:        "cam-1",
		OwnerID:     owner.ID,
		VendorModel: "missing-model",
	}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown vendor model error = %v, want ErrNotFound", err)
	}
}

func TestListCamerasSharedWith(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "owner")
	guest := createTestUser(t, store, "guest")

	for _, exid := range []string{"cam-b", "cam-a", "cam-c"} {
		if _, err := store.CreateCamera(context.Background(), CreateCameraParams{Exid: exid, OwnerID: owner.ID}); err != nil {
			t.Fatalf("CreateCamera %s: %v", exid, err)
		}
	}
	for _, exid := range []string{"cam-b", "cam-a"} {
		if _, err := store.CreateAccessRight(context.Background(), CreateAccessRightParams{
			CameraExid:  exid,
			TokenUserID: guest.ID,
			Right:       models.RightSnapshot,
		}); err != nil {
			t.Fatalf("CreateAccessRight %s: %v", exid, err)
		}
	}

	shared, err := store.ListCamerasSharedWith(context.Background(), guest.ID)
	if err != nil {
		t.Fatalf("ListCamerasSharedWith: %v", err)
	}
	if len(shared) != 2 || shared[0].Exid != "cam-a" || shared[1].Exid != "cam-b" {
		t.Fatalf("shared cameras = %+v, want cam-a then cam-b", shared)
	}

	// Sharing with the owner must not make cameras show up twice.
	if _, err := store.CreateAccessRight(context.Background(), CreateAccessRightParams{
		CameraExid:  "cam-c",
		TokenUserID: owner.ID,
		Right:       models.RightSnapshot,
	}); err != nil {
		t.Fatalf("CreateAccessRight cam-c: %v", err)
	}
	ownShared, err := store.ListCamerasSharedWith(context.Background(), owner.ID)
	if err != nil {
		t.Fatalf("ListCamerasSharedWith owner: %v", err)
	}
	if len(ownShared) != 0 {
		t.Fatalf("owner shared list = %+v, want empty", ownShared)
	}
}

func TestRevokeAccessRight(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "owner")
	guest := createTestUser(t, store, "guest")
	if _, err := store.CreateCamera(context.Background(), CreateCameraParams{Exid: "cam-1", OwnerID: owner.ID}); err != nil {
		t.Fatalf("CreateCamera: %v", err)
	}
	if _, err := store.CreateAccessRight(context.Background(), CreateAccessRightParams{
		CameraExid:  "cam-1",
		TokenUserID: guest.ID,
		Right:       models.RightSnapshot,
	}); err != nil {
		t.Fatalf("CreateAccessRight: %v", err)
	}

	if err := store.RevokeAccessRight(context.Background(), "cam-1", guest.ID, models.RightSnapshot); err != nil {
		t.Fatalf("RevokeAccessRight: %v", err)
	}
	shared, err := store.ListCamerasSharedWith(context.Background(), guest.ID)
	if err != nil {
		t.Fatalf("ListCamerasSharedWith: %v", err)
	}
	if len(shared) != 0 {
		t.Fatalf("shared cameras after revoke = %+v, want empty", shared)
	}

	// Revoking an absent right is a no-op.
	if err := store.RevokeAccessRight(context.Background(), "cam-1", guest.ID, models.RightEdit); err != nil {
		t.Fatalf("RevokeAccessRight absent: %v", err)
	}
}

func TestAffectedUsers(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "owner")
	guest := createTestUser(t, store, "guest")
	revoked := createTestUser(t, store, "revoked")

	cam, err := store.CreateCamera(context.Background(), CreateCameraParams{Exid: "cam-1", OwnerID: owner.ID})
	if err != nil {
		t.Fatalf("CreateCamera: %v", err)
	}
	for _, userID := range []string{guest.ID, revoked.ID} {
		if _, err := store.CreateAccessRight(context.Background(), CreateAccessRightParams{
			CameraExid:  "cam-1",
			TokenUserID: userID,
			Right:       models.RightList,
		}); err != nil {
			t.Fatalf("CreateAccessRight: %v", err)
		}
	}
	if err := store.RevokeAccessRight(context.Background(), "cam-1", revoked.ID, models.RightList); err != nil {
		t.Fatalf("RevokeAccessRight: %v", err)
	}

	users, err := store.AffectedUsers(context.Background(), cam.ID)
	if err != nil {
		t.Fatalf("AffectedUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("affected users = %v, want owner and guest only", users)
	}
	want := map[string]bool{owner.ID: false, guest.ID: false}
	for _, id := range users {
		if _, ok := want[id]; !ok {
			t.Fatalf("unexpected affected user %s", id)
		}
		want[id] = true
	}
	for id, seen := range want {
		if !seen {
			t.Fatalf("missing affected user %s", id)
		}
	}
}

func TestUpdateCameraConfigPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	store, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	owner := createTestUser(t, store, "owner")
	if _, err := store.CreateCamera(context.Background(), CreateCameraParams{Exid: "cam-1", OwnerID: owner.ID}); err != nil {
		t.Fatalf("CreateCamera: %v", err)
	}
	if _, err := store.UpdateCameraConfig(context.Background(), "cam-1", models.CameraConfig{
		"external_host": "198.51.100.4",
	}); err != nil {
		t.Fatalf("UpdateCameraConfig: %v", err)
	}

	reloaded, err := NewStorage(path)
	if err != nil {
		t.Fatalf("reload storage: %v", err)
	}
	cam, ok, err := reloaded.FindCameraByExid(context.Background(), "cam-1")
	if err != nil || !ok {
		t.Fatalf("FindCameraByExid ok=%v err=%v", ok, err)
	}
	if got := cam.Config.String("external_host"); got != "198.51.100.4" {
		t.Fatalf("reloaded config external_host = %q, want 198.51.100.4", got)
	}

	if _, err := reloaded.UpdateCameraConfig(context.Background(), "missing", models.CameraConfig{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing camera error = %v, want ErrNotFound", err)
	}
}
