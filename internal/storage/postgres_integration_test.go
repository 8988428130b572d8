//go:build postgres

package storage_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buurz-forks/evercam-server/internal/models"
	"github.com/buurz-forks/evercam-server/internal/storage"
)

const postgresTestSchema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT,
	password_hash TEXT NOT NULL,
	api_id TEXT NOT NULL UNIQUE,
	api_key_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS vendors (
	id BIGSERIAL PRIMARY KEY,
	exid TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS vendor_models (
	id BIGSERIAL PRIMARY KEY,
	vendor_id BIGINT NOT NULL REFERENCES vendors(id),
	name TEXT NOT NULL UNIQUE,
	config JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE TABLE IF NOT EXISTS cameras (
	id BIGSERIAL PRIMARY KEY,
	exid TEXT NOT NULL UNIQUE,
	owner_id TEXT NOT NULL REFERENCES users(id),
	vendor_model_id BIGINT REFERENCES vendor_models(id),
	name TEXT NOT NULL DEFAULT '',
	timezone TEXT,
	is_online BOOLEAN NOT NULL DEFAULT FALSE,
	last_polled_at TIMESTAMPTZ,
	last_online_at TIMESTAMPTZ,
	config JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS access_rights (
	id BIGSERIAL PRIMARY KEY,
	camera_id BIGINT NOT NULL REFERENCES cameras(id),
	token_user_id TEXT NOT NULL REFERENCES users(id),
	"right" TEXT NOT NULL,
	status INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

// newPostgresTestRepository opens a Postgres-backed repository against a
// database dedicated to automated runs, creating the schema and truncating
// tables between tests. Requires EVERCAM_POSTGRES_TEST_DSN.
func newPostgresTestRepository(t *testing.T) storage.Repository {
	t.Helper()
	dsn := os.Getenv("EVERCAM_POSTGRES_TEST_DSN")
	if strings.TrimSpace(dsn) == "" {
		t.Skip("EVERCAM_POSTGRES_TEST_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres pool: %v", err)
	}
	if _, err := pool.Exec(ctx, postgresTestSchema); err != nil {
		pool.Close()
		t.Fatalf("apply schema: %v", err)
	}
	truncate := func() {
		_, err := pool.Exec(context.Background(),
			`TRUNCATE access_rights, cameras, vendor_models, vendors, users RESTART IDENTITY CASCADE`)
		if err != nil {
			t.Fatalf("truncate tables: %v", err)
		}
	}
	truncate()

	repo, err := storage.NewPostgresRepository(ctx, dsn, storage.WithApplicationName("evercam-tests"))
	if err != nil {
		pool.Close()
		t.Fatalf("NewPostgresRepository: %v", err)
	}
	t.Cleanup(func() {
		truncate()
		pool.Close()
		if err := repo.Close(context.Background()); err != nil {
			t.Errorf("close repository: %v", err)
		}
	})
	return repo
}

func TestPostgresRepositoryRoundTrip(t *testing.T) {
	repo := newPostgresTestRepository(t)
	ctx := context.Background()

	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	owner, apiKey, err := repo.CreateUser(ctx, storage.CreateUserParams{
		Username: "owner",
		Email:    "owner@example.com",
		Password: "correct horse battery",
	})
	if err != nil {
		t.Fatalf("CreateUser owner: %v", err)
	}
	guest, _, err := repo.CreateUser(ctx, storage.CreateUserParams{
		Username: "guest",
		Password: "correct horse battery",
	})
	if err != nil {
		t.Fatalf("CreateUser guest: %v", err)
	}

	if _, err := repo.AuthenticateUser(ctx, "owner", "correct horse battery"); err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	if _, err := repo.AuthenticateAPI(ctx, owner.APIID, apiKey); err != nil {
		t.Fatalf("AuthenticateAPI: %v", err)
	}

	cam, err := repo.CreateCamera(ctx, storage.CreateCameraParams{
		Exid:    "front-gate",
		OwnerID: owner.ID,
		Name:    "Front Gate",
		Config: models.CameraConfig{
			"external_host":      "203.0.113.9",
			"external_rtsp_port": 554,
			"snapshots":          map[string]any{"h264": "/stream"},
		},
	})
	if err != nil {
		t.Fatalf("CreateCamera: %v", err)
	}

	if _, err := repo.CreateAccessRight(ctx, storage.CreateAccessRightParams{
		CameraExid:  "front-gate",
		TokenUserID: guest.ID,
		Right:       models.RightSnapshot,
	}); err != nil {
		t.Fatalf("CreateAccessRight: %v", err)
	}

	full, ok, err := repo.FullCameraByExid(ctx, "front-gate")
	if err != nil || !ok {
		t.Fatalf("FullCameraByExid ok=%v err=%v", ok, err)
	}
	if full.Owner.ID != owner.ID {
		t.Fatalf("hydrated owner = %s, want %s", full.Owner.ID, owner.ID)
	}
	if len(full.Rights) != 1 || full.Rights[0].TokenUserID != guest.ID {
		t.Fatalf("hydrated rights = %+v, want one grant for guest", full.Rights)
	}
	if got := full.Config.String("external_rtsp_port"); got != "554" {
		t.Fatalf("config external_rtsp_port = %q, want 554", got)
	}

	shared, err := repo.ListCamerasSharedWith(ctx, guest.ID)
	if err != nil {
		t.Fatalf("ListCamerasSharedWith: %v", err)
	}
	if len(shared) != 1 || shared[0].Exid != "front-gate" {
		t.Fatalf("shared cameras = %+v, want front-gate", shared)
	}

	users, err := repo.AffectedUsers(ctx, cam.ID)
	if err != nil {
		t.Fatalf("AffectedUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("affected users = %v, want owner and guest", users)
	}

	if err := repo.RevokeAccessRight(ctx, "front-gate", guest.ID, models.RightSnapshot); err != nil {
		t.Fatalf("RevokeAccessRight: %v", err)
	}
	shared, err = repo.ListCamerasSharedWith(ctx, guest.ID)
	if err != nil {
		t.Fatalf("ListCamerasSharedWith after revoke: %v", err)
	}
	if len(shared) != 0 {
		t.Fatalf("shared cameras after revoke = %+v, want empty", shared)
	}
}
