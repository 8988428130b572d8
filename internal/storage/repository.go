package storage

import (
	"context"
	"errors"

	"github.com/buurz-forks/evercam-server/internal/models"
)

// ErrInvalidCredentials is returned for any authentication failure without
// distinguishing the cause.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrNotFound is returned by write operations against missing records.
var ErrNotFound = errors.New("record not found")

// CreateUserParams carries the fields required to register a user. The
// password is hashed before it is stored; the returned APIKey is shown once
// and persisted only as a hash.
type CreateUserParams struct {
	Username string
	Email    string
	Password string
}

// CreateCameraParams carries the fields required to register a camera.
type CreateCameraParams struct {
	Exid        string
	OwnerID     string
	Name        string
	Timezone    string
	VendorModel string
	Config      models.CameraConfig
}

// CreateAccessRightParams grants a capability on a camera to a user.
type CreateAccessRightParams struct {
	CameraExid  string
	TokenUserID string
	Right       string
}

// Repository exposes the datastore operations required by the directory,
// the stream bridge, and the API handlers.
type Repository interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	FindCameraByExid(ctx context.Context, exid string) (models.Camera, bool, error)
	FullCameraByExid(ctx context.Context, exid string) (models.FullCamera, bool, error)
	ListCamerasOwnedBy(ctx context.Context, userID string) ([]models.Camera, error)
	ListCamerasSharedWith(ctx context.Context, userID string) ([]models.Camera, error)
	AffectedUsers(ctx context.Context, cameraID int64) ([]string, error)

	CreateUser(ctx context.Context, params CreateUserParams) (models.User, string, error)
	GetUser(ctx context.Context, id string) (models.User, bool, error)
	FindUserByUsername(ctx context.Context, username string) (models.User, bool, error)
	AuthenticateUser(ctx context.Context, username, password string) (models.User, error)
	AuthenticateAPI(ctx context.Context, apiID, apiKey string) (models.User, error)

	CreateCamera(ctx context.Context, params CreateCameraParams) (models.Camera, error)
	UpdateCameraConfig(ctx context.Context, exid string, config models.CameraConfig) (models.Camera, error)
	CreateAccessRight(ctx context.Context, params CreateAccessRightParams) (models.AccessRight, error)
	RevokeAccessRight(ctx context.Context, cameraExid, tokenUserID, right string) error
}

var _ Repository = (*Storage)(nil)
var _ Repository = (*postgresRepository)(nil)
