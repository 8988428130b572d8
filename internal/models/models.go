package models

import (
	"strings"
	"time"
)

// Camera represents one managed networked device. Exid is the immutable,
// globally unique external identifier used in URLs, as the transcoder push
// key, and as the artifact namespace. The numeric ID only matters to storage.
type Camera struct {
	ID            int64        `json:"-"`
	Exid          string       `json:"id"`
	OwnerID       string       `json:"ownerId"`
	VendorModelID int64        `json:"-"`
	Name          string       `json:"name"`
	Timezone      string       `json:"timezone,omitempty"`
	IsOnline      bool         `json:"isOnline"`
	LastPolledAt  *time.Time   `json:"lastPolledAt,omitempty"`
	LastOnlineAt  *time.Time   `json:"lastOnlineAt,omitempty"`
	Config        CameraConfig `json:"config"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Location returns the camera timezone, defaulting to UTC when unset.
func (c Camera) Location() *time.Location {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// User is an account that owns cameras and may hold access rights on cameras
// owned by others. APIID/APIKey form the credential pair presented on API
// requests; only the key hash is stored.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	APIID        string    `json:"apiId"`
	APIKeyHash   string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Vendor is a camera manufacturer.
type Vendor struct {
	ID   int64  `json:"-"`
	Exid string `json:"id"`
	Name string `json:"name"`
}

// VendorModel carries per-model default configuration, used as a fallback
// when a camera's own config lacks a resolution path.
type VendorModel struct {
	ID       int64        `json:"-"`
	VendorID int64        `json:"-"`
	Name     string       `json:"name"`
	Config   CameraConfig `json:"config"`
}

// Capability names grantable on a camera. A "grant~" prefix marks the
// delegation variant of the same capability.
const (
	RightSnapshot = "snapshot"
	RightList     = "list"
	RightEdit     = "edit"
	RightDelete   = "delete"
	RightView     = "view"

	GrantPrefix = "grant~"
)

// BaseRights are implicitly held by any user a camera is shared with.
var BaseRights = []string{RightSnapshot, RightList}

// AccessRight grants one user a named capability on one camera. Rights are
// created and revoked by owner action elsewhere; this core only reads them.
type AccessRight struct {
	ID          int64     `json:"-"`
	CameraID    int64     `json:"-"`
	TokenUserID string    `json:"userId"`
	Right       string    `json:"right"`
	Status      int       `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Active reports whether the right is currently in force.
func (r AccessRight) Active() bool {
	return r.Status == AccessRightActive
}

const (
	AccessRightActive  = 1
	AccessRightRevoked = -1
)

// FullCamera is the hydrated read model: the camera plus its owner, vendor
// chain, and access rights, as needed for URL resolution and rights checks.
type FullCamera struct {
	Camera
	Owner       User          `json:"owner"`
	Vendor      *Vendor       `json:"vendor,omitempty"`
	VendorModel *VendorModel  `json:"vendorModel,omitempty"`
	Rights      []AccessRight `json:"rights,omitempty"`
}

// SharedWith reports whether the user holds at least one active right on the
// camera.
func (c FullCamera) SharedWith(userID string) bool {
	for _, right := range c.Rights {
		if right.Active() && right.TokenUserID == userID {
			return true
		}
	}
	return false
}
