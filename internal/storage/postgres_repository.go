package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buurz-forks/evercam-server/internal/models"
)

// postgresRepository implements Repository on a pgx connection pool. The
// expected schema: users, vendors, vendor_models, cameras, and access_rights
// tables with jsonb config columns; migrations are applied out of band.
type postgresRepository struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
}

// NewPostgresRepository opens a Postgres-backed repository. The caller must
// ensure database migrations have been applied prior to invoking this
// constructor.
func NewPostgresRepository(ctx context.Context, dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	return &postgresRepository{pool: pool, acquireTimeout: cfg.AcquireTimeout}, nil
}

func (r *postgresRepository) acquire(ctx context.Context) (*pgxpool.Conn, context.CancelFunc, error) {
	cancel := func() {}
	if r.acquireTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.acquireTimeout)
	}
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("acquire postgres connection: %w", err)
	}
	return conn, cancel, nil
}

// Ping verifies pool connectivity.
func (r *postgresRepository) Ping(ctx context.Context) error {
	conn, cancel, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	defer conn.Release()
	return conn.Ping(ctx)
}

// Close drains the pool, bounded by the context.
func (r *postgresRepository) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

const cameraColumns = `c.id, c.exid, c.owner_id, COALESCE(c.vendor_model_id, 0), c.name,
	COALESCE(c.timezone, ''), c.is_online, c.last_polled_at, c.last_online_at,
	c.config, c.created_at, c.updated_at`

func scanCamera(row pgx.Row) (models.Camera, error) {
	var cam models.Camera
	err := row.Scan(&cam.ID, &cam.Exid, &cam.OwnerID, &cam.VendorModelID, &cam.Name,
		&cam.Timezone, &cam.IsOnline, &cam.LastPolledAt, &cam.LastOnlineAt,
		&cam.Config, &cam.CreatedAt, &cam.UpdatedAt)
	return cam, err
}

func (r *postgresRepository) FindCameraByExid(ctx context.Context, exid string) (models.Camera, bool, error) {
	conn, cancel, err := r.acquire(ctx)
	if err != nil {
		return models.Camera{}, false, err
	}
	defer cancel()
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+cameraColumns+` FROM cameras c WHERE c.exid = $1`, exid)
	cam, err := scanCamera(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Camera{}, false, nil
	}
	if err != nil {
		return models.Camera{}, false, fmt.Errorf("query camera %s: %w", exid, err)
	}
	return cam, true, nil
}

func (r *postgresRepository) FullCameraByExid(ctx context.Context, exid string) (models.FullCamera, bool, error) {
	conn, cancel, err := r.acquire(ctx)
	if err != nil {
		return models.FullCamera{}, false, err
	}
	defer cancel()
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+cameraColumns+` FROM cameras c WHERE c.exid = $1`, exid)
	cam, err := scanCamera(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.FullCamera{}, false, nil
	}
	if err != nil {
		return models.FullCamera{}, false, fmt.Errorf("query camera %s: %w", exid, err)
	}
	full := models.FullCamera{Camera: cam}

	ownerRow := conn.QueryRow(ctx,
		`SELECT id, username, COALESCE(email, ''), api_id, created_at FROM users WHERE id = $1`, cam.OwnerID)
	if err := ownerRow.Scan(&full.Owner.ID, &full.Owner.Username, &full.Owner.Email,
		&full.Owner.APIID, &full.Owner.CreatedAt); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return models.FullCamera{}, false, fmt.Errorf("query camera owner: %w", err)
	}

	if cam.VendorModelID != 0 {
		var model models.VendorModel
		var vendor models.Vendor
		modelRow := conn.QueryRow(ctx, `SELECT m.id, m.vendor_id, m.name, m.config, v.id, v.exid, v.name
			FROM vendor_models m JOIN vendors v ON v.id = m.vendor_id WHERE m.id = $1`, cam.VendorModelID)
		err := modelRow.Scan(&model.ID, &model.VendorID, &model.Name, &model.Config,
			&vendor.ID, &vendor.Exid, &vendor.Name)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return models.FullCamera{}, false, fmt.Errorf("query vendor model: %w", err)
		}
		if err == nil {
			full.VendorModel = &model
			full.Vendor = &vendor
		}
	}

	rows, err := conn.Query(ctx, `SELECT id, camera_id, token_user_id, "right", status, created_at
		FROM access_rights WHERE camera_id = $1 ORDER BY id`, cam.ID)
	if err != nil {
		return models.FullCamera{}, false, fmt.Errorf("query access rights: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var right models.AccessRight
		if err := rows.Scan(&right.ID, &right.CameraID, &right.TokenUserID,
			&right.Right, &right.Status, &right.CreatedAt); err != nil {
			return models.FullCamera{}, false, fmt.Errorf("scan access right: %w", err)
		}
		full.Rights = append(full.Rights, right)
	}
	if err := rows.Err(); err != nil {
		return models.FullCamera{}, false, fmt.Errorf("iterate access rights: %w", err)
	}
	return full, true, nil
}

func (r *postgresRepository) listCameras(ctx context.Context, query string, args ...any) ([]models.Camera, error) {
	conn, cancel, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cameras: %w", err)
	}
	defer rows.Close()
	var cameras []models.Camera
	for rows.Next() {
		cam, err := scanCamera(rows)
		if err != nil {
			return nil, fmt.Errorf("scan camera: %w", err)
		}
		cameras = append(cameras, cam)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cameras: %w", err)
	}
	return cameras, nil
}

func (r *postgresRepository) ListCamerasOwnedBy(ctx context.Context, userID string) ([]models.Camera, error) {
	return r.listCameras(ctx,
		`SELECT `+cameraColumns+` FROM cameras c WHERE c.owner_id = $1 ORDER BY c.exid`, userID)
}

func (r *postgresRepository) ListCamerasSharedWith(ctx context.Context, userID string) ([]models.Camera, error) {
	return r.listCameras(ctx, `SELECT DISTINCT `+cameraColumns+`
		FROM cameras c JOIN access_rights a ON a.camera_id = c.id
		WHERE a.token_user_id = $1 AND a.status = $2 AND c.owner_id <> $1
		ORDER BY c.exid`, userID, models.AccessRightActive)
}

func (r *postgresRepository) AffectedUsers(ctx context.Context, cameraID int64) ([]string, error) {
	conn, cancel, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT owner_id FROM cameras WHERE id = $1
		UNION SELECT token_user_id FROM access_rights WHERE camera_id = $1 AND status = $2
		ORDER BY 1`, cameraID, models.AccessRightActive)
	if err != nil {
		return nil, fmt.Errorf("query affected users: %w", err)
	}
	defer rows.Close()
	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan affected user: %w", err)
		}
		users = append(users, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate affected users: %w", err)
	}
	return users, nil
}

func (r *postgresRepository) CreateUser(ctx context.Context, params CreateUserParams) (models.User, string, error) {
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

	conn, cancel, err := r.acquire(ctx)
	if err != nil {
		return models.User{}, "", err
	}
	defer cancel()
	defer conn.Release()

	user := models.User{
		ID:           id,
		Username:     username,
		Email:        strings.TrimSpace(params.Email),
		PasswordHash: passwordHash,
		APIID:        apiID,
		APIKeyHash:   apiKeyHash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err = conn.Exec(ctx, `INSERT INTO users (id, username, email, password_hash, api_id, api_key_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.APIID, user.APIKeyHash, user.CreatedAt)
	if err != nil {
		return models.User{}, "", fmt.Errorf("insert user: %w", err)
	}
	return user, apiKey, nil
}

func (r *postgresRepository) getUser(ctx context.Context, where string, arg any) (models.User, bool, error) {
	conn, cancel, err := r.acquire(ctx)
	if err != nil {
		return models.User{}, false, err
	}
	defer cancel()
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT id, username, COALESCE(email, ''), password_hash, api_id, api_key_hash, created_at
		FROM users WHERE `+where+` = $1`, arg)
	var user models.User
	err = row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.APIID, &user.APIKeyHash, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, fmt.Errorf("query user: %w", err)
	}
	return user, true, nil
}

func (r *postgresRepository) GetUser(ctx context.Context, id string) (models.User, bool, error) {
	return r.getUser(ctx, "id", id)
}

func (r *postgresRepository) FindUserByUsername(ctx context.Context, username string) (models.User, bool, error) {
	return r.getUser(ctx, "username", username)
}

func (r *postgresRepository) AuthenticateUser(ctx context.Context, username, password string) (models.User, error) {
	if password == "" {
		return models.User{}, ErrInvalidCredentials
	}
	user, ok, err := r.FindUserByUsername(ctx, username)
	if err != nil || !ok {
		return models.User{}, ErrInvalidCredentials
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (r *postgresRepository) AuthenticateAPI(ctx context.Context, apiID, apiKey string) (models.User, error) {
	user, ok, err := r.getUser(ctx, "api_id", apiID)
	if err != nil || !ok {
		return models.User{}, ErrInvalidCredentials
	}
	if !verifyAPIKey(user.APIKeyHash, apiKey) {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (r *postgresRepository) CreateCamera(ctx context.Context, params CreateCameraParams) (models.Camera, error) {
	exid := strings.TrimSpace(params.Exid)
	if exid == "" {
		return models.Camera{}, fmt.Errorf("camera exid is required")
	}
	if params.OwnerID == "" {
		return models.Camera{}, fmt.Errorf("camera owner is required")
	}
	config := params.Config
	if config == nil {
		config = models.CameraConfig{}
	}

	conn, cancel, err := r.acquire(ctx)
	if err != nil {
		return models.Camera{}, err
	}
	defer cancel()
	defer conn.Release()

	var vendorModelID *int64
	if name := strings.TrimSpace(params.VendorModel); name != "" {
		var id int64
		err := conn.QueryRow(ctx, `SELECT id FROM vendor_models WHERE name = $1`, name).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Camera{}, fmt.Errorf("vendor model %s: %w", name, ErrNotFound)
		}
		if err != nil {
			return models.Camera{}, fmt.Errorf("query vendor model: %w", err)
		}
		vendorModelID = &id
	}

	now := time.Now().UTC()
	row := conn.QueryRow(ctx, `INSERT INTO cameras (exid, owner_id, vendor_model_id, name, timezone, is_online, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7, $7) RETURNING id`,
		exid, params.OwnerID, vendorModelID, strings.TrimSpace(params.Name),
		strings.TrimSpace(params.Timezone), config, now)
	cam := models.Camera{
		Exid:      exid,
		OwnerID:   params.OwnerID,
		Name:      strings.TrimSpace(params.Name),
		Timezone:  strings.TrimSpace(params.Timezone),
		Config:    config,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if vendorModelID != nil {
		cam.VendorModelID = *vendorModelID
	}
	if err := row.Scan(&cam.ID); err != nil {
		return models.Camera{}, fmt.Errorf("insert camera: %w", err)
	}
	return cam, nil
}

func (r *postgresRepository) UpdateCameraConfig(ctx context.Context, exid string, config models.CameraConfig) (models.Camera, error) {
	conn, cancel, err := r.acquire(ctx)
	if err != nil {
		return models.Camera{}, err
	}
	defer cancel()
	defer conn.Release()

	row := conn.QueryRow(ctx, `UPDATE cameras c SET config = $2, updated_at = $3 WHERE c.exid = $1
		RETURNING `+cameraColumns, exid, config, time.Now().UTC())
	cam, err := scanCamera(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Camera{}, fmt.Errorf("camera %s: %w", exid, ErrNotFound)
	}
	if err != nil {
		return models.Camera{}, fmt.Errorf("update camera %s: %w", exid, err)
	}
	return cam, nil
}

func (r *postgresRepository) CreateAccessRight(ctx context.Context, params CreateAccessRightParams) (models.AccessRight, error) {
	right := strings.TrimSpace(params.Right)
	if right == "" {
		return models.AccessRight{}, fmt.Errorf("right name is required")
	}

	conn, cancel, err := r.acquire(ctx)
	if err != nil {
		return models.AccessRight{}, err
	}
	defer cancel()
	defer conn.Release()

	var cameraID int64
	err = conn.QueryRow(ctx, `SELECT id FROM cameras WHERE exid = $1`, params.CameraExid).Scan(&cameraID)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.AccessRight{}, fmt.Errorf("camera %s: %w", params.CameraExid, ErrNotFound)
	}
	if err != nil {
		return models.AccessRight{}, fmt.Errorf("query camera: %w", err)
	}

	record := models.AccessRight{
		CameraID:    cameraID,
		TokenUserID: params.TokenUserID,
		Right:       right,
		Status:      models.AccessRightActive,
		CreatedAt:   time.Now().UTC(),
	}
	err = conn.QueryRow(ctx, `INSERT INTO access_rights (camera_id, token_user_id, "right", status, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		record.CameraID, record.TokenUserID, record.Right, record.Status, record.CreatedAt).Scan(&record.ID)
	if err != nil {
		return models.AccessRight{}, fmt.Errorf("insert access right: %w", err)
	}
	return record, nil
}

func (r *postgresRepository) RevokeAccessRight(ctx context.Context, cameraExid, tokenUserID, right string) error {
	conn, cancel, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	defer conn.Release()

	_, err = conn.Exec(ctx, `UPDATE access_rights SET status = $4
		WHERE camera_id = (SELECT id FROM cameras WHERE exid = $1)
		AND token_user_id = $2 AND "right" = $3 AND status = $5`,
		cameraExid, tokenUserID, right, models.AccessRightRevoked, models.AccessRightActive)
	if err != nil {
		return fmt.Errorf("revoke access right: %w", err)
	}
	return nil
}
