package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"waprofiles/internal/constants"
	"waprofiles/internal/migrations"
	"waprofiles/internal/models"
	"waprofiles/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// ErrProfileNotFound is returned when no profile row matches.
var ErrProfileNotFound = errors.New("profile not found")

type Database struct {
	db     *sql.DB
	cipher *fieldCipher
}

// New opens the sqlite file, applies pending migrations and sets up field
// encryption from the environment.
func New(ctx context.Context, dbPath string) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, constants.DefaultFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	fail := func(stage string, err error) (*Database, error) {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to %s: %w (close error: %v)", stage, err, closeErr)
		}
		return nil, fmt.Errorf("failed to %s: %w", stage, err)
	}

	if err := db.PingContext(ctx); err != nil {
		return fail("ping database", err)
	}
	if _, err := migrations.Apply(ctx, db); err != nil {
		return fail("apply migrations", err)
	}

	cipher, err := newFieldCipherFromEnv()
	if err != nil {
		return fail("initialize encryption", err)
	}

	return &Database{db: db, cipher: cipher}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Ping reports whether the database still answers.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// CreateProfile inserts a profile without credentials and returns the stored row.
func (d *Database) CreateProfile(ctx context.Context, name, webhookURL string, enableWebhook bool) (*models.Profile, error) {
	encryptedURL, err := d.cipher.Encrypt(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt webhook URL: %w", err)
	}

	var id int64
	err = withRetry(ctx, "insert profile", func() error {
		res, err := d.db.ExecContext(ctx, insertProfileQuery, name, enableWebhook, encryptedURL)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	return d.GetProfile(ctx, id)
}

// SetProfileCredentials stores the issued access token and the provider
// session name of a profile.
func (d *Database) SetProfileCredentials(ctx context.Context, id int64, token, session string) error {
	encryptedToken, err := d.cipher.EncryptForLookup(token)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}
	return d.execOne(ctx, "store profile credentials", updateProfileCredentialsQuery, encryptedToken, session, id)
}

func (d *Database) ListProfiles(ctx context.Context) ([]*models.Profile, error) {
	rows, err := d.db.QueryContext(ctx, selectProfilesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.Profile
	for rows.Next() {
		p, err := d.scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}
	return profiles, nil
}

func (d *Database) GetProfile(ctx context.Context, id int64) (*models.Profile, error) {
	return d.queryProfile(ctx, selectProfileByIDQuery, id)
}

// GetProfileByToken resolves the profile owning an access token.
func (d *Database) GetProfileByToken(ctx context.Context, token string) (*models.Profile, error) {
	if token == "" {
		return nil, ErrProfileNotFound
	}
	encryptedToken, err := d.cipher.EncryptForLookup(token)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt token: %w", err)
	}
	return d.queryProfile(ctx, selectProfileByTokenQuery, encryptedToken)
}

// UpdateProfile persists name and webhook settings.
func (d *Database) UpdateProfile(ctx context.Context, p *models.Profile) error {
	encryptedURL, err := d.cipher.Encrypt(p.WebhookURL)
	if err != nil {
		return fmt.Errorf("failed to encrypt webhook URL: %w", err)
	}
	return d.execOne(ctx, "update profile", updateProfileQuery, p.Name, p.EnableWebhook, encryptedURL, p.ID)
}

func (d *Database) DeleteProfile(ctx context.Context, id int64) error {
	return d.execOne(ctx, "delete profile", deleteProfileQuery, id)
}

// execOne runs a write that must touch exactly one profile row.
func (d *Database) execOne(ctx context.Context, operation, query string, args ...interface{}) error {
	var affected int64
	err := withRetry(ctx, operation, func() error {
		res, err := d.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (d *Database) queryProfile(ctx context.Context, query string, arg interface{}) (*models.Profile, error) {
	p, err := d.scanProfile(d.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	return p, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (d *Database) scanProfile(row rowScanner) (*models.Profile, error) {
	var (
		p          models.Profile
		token      sql.NullString
		webhookURL string
		createdAt  time.Time
		updatedAt  time.Time
	)
	if err := row.Scan(&p.ID, &p.Name, &token, &p.Session, &p.EnableWebhook, &webhookURL, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}

	var err error
	if p.Token, err = d.cipher.Decrypt(token.String); err != nil {
		return nil, fmt.Errorf("failed to decrypt token: %w", err)
	}
	if p.WebhookURL, err = d.cipher.Decrypt(webhookURL); err != nil {
		return nil, fmt.Errorf("failed to decrypt webhook URL: %w", err)
	}
	p.CreatedAt = createdAt.UTC()
	p.UpdatedAt = updatedAt.UTC()
	return &p, nil
}
