package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- users ---

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash FROM users WHERE email = $1
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user by email: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// --- refresh sessions (Postgres fallback when Redis is not configured) ---

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup refresh session: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// --- pages ---

func (s *PostgresStore) ListPages(ctx context.Context) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, lat, lng, zoom, custom_date, created_by, updated_by, created_at, updated_at
		FROM pages
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

func (s *PostgresStore) GetPage(ctx context.Context, pageID string) (Page, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, lat, lng, zoom, custom_date, created_by, updated_by, created_at, updated_at
		FROM pages WHERE id = $1
	`, pageID)
	page, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, ErrNotFound
	}
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

func (s *PostgresStore) InsertPage(ctx context.Context, page Page) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (id, title, content, lat, lng, zoom, custom_date, search_text, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, page.ID, page.Title, page.Content, page.Lat, page.Lng, page.Zoom, page.CustomDate, page.SearchText, page.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdatePage(ctx context.Context, page Page) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE pages
		SET title=$2, content=$3, lat=$4, lng=$5, zoom=$6, custom_date=$7, search_text=$8, updated_by=$9, updated_at=NOW()
		WHERE id=$1
	`, page.ID, page.Title, page.Content, page.Lat, page.Lng, page.Zoom, page.CustomDate, page.SearchText, page.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update page: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update page: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeletePage(ctx context.Context, pageID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE id=$1`, pageID)
	if err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row rowScanner) (Page, error) {
	var page Page
	err := row.Scan(
		&page.ID, &page.Title, &page.Content,
		&page.Lat, &page.Lng, &page.Zoom, &page.CustomDate,
		&page.CreatedBy, &page.UpdatedBy, &page.CreatedAt, &page.UpdatedAt,
	)
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

// --- versions ---

// UpsertVersion appends a version row, merging into the latest row
// when it carries the same non-empty save session id. One continuous
// editing session therefore produces one version instead of one per
// debounce firing. Returns whether an existing row was merged into.
func (s *PostgresStore) UpsertVersion(ctx context.Context, version PageVersion) (bool, error) {
	if version.SaveSessionID != "" {
		result, err := s.db.ExecContext(ctx, `
			UPDATE page_versions
			SET title=$3, content=$4, saved_by=$5, updated_at=NOW()
			WHERE id = (
				SELECT id FROM page_versions
				WHERE page_id=$1
				ORDER BY created_at DESC, id DESC
				LIMIT 1
			) AND save_session_id = $2
		`, version.PageID, version.SaveSessionID, version.Title, version.Content, version.SavedBy)
		if err != nil {
			return false, fmt.Errorf("merge version: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("merge version: %w", err)
		}
		if affected > 0 {
			return true, nil
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO page_versions (page_id, title, content, save_session_id, saved_by)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
	`, version.PageID, version.Title, version.Content, version.SaveSessionID, version.SavedBy)
	if err != nil {
		return false, fmt.Errorf("insert version: %w", err)
	}
	return false, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, pageID string) ([]PageVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, page_id, title, content, COALESCE(save_session_id, ''), saved_by, created_at, updated_at
		FROM page_versions
		WHERE page_id = $1
		ORDER BY created_at DESC, id DESC
	`, pageID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []PageVersion
	for rows.Next() {
		var v PageVersion
		if err := rows.Scan(&v.ID, &v.PageID, &v.Title, &v.Content, &v.SaveSessionID, &v.SavedBy, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *PostgresStore) GetVersion(ctx context.Context, pageID string, versionID int64) (PageVersion, error) {
	var v PageVersion
	err := s.db.QueryRowContext(ctx, `
		SELECT id, page_id, title, content, COALESCE(save_session_id, ''), saved_by, created_at, updated_at
		FROM page_versions
		WHERE page_id = $1 AND id = $2
	`, pageID, versionID).Scan(&v.ID, &v.PageID, &v.Title, &v.Content, &v.SaveSessionID, &v.SavedBy, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return PageVersion{}, ErrNotFound
	}
	if err != nil {
		return PageVersion{}, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}

// --- attachments ---

func (s *PostgresStore) InsertAttachment(ctx context.Context, att Attachment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, page_id, file_name, content_type, size, object_key, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, att.ID, att.PageID, att.FileName, att.ContentType, att.Size, att.ObjectKey, att.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAttachments(ctx context.Context, pageID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, page_id, file_name, content_type, size, object_key, uploaded_by, created_at
		FROM attachments
		WHERE page_id = $1
		ORDER BY created_at
	`, pageID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var atts []Attachment
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.PageID, &a.FileName, &a.ContentType, &a.Size, &a.ObjectKey, &a.UploadedBy, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		atts = append(atts, a)
	}
	return atts, rows.Err()
}
