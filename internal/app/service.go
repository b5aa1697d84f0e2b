package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"almanac/internal/auth"
	"almanac/internal/authpw"
	"almanac/internal/blob"
	"almanac/internal/config"
	"almanac/internal/content"
	"almanac/internal/gitrepo"
	"almanac/internal/search"
	"almanac/internal/store"
	"almanac/internal/util"
)

// Session is an authenticated caller.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

// LocationInput is the map position as it appears on the wire.
type LocationInput struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Zoom float64 `json:"zoom"`
}

// SavePageInput is the payload of the page save endpoint. SessionID
// groups consecutive auto-saves into one version row; FirstSave marks
// the save that brings a client-created page into existence.
type SavePageInput struct {
	Title      string          `json:"title"`
	Content    json.RawMessage `json:"content"`
	Location   *LocationInput  `json:"location"`
	CustomDate string          `json:"customDate"`
	SessionID  string          `json:"sessionId"`
	FirstSave  bool            `json:"firstSave"`
}

// CreatePageInput is the payload of the explicit page-create endpoint.
type CreatePageInput struct {
	Title      string          `json:"title"`
	Content    json.RawMessage `json:"content"`
	Location   *LocationInput  `json:"location"`
	CustomDate string          `json:"customDate"`
}

type dataStore interface {
	Ping(context.Context) error
	CreateUser(context.Context, store.User) error
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	ListPages(context.Context) ([]store.Page, error)
	GetPage(context.Context, string) (store.Page, error)
	InsertPage(context.Context, store.Page) error
	UpdatePage(context.Context, store.Page) error
	DeletePage(context.Context, string) error
	UpsertVersion(context.Context, store.PageVersion) (bool, error)
	ListVersions(context.Context, string) ([]store.PageVersion, error)
	GetVersion(ctx context.Context, pageID string, versionID int64) (store.PageVersion, error)
	InsertAttachment(context.Context, store.Attachment) error
	ListAttachments(context.Context, string) ([]store.Attachment, error)
}

// sessionStore holds refresh tokens; Redis in production, the data
// store's tables as fallback.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// Service implements the Almanac API operations over the stores and
// side services.
type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	git      *gitrepo.Service
	search   *search.Service
	authpw   *authpw.Service
	blob     *blob.Store
}

// New creates a service using the data store for refresh tokens.
func New(cfg config.Config, dataStore *store.PostgresStore, git *gitrepo.Service, searchService *search.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		git:      git,
		search:   searchService,
		authpw:   authpw.NewService(dataStore),
	}
}

// NewWithSessionStore creates a service with a dedicated refresh-token
// backend.
func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, git *gitrepo.Service, searchService *search.Service) *Service {
	s := New(cfg, dataStore, git, searchService)
	s.sessions = sessions
	return s
}

// SetBlobStore attaches the attachment backend; nil leaves uploads
// disabled.
func (s *Service) SetBlobStore(b *blob.Store) {
	s.blob = b
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- auth ---

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	user, err := s.authpw.SignUp(ctx, authpw.SignUpRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		if errors.Is(err, authpw.ErrEmailExists) {
			return Session{}, domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
		}
		return Session{}, domainError(http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.authpw.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password", nil)
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token into a fresh session. The old token
// is revoked before the new one is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
	}
	// The token store may carry only the user ID; rehydrate the record.
	if full, err := s.store.GetUserByID(ctx, user.ID); err == nil {
		user = full
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

// ChangePassword verifies the current password and stores a new one.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := s.authpw.ChangePassword(ctx, userID, current, next); err != nil {
		return domainError(http.StatusBadRequest, "PASSWORD_CHANGE_FAILED", err.Error(), nil)
	}
	return nil
}

// --- pages ---

func (s *Service) ListPages(ctx context.Context) ([]map[string]any, error) {
	pages, err := s.store.ListPages(ctx)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(pages))
	for _, page := range pages {
		payload = append(payload, map[string]any{
			"id":         page.ID,
			"title":      page.Title,
			"customDate": stringOrNil(page.CustomDate),
			"updatedBy":  page.UpdatedBy,
			"updatedAt":  page.UpdatedAt,
		})
	}
	return payload, nil
}

func (s *Service) GetPage(ctx context.Context, pageID string) (map[string]any, error) {
	page, err := s.store.GetPage(ctx, pageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Page not found")
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"page": pagePayload(page)}, nil
}

// CreatePage creates a page explicitly (the list view's "new page"
// action). The editor's client-generated pages arrive through SavePage
// with firstSave set instead.
func (s *Service) CreatePage(ctx context.Context, input CreatePageInput, session Session) (map[string]any, error) {
	pageID := util.NewID("page")
	saved, err := s.SavePage(ctx, pageID, SavePageInput{
		Title:      input.Title,
		Content:    input.Content,
		Location:   input.Location,
		CustomDate: input.CustomDate,
		FirstSave:  true,
	}, session)
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// SavePage validates and persists a page state, records a version row
// (merged into the previous one when the save session matches),
// mirrors the state to git and refreshes the search index.
func (s *Service) SavePage(ctx context.Context, pageID string, input SavePageInput, session Session) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "TITLE_REQUIRED", "Title is required", map[string]any{"field": "title"})
	}

	doc, err := content.Decode(input.Content)
	if err != nil {
		return nil, validationError("Content is not a valid document tree", nil)
	}
	canonical, err := doc.Encode()
	if err != nil {
		return nil, validationError("Content is not a valid document tree", nil)
	}

	customDate := strings.TrimSpace(input.CustomDate)
	if customDate != "" {
		if _, err := time.Parse("2006-01-02", customDate); err != nil {
			return nil, validationError("customDate must be YYYY-MM-DD", map[string]any{"field": "customDate"})
		}
	}

	page := store.Page{
		ID:         pageID,
		Title:      title,
		Content:    canonical,
		SearchText: doc.PlainText(),
		UpdatedBy:  session.UserName,
		CreatedBy:  session.UserName,
	}
	if input.Location != nil {
		page.Lat = &input.Location.Lat
		page.Lng = &input.Location.Lng
		page.Zoom = &input.Location.Zoom
	}
	if customDate != "" {
		page.CustomDate = &customDate
	}

	existing, err := s.store.GetPage(ctx, pageID)
	switch {
	case err == nil:
		page.CreatedBy = existing.CreatedBy
		if err := s.store.UpdatePage(ctx, page); err != nil {
			return nil, err
		}
	case errors.Is(err, store.ErrNotFound):
		if !input.FirstSave {
			return nil, notFound("Page not found")
		}
		if err := s.store.InsertPage(ctx, page); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	merged, err := s.store.UpsertVersion(ctx, store.PageVersion{
		PageID:        pageID,
		Title:         title,
		Content:       canonical,
		SaveSessionID: input.SessionID,
		SavedBy:       session.UserName,
	})
	if err != nil {
		return nil, err
	}

	s.mirrorSave(pageID, page, session.UserName, input.FirstSave)
	s.search.IndexPage(search.PageRecord{
		ID:    pageID,
		Title: title,
		Body:  doc.PlainText(),
		Date:  customDate,
	})

	saved, err := s.store.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"page":          pagePayload(saved),
		"versionMerged": merged,
	}, nil
}

// mirrorSave commits the saved state to the page's git mirror. Mirror
// failures are logged, not surfaced: the row in Postgres is already
// durable and the mirror catches up on the next save.
func (s *Service) mirrorSave(pageID string, page store.Page, author string, firstSave bool) {
	if s.git == nil {
		return
	}
	gitContent := gitrepo.Content{
		Title:   page.Title,
		Content: json.RawMessage(page.Content),
	}
	if page.Lat != nil && page.Lng != nil && page.Zoom != nil {
		loc, _ := json.Marshal(LocationInput{Lat: *page.Lat, Lng: *page.Lng, Zoom: *page.Zoom})
		gitContent.Location = loc
	}
	if page.CustomDate != nil {
		gitContent.CustomDate = *page.CustomDate
	}

	if err := s.git.EnsurePageRepo(pageID, gitContent, author); err != nil {
		log.Printf("gitrepo: ensure repo for %s: %v", pageID, err)
		return
	}
	if firstSave {
		// EnsurePageRepo already committed the baseline.
		return
	}
	if _, err := s.git.CommitSave(pageID, gitContent, author, "Save page"); err != nil {
		log.Printf("gitrepo: commit save for %s: %v", pageID, err)
	}
}

func (s *Service) DeletePage(ctx context.Context, pageID string) error {
	err := s.store.DeletePage(ctx, pageID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Page not found")
	}
	if err != nil {
		return err
	}
	s.search.RemovePage(pageID)
	return nil
}

// --- versions ---

func (s *Service) ListVersions(ctx context.Context, pageID string) (map[string]any, error) {
	if _, err := s.store.GetPage(ctx, pageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("Page not found")
		}
		return nil, err
	}
	versions, err := s.store.ListVersions(ctx, pageID)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(versions))
	for _, v := range versions {
		payload = append(payload, map[string]any{
			"id":        v.ID,
			"title":     v.Title,
			"savedBy":   v.SavedBy,
			"createdAt": v.CreatedAt,
			"updatedAt": v.UpdatedAt,
			"batched":   v.SaveSessionID != "",
		})
	}
	return map[string]any{"versions": payload}, nil
}

func (s *Service) GetVersion(ctx context.Context, pageID string, versionID int64) (map[string]any, error) {
	version, err := s.store.GetVersion(ctx, pageID, versionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Version not found")
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"version": map[string]any{
			"id":        version.ID,
			"title":     version.Title,
			"content":   json.RawMessage(version.Content),
			"savedBy":   version.SavedBy,
			"createdAt": version.CreatedAt,
			"updatedAt": version.UpdatedAt,
		},
	}, nil
}

// PageHistory lists the git mirror's commit history for a page.
func (s *Service) PageHistory(ctx context.Context, pageID string, limit int) (map[string]any, error) {
	if _, err := s.store.GetPage(ctx, pageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("Page not found")
		}
		return nil, err
	}
	if s.git == nil {
		return map[string]any{"commits": []gitrepo.CommitInfo{}}, nil
	}
	commits, err := s.git.History(pageID, limit)
	if err != nil {
		return nil, fmt.Errorf("page history: %w", err)
	}
	if commits == nil {
		commits = []gitrepo.CommitInfo{}
	}
	return map[string]any{"commits": commits}, nil
}

// --- search ---

func (s *Service) SearchPages(q search.Query) search.Response {
	return s.search.Search(q)
}

// --- attachments ---

// UploadAttachment streams an editor asset into the blob store and
// records it against the page.
func (s *Service) UploadAttachment(ctx context.Context, pageID, fileName, contentType string, size int64, reader io.Reader, session Session) (map[string]any, error) {
	if s.blob == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage not configured", nil)
	}
	if _, err := s.store.GetPage(ctx, pageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("Page not found")
		}
		return nil, err
	}

	attID := util.NewID("att")
	objectKey := path.Join(pageID, attID+path.Ext(fileName))
	written, err := s.blob.Put(ctx, objectKey, reader, size, contentType)
	if err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}

	att := store.Attachment{
		ID:          attID,
		PageID:      pageID,
		FileName:    fileName,
		ContentType: contentType,
		Size:        written,
		ObjectKey:   objectKey,
		UploadedBy:  session.UserName,
	}
	if err := s.store.InsertAttachment(ctx, att); err != nil {
		return nil, err
	}

	url, err := s.blob.PresignedGetURL(ctx, objectKey, 24*time.Hour)
	if err != nil {
		log.Printf("blob: presign %s: %v", objectKey, err)
		url = ""
	}
	return map[string]any{
		"attachment": map[string]any{
			"id":          att.ID,
			"fileName":    att.FileName,
			"contentType": att.ContentType,
			"size":        att.Size,
			"url":         url,
		},
	}, nil
}

func (s *Service) ListAttachments(ctx context.Context, pageID string) (map[string]any, error) {
	atts, err := s.store.ListAttachments(ctx, pageID)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(atts))
	for _, att := range atts {
		url := ""
		if s.blob != nil {
			if presigned, err := s.blob.PresignedGetURL(ctx, att.ObjectKey, 24*time.Hour); err == nil {
				url = presigned
			}
		}
		payload = append(payload, map[string]any{
			"id":          att.ID,
			"fileName":    att.FileName,
			"contentType": att.ContentType,
			"size":        att.Size,
			"createdAt":   att.CreatedAt,
			"url":         url,
		})
	}
	return map[string]any{"attachments": payload}, nil
}

// --- helpers ---

func pagePayload(page store.Page) map[string]any {
	payload := map[string]any{
		"id":         page.ID,
		"title":      page.Title,
		"content":    json.RawMessage(page.Content),
		"location":   nil,
		"customDate": stringOrNil(page.CustomDate),
		"createdBy":  page.CreatedBy,
		"updatedBy":  page.UpdatedBy,
		"createdAt":  page.CreatedAt,
		"updatedAt":  page.UpdatedAt,
	}
	if page.Lat != nil && page.Lng != nil && page.Zoom != nil {
		payload["location"] = LocationInput{Lat: *page.Lat, Lng: *page.Lng, Zoom: *page.Zoom}
	}
	return payload
}

func stringOrNil(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}
