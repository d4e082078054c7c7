package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"prioritylist/api/internal/auth"
	"prioritylist/api/internal/authpw"
	"prioritylist/api/internal/export"
	"prioritylist/api/internal/linkpreview"
	"prioritylist/api/internal/logger"
	"prioritylist/api/internal/search"
	"prioritylist/api/internal/session"
	"prioritylist/api/internal/store"
	"prioritylist/api/internal/tree"
	"prioritylist/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

// Caller is the tree identity the session acts as.
func (s Session) Caller() tree.Caller {
	return tree.Caller{OwnerID: s.UserID}
}

type userStore interface {
	EnsureUserByName(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	Ping(context.Context) error
}

type previewer interface {
	Preview(ctx context.Context, rawURL string) (linkpreview.Preview, error)
}

type exporter interface {
	Export(ctx context.Context, caller tree.Caller, req export.Request) (*export.Result, error)
}

// Deps are the collaborators wired in by cmd/api. Search, Previews and
// Exports may be nil; the matching routes then answer 503.
type Deps struct {
	Users     userStore
	Sessions  session.Store
	Passwords *authpw.Service
	Trees     *tree.Engine
	Search    *search.Service
	Previews  previewer
	Exports   exporter
	Log       *logger.Logger
}

type Service struct {
	users      userStore
	sessions   session.Store
	signer     *auth.Signer
	passwords  *authpw.Service
	trees      *tree.Engine
	search     *search.Service
	previews   previewer
	exports    exporter
	log        *logger.Logger
	refreshTTL time.Duration
}

func New(secret string, accessTTL, refreshTTL time.Duration, deps Deps) *Service {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		users:      deps.Users,
		sessions:   deps.Sessions,
		signer:     auth.NewSigner(secret, accessTTL),
		passwords:  deps.Passwords,
		trees:      deps.Trees,
		search:     deps.Search,
		previews:   deps.Previews,
		exports:    deps.Exports,
		log:        log,
		refreshTTL: refreshTTL,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.users.Ping(ctx)
}

// Login signs in a password-less user by display name, creating it on first use.
func (s *Service) Login(ctx context.Context, name string) (Session, error) {
	userName := strings.TrimSpace(name)
	if userName == "" {
		userName = "User"
	}
	user, err := s.users.EnsureUserByName(ctx, userName)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	if s.passwords == nil {
		return Session{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	user, err := s.passwords.SignUp(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	if s.passwords == nil {
		return Session{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	user, err := s.passwords.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the old one is revoked before a new
// session is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, errUnauthorized
	}
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, errUnauthorized
	}
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	token, claims, err := s.signer.Issue(user.ID, user.DisplayName)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewToken()
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, time.Now().Add(s.refreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          claims.JTI,
		ExpiresAt:    claims.ExpiresAt(),
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt(),
	}, nil
}

func (s *Service) Logout(ctx context.Context, sess Session, refreshToken string) {
	if sess.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, sess.JTI, sess.ExpiresAt); err != nil {
			s.log.Warn("revoke access token failed", "user_id", sess.UserID, "error", err)
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.log.Warn("revoke refresh token failed", "user_id", sess.UserID, "error", err)
		}
	}
}

// Node operations. Search indexing follows each successful write.

func (s *Service) GetNode(ctx context.Context, sess Session, id string) (*tree.Node, error) {
	return s.trees.Get(ctx, sess.Caller(), id)
}

func (s *Service) CreateNode(ctx context.Context, sess Session, in tree.CreateInput) (tree.Node, error) {
	node, err := s.trees.Create(ctx, sess.Caller(), in)
	if err != nil {
		return tree.Node{}, err
	}
	s.index(node)
	return node, nil
}

func (s *Service) UpdateNode(ctx context.Context, sess Session, in tree.UpdateInput) (tree.Node, error) {
	node, err := s.trees.Update(ctx, sess.Caller(), in)
	if err != nil {
		return tree.Node{}, err
	}
	s.index(node)
	return node, nil
}

func (s *Service) DeleteNode(ctx context.Context, sess Session, parentID, id string) error {
	if err := s.trees.Delete(ctx, sess.Caller(), parentID, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteNode(id)
	}
	return nil
}

func (s *Service) CompleteNode(ctx context.Context, sess Session, parentID, id string) error {
	return s.trees.Complete(ctx, sess.Caller(), parentID, id)
}

func (s *Service) ReorderChildren(ctx context.Context, sess Session, parentID string, childrenIDs []string) ([]string, error) {
	return s.trees.ReorderChildren(ctx, sess.Caller(), parentID, childrenIDs)
}

func (s *Service) ListChildren(ctx context.Context, sess Session, parentID string, limit, cursor *int) (tree.Page, error) {
	return s.trees.ListChildren(ctx, sess.Caller(), parentID, limit, cursor)
}

// CreateRootNode names a new root after the user unless name is given.
func (s *Service) CreateRootNode(ctx context.Context, sess Session, name string) (tree.Node, error) {
	if strings.TrimSpace(name) == "" {
		name = sess.UserName
	}
	return s.trees.GetOrCreateRoot(ctx, sess.Caller(), name)
}

func (s *Service) GetRootNode(ctx context.Context, sess Session) (*tree.Node, error) {
	return s.trees.GetRoot(ctx, sess.Caller())
}

func (s *Service) index(node tree.Node) {
	if s.search == nil || node.IsBucket() {
		return
	}
	record := search.NodeRecord{ID: node.ID, OwnerID: node.OwnerID, Name: node.Name, Note: node.Note}
	if node.URL != nil {
		record.URL = *node.URL
	}
	s.search.IndexNode(record)
}

func (s *Service) Search(ctx context.Context, sess Session, text string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(ctx, search.Query{OwnerID: sess.UserID, Text: text, Limit: limit, Offset: offset}), nil
}

func (s *Service) LinkPreview(ctx context.Context, rawURL string) (linkpreview.Preview, error) {
	if s.previews == nil {
		return linkpreview.Preview{}, domainError(http.StatusServiceUnavailable, "PREVIEW_UNAVAILABLE", "Link previews are not configured", nil)
	}
	preview, err := s.previews.Preview(ctx, rawURL)
	if err == nil {
		return preview, nil
	}
	switch {
	case errors.Is(err, linkpreview.ErrInvalidURL),
		errors.Is(err, linkpreview.ErrBlockedHost),
		errors.Is(err, linkpreview.ErrRedirectBlocked),
		errors.Is(err, linkpreview.ErrNoTitle):
		return linkpreview.Preview{}, err
	}
	s.log.Warn("link preview failed", "url", rawURL, "error", err)
	return linkpreview.Preview{}, domainError(http.StatusBadGateway, "PREVIEW_FAILED", "Could not fetch link preview", nil)
}

func (s *Service) Export(ctx context.Context, sess Session, req export.Request) (*export.Result, error) {
	if s.exports == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	result, err := s.exports.Export(ctx, sess.Caller(), req)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", req.NodeID, err)
	}
	return result, nil
}
