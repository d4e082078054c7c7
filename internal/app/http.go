package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"prioritylist/api/internal/authpw"
	"prioritylist/api/internal/export"
	"prioritylist/api/internal/logger"
	"prioritylist/api/internal/tree"
	"prioritylist/api/internal/util"
)

const maxBodyBytes = 1 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        *logger.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, log *logger.Logger) *HTTPServer {
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, log: log}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	isRead := r.Method == http.MethodGet || r.Method == http.MethodHead
	switch {
	case isRead && r.URL.Path == "/api/health":
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	case isRead && r.URL.Path == "/api/ready":
		s.handleReady(w, r)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup":
		s.handleAuthSignUp(w, r)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin":
		s.handleAuthSignIn(w, r)
		return
	case r.Method == http.MethodGet && r.URL.Path == "/api/session":
		s.handleSessionStatus(w, r)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/session/login":
		s.handleLogin(w, r)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh":
		s.handleRefresh(w, r)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/session/logout":
		s.handleLogout(w, r)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	switch parts[1] {
	case "nodes":
		s.handleNodes(w, r, session, parts[2:])
	case "root":
		s.handleRoot(w, r, session, parts[2:])
	case "search":
		if len(parts) != 2 || r.Method != http.MethodGet {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
			return
		}
		s.handleSearch(w, r, session)
	case "link-preview":
		if len(parts) != 2 || r.Method != http.MethodGet {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
			return
		}
		s.handleLinkPreview(w, r)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// Sessions

func sessionPayload(sess Session) map[string]any {
	return map[string]any{
		"token":        sess.Token,
		"refreshToken": sess.RefreshToken,
		"userId":       sess.UserID,
		"userName":     sess.UserName,
		"expiresAt":    sess.ExpiresAt.Unix(),
	}
}

func (s *HTTPServer) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	sess, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "userName": sess.UserName, "userId": sess.UserID})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	sess, err := s.service.Login(r.Context(), body.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(sess))
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	sess, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(sess))
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := Session{}
	if token := bearerToken(r); token != "" {
		if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			sess = parsed
		}
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	s.service.Logout(r.Context(), sess, body.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	sess, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(sess))
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	sess, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(sess))
}

// Nodes

type nodeResponse struct {
	ID                    string    `json:"id"`
	UserID                string    `json:"userId"`
	Name                  string    `json:"name"`
	Note                  string    `json:"note"`
	URL                   *string   `json:"url"`
	URLPreviewImageURL    *string   `json:"urlPreviewImageUrl"`
	URLPreviewDescription *string   `json:"urlPreviewDescription"`
	ChildrenIDs           []string  `json:"childrenIds"`
	CompletedNodeID       *string   `json:"completedNodeId"`
	NodeType              string    `json:"nodeType"`
	CreatedAt             time.Time `json:"createdAt"`
}

func toNodeResponse(n tree.Node) nodeResponse {
	children := n.ChildrenIDs
	if children == nil {
		children = []string{}
	}
	return nodeResponse{
		ID:                    n.ID,
		UserID:                n.OwnerID,
		Name:                  n.Name,
		Note:                  n.Note,
		URL:                   n.URL,
		URLPreviewImageURL:    n.URLPreviewImageURL,
		URLPreviewDescription: n.URLPreviewDescription,
		ChildrenIDs:           children,
		CompletedNodeID:       n.CompletedNodeID,
		NodeType:              string(n.Type),
		CreatedAt:             n.CreatedAt,
	}
}

func toNodeResponses(nodes []tree.Node) []nodeResponse {
	out := make([]nodeResponse, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, toNodeResponse(n))
	}
	return out
}

type nodeBody struct {
	Name                  string  `json:"name"`
	Note                  string  `json:"note"`
	ParentID              string  `json:"parentId"`
	Idx                   *int    `json:"idx"`
	URL                   *string `json:"url"`
	URLPreviewImageURL    *string `json:"urlPreviewImageUrl"`
	URLPreviewDescription *string `json:"urlPreviewDescription"`
}

func (s *HTTPServer) handleNodes(w http.ResponseWriter, r *http.Request, sess Session, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodPost:
		var body nodeBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		node, err := s.service.CreateNode(r.Context(), sess, tree.CreateInput{
			Name:                  body.Name,
			Note:                  body.Note,
			ParentID:              body.ParentID,
			Index:                 body.Idx,
			URL:                   body.URL,
			URLPreviewImageURL:    body.URLPreviewImageURL,
			URLPreviewDescription: body.URLPreviewDescription,
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"node": toNodeResponse(node)})

	case len(parts) == 1 && r.Method == http.MethodGet:
		node, err := s.service.GetNode(r.Context(), sess, parts[0])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		nodes := []nodeResponse{}
		if node != nil {
			nodes = append(nodes, toNodeResponse(*node))
		}
		writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes})

	case len(parts) == 1 && r.Method == http.MethodPut:
		var body nodeBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		node, err := s.service.UpdateNode(r.Context(), sess, tree.UpdateInput{
			ID:                    parts[0],
			Name:                  body.Name,
			Note:                  body.Note,
			URL:                   body.URL,
			URLPreviewImageURL:    body.URLPreviewImageURL,
			URLPreviewDescription: body.URLPreviewDescription,
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"node": toNodeResponse(node)})

	case len(parts) == 2 && parts[1] == "children" && r.Method == http.MethodGet:
		s.handleListChildren(w, r, sess, parts[0])

	case len(parts) == 2 && parts[1] == "reorder" && r.Method == http.MethodPost:
		var body struct {
			ChildrenIDs []string `json:"childrenIds"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		order, err := s.service.ReorderChildren(r.Context(), sess, parts[0], body.ChildrenIDs)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"childrenIds": order})

	case len(parts) == 2 && parts[1] == "export" && r.Method == http.MethodGet:
		s.handleExport(w, r, sess, parts[0])

	case len(parts) == 3 && parts[1] == "children" && r.Method == http.MethodDelete:
		s.handleDelete(w, r, sess, parts[0], parts[2])

	case len(parts) == 4 && parts[1] == "children" && parts[3] == "delete" && r.Method == http.MethodPost:
		s.handleDelete(w, r, sess, parts[0], parts[2])

	case len(parts) == 4 && parts[1] == "children" && parts[3] == "complete" && r.Method == http.MethodPost:
		if err := s.service.CompleteNode(r.Context(), sess, parts[0], parts[2]); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleDelete(w http.ResponseWriter, r *http.Request, sess Session, parentID, id string) {
	if err := s.service.DeleteNode(r.Context(), sess, parentID, id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleListChildren(w http.ResponseWriter, r *http.Request, sess Session, parentID string) {
	limit, err := optionalInt(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cursor, err := optionalInt(r, "cursor")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.service.ListChildren(r.Context(), sess, parentID, limit, cursor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	payload := map[string]any{"children": toNodeResponses(page.Children)}
	if page.NextCursor != nil {
		payload["nextCursor"] = *page.NextCursor
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request, sess Session, parts []string) {
	if len(parts) != 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}
	switch r.Method {
	case http.MethodGet:
		node, err := s.service.GetRootNode(r.Context(), sess)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		var payload any
		if node != nil {
			payload = toNodeResponse(*node)
		}
		writeJSON(w, http.StatusOK, map[string]any{"node": payload})
	case http.MethodPost:
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		node, err := s.service.CreateRootNode(r.Context(), sess, body.Name)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"node": toNodeResponse(node)})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, sess Session) {
	limit, err := optionalInt(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	offset, err := optionalInt(r, "offset")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp, err := s.service.Search(r.Context(), sess, r.URL.Query().Get("q"), derefInt(limit), derefInt(offset))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleLinkPreview(w http.ResponseWriter, r *http.Request) {
	preview, err := s.service.LinkPreview(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, sess Session, nodeID string) {
	query := r.URL.Query()
	format, err := export.ParseFormat(query.Get("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	depth, err := optionalInt(r, "depth")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	stored := query.Get("store") == "true" || query.Get("store") == "1"

	result, err := s.service.Export(r.Context(), sess, export.Request{
		NodeID: nodeID,
		Depth:  derefInt(depth),
		Format: format,
		Store:  stored,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if stored {
		writeJSON(w, http.StatusOK, map[string]any{
			"filename":    result.Filename,
			"mimeType":    result.MimeType,
			"downloadUrl": result.DownloadURL,
			"expiresAt":   result.ExpiresAt,
		})
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	sess, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		s.fail(w, r, err)
		return Session{}, false
	}
	return sess, true
}

// fail writes the mapped error. Consistency faults and unexpected errors are
// logged with the request id.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	switch {
	case errors.Is(err, tree.ErrInvalidReference):
		s.log.Error("stored child order is inconsistent", "request_id", requestID(r.Context()), "path", r.URL.Path, "error", err)
	case status >= http.StatusInternalServerError:
		s.log.Error("request failed", "request_id", requestID(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = util.NewRequestID("req")
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID))

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", reqID)

		next.ServeHTTP(writer, r)

		kv := []any{
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		}
		switch {
		case writer.status >= http.StatusInternalServerError:
			s.log.Error("http request", kv...)
		case writer.status >= http.StatusBadRequest:
			s.log.Warn("http request", kv...)
		case r.URL.Path == "/api/health":
			s.log.Debug("http request", kv...)
		default:
			s.log.Info("http request", kv...)
		}
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// decodeBody treats an empty body as an empty object.
func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func optionalInt(r *http.Request, name string) (*int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &tree.ValidationError{Field: name, Message: "must be an integer"}
	}
	return &value, nil
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
