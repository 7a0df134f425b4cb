package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/shopkeeper/internal/api"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/server/auth"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Success: false, Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) handleSalt(w http.ResponseWriter, r *http.Request) {
	var req api.SaltRequest
	if !decodeBody(w, r, &req) {
		return
	}

	salt, err := s.accounts.GetSalt(r.Context(), req.Username)
	if err != nil {
		s.logger.Error(r.Context(), "salt lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, api.SaltResponse{Salt: salt})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sess, err := s.accounts.Login(r.Context(), req.Username, req.Verifier)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		s.logger.Error(r.Context(), "login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.logger.Info(r.Context(), "Logged in", "username", req.Username, "role", string(sess.Caller.Role))
	writeJSON(w, http.StatusOK, api.LoginResponse{
		AccessToken: sess.AccessToken,
		UserID:      sess.Caller.UserID,
		Role:        string(sess.Caller.Role),
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFromContext(r.Context())

	var req api.SyncRequest
	if !decodeBody(w, r, &req) {
		return
	}

	results, err := s.sync.Apply(r.Context(), caller, req.Changes)
	if err != nil {
		s.logger.Error(r.Context(), "sync failed", "user", caller.UserID, "error", err)
		writeJSON(w, http.StatusInternalServerError, api.SyncResponse{Success: false, Error: "sync failed"})
		return
	}

	s.logger.Info(r.Context(), "Sync applied", "user", caller.UserID, "tables", len(results))
	writeJSON(w, http.StatusOK, api.SyncResponse{Success: true, Results: results})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.sync.Status(r.Context())
	if err != nil {
		s.logger.Error(r.Context(), "status failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePresign(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFromContext(r.Context())

	var req api.PresignRequest
	if !decodeBody(w, r, &req) {
		return
	}

	up, err := s.media.PresignProductImage(r.Context(), caller, req.ProductID, req.ContentType)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, api.PresignResponse{Key: up.Key, URL: up.URL})
	case errors.Is(err, common.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, common.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(r.Context(), "presign failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
