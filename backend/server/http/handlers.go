package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/adwski/chat-backend/backend/service"
	"github.com/go-chi/chi/v5"
)

func (srv *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if !srv.readJSON(w, r, &req) {
		return
	}
	res, err := srv.svc.Register(r.Context(), req)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}
	srv.writeJSON(w, http.StatusCreated, res)
}

func (srv *Server) authUser(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if !srv.readJSON(w, r, &req) {
		return
	}
	res, err := srv.svc.Login(r.Context(), req)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, res)
}

func (srv *Server) allUsers(w http.ResponseWriter, r *http.Request) {
	users, err := srv.svc.SearchUsers(r.Context(), userFromCtx(r.Context()), r.URL.Query().Get("search"))
	if err != nil {
		srv.writeError(w, r, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, users)
}

func (srv *Server) accessChat(w http.ResponseWriter, r *http.Request) {
	var req service.AccessChatRequest
	if !srv.readJSON(w, r, &req) {
		return
	}
	chat, err := srv.svc.AccessChat(r.Context(), userFromCtx(r.Context()), req)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, chat)
}

func (srv *Server) fetchChats(w http.ResponseWriter, r *http.Request) {
	chats, err := srv.svc.FetchChats(r.Context(), userFromCtx(r.Context()))
	if err != nil {
		srv.writeError(w, r, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, chats)
}

func (srv *Server) createGroupChat(w http.ResponseWriter, r *http.Request) {
	var req service.GroupChatRequest
	if !srv.readJSON(w, r, &req) {
		return
	}
	chat, err := srv.svc.CreateGroupChat(r.Context(), userFromCtx(r.Context()), req)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, chat)
}

func (srv *Server) renameGroup(w http.ResponseWriter, r *http.Request) {
	var req service.RenameGroupRequest
	if !srv.readJSON(w, r, &req) {
		return
	}
	chat, err := srv.svc.RenameGroup(r.Context(), userFromCtx(r.Context()), req)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, chat)
}

func (srv *Server) addToGroup(w http.ResponseWriter, r *http.Request) {
	var req service.GroupMemberRequest
	if !srv.readJSON(w, r, &req) {
		return
	}
	chat, err := srv.svc.AddToGroup(r.Context(), userFromCtx(r.Context()), req)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, chat)
}

func (srv *Server) removeFromGroup(w http.ResponseWriter, r *http.Request) {
	var req service.GroupMemberRequest
	if !srv.readJSON(w, r, &req) {
		return
	}
	chat, err := srv.svc.RemoveFromGroup(r.Context(), userFromCtx(r.Context()), req)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, chat)
}

func (srv *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req service.SendMessageRequest
	if !srv.readJSON(w, r, &req) {
		return
	}
	msg, err := srv.svc.SendMessage(r.Context(), userFromCtx(r.Context()), req)
	if err != nil {
		srv.writeError(w, r, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, msg)
}

func (srv *Server) allMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := srv.svc.AllMessages(r.Context(), userFromCtx(r.Context()), chi.URLParam(r, "chatID"))
	if err != nil {
		srv.writeError(w, r, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, msgs)
}

func (srv *Server) notFound(w http.ResponseWriter, r *http.Request) {
	srv.writeJSON(w, http.StatusNotFound, &GenericResponse{Error: "Not Found - " + r.URL.Path})
}

func (srv *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer func() {
		_ = r.Body.Close()
	}()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		srv.logger.Trace().Err(err).Msg("bad request body")
		srv.writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "malformed request body"})
		return false
	}
	return true
}

func (srv *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrMissingFields),
		errors.Is(err, service.ErrUserExists),
		errors.Is(err, service.ErrGroupTooSmall),
		errors.Is(err, service.ErrNotGroup):
		code = http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrUnauthorized):
		code = http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		code = http.StatusNotFound
	}

	if code == http.StatusInternalServerError {
		srv.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		srv.writeJSON(w, code, &GenericResponse{Error: ErrUnexpected.Error()})
		return
	}
	srv.writeJSON(w, code, &GenericResponse{Error: err.Error()})
}

func (srv *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		srv.logger.Error().Err(err).Msg("failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	if _, err = w.Write(b); err != nil {
		srv.logger.Error().Err(err).Msg("failed to write response")
	}
}
