package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, error) {
	var req credentialsRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("invalid JSON: %w", err)
	}
	return req, nil
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCredentials(w, r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	user, token, err := s.auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	s.cookies.Set(w, token)
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCredentials(w, r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	user, token, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	s.cookies.Set(w, token)
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.SignOut(r.Context(), s.cookies.Token(r)); err != nil {
		writeStoreErr(w, err)
		return
	}
	s.cookies.Clear(w)
	writeNoContent(w)
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.CurrentUser(r.Context(), s.cookies.Token(r))
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
