package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/michaelbrown/nuxlab/internal/nuagex"
	"github.com/michaelbrown/nuxlab/internal/reconcile"
	"github.com/michaelbrown/nuxlab/internal/storage"
)

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON decodes the request body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// statusFor maps reconciliation errors onto HTTP statuses.
func statusFor(err error) int {
	var (
		authErr    *nuagex.AuthError
		invalidErr *reconcile.InvalidParamError
		apiErr     *nuagex.APIError
	)
	switch {
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &invalidErr):
		return http.StatusBadRequest
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	case errors.Is(err, nuagex.ErrWaitTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

// --- Lab handlers ---

func (s *Server) handleGetLab(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	template := r.URL.Query().Get("template")

	md, err := s.app.Reconciler(nil).Lookup(r.Context(), name, template)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if md == nil {
		writeError(w, http.StatusNotFound, "lab not found")
		return
	}
	writeJSON(w, http.StatusOK, md)
}

type ensureRequest struct {
	Template string `json:"template"`
	Check    bool   `json:"check"`
}

func (s *Server) handleEnsurePresent(w http.ResponseWriter, r *http.Request) {
	var req ensureRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	s.ensure(w, r, reconcile.Params{
		Name:      chi.URLParam(r, "name"),
		Template:  req.Template,
		State:     reconcile.StatePresent,
		CheckMode: req.Check || queryBool(r, "check"),
	})
}

func (s *Server) handleEnsureAbsent(w http.ResponseWriter, r *http.Request) {
	s.ensure(w, r, reconcile.Params{
		Name:      chi.URLParam(r, "name"),
		Template:  r.URL.Query().Get("template"),
		State:     reconcile.StateAbsent,
		CheckMode: queryBool(r, "check"),
	})
}

func (s *Server) ensure(w http.ResponseWriter, r *http.Request, p reconcile.Params) {
	unlock := s.locks.Lock(p.Name)
	defer unlock()

	res, err := s.app.Ensure(r.Context(), p, nil)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Template handlers ---

type templateResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.app.Reconciler(nil).Templates(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	out := make([]templateResponse, 0, len(templates))
	for _, t := range templates {
		out = append(out, templateResponse{ID: t.ID, Name: t.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Run journal handlers ---

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.app.Store == nil {
		writeJSON(w, http.StatusOK, []storage.Run{})
		return
	}

	opts := storage.RunListOptions{LabName: r.URL.Query().Get("lab")}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			opts.Offset = n
		}
	}

	runs, err := s.app.Store.ListRuns(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}
