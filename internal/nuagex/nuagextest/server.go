// Package nuagextest provides an in-process fake of the NuageX API for tests.
package nuagextest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/michaelbrown/nuxlab/internal/nuagex"
)

const (
	Username = "USERNAME"
	Password = "PASSWORD"
	Token    = "test-token"
)

// Server is a fake NuageX API. New labs report "pending" for StartAfter
// listings before switching to "started"; deleted labs stay listed for
// GoneAfter listings.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	labs       []*fakeLab
	templates  []nuagex.Template
	nextID     int
	token      string
	rotations  int
	StartAfter int
	GoneAfter  int
	Creates    int
	Deletes    int
	Logins     int
	// FailLabs makes every /labs call answer with this status when non-zero.
	FailLabs int
	// RejectTokens answers every authorized call with 401, as if each token
	// expired the moment it was issued.
	RejectTokens bool
}

type fakeLab struct {
	lab          nuagex.Lab
	pendingLists int
	deleted      bool
	goneLists    int
}

// NewServer starts a fake with the given templates.
func NewServer(templates ...nuagex.Template) *Server {
	s := &Server{templates: templates, token: Token, StartAfter: 1}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/templates", s.authorized(s.handleTemplates))
	mux.HandleFunc("/api/labs", s.authorized(s.handleLabs))
	mux.HandleFunc("/api/labs/", s.authorized(s.handleLab))
	s.Server = httptest.NewServer(mux)
	return s
}

// APIURL is the base URL to hand to nuagex.New.
func (s *Server) APIURL() string {
	return s.URL + "/api"
}

// AddLab seeds an existing lab and returns its id.
func (s *Server) AddLab(lab nuagex.Lab) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lab.ID == "" {
		lab.ID = s.newID()
	}
	s.labs = append(s.labs, &fakeLab{lab: lab})
	return lab.ID
}

// Labs returns the labs that are still listed.
func (s *Server) Labs() []nuagex.Lab {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []nuagex.Lab
	for _, fl := range s.labs {
		if !fl.deleted {
			out = append(out, fl.lab)
		}
	}
	return out
}

// ExpireToken invalidates the issued token. Later requests carrying it get
// a 401 and the next login hands out a new one.
func (s *Server) ExpireToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotations++
	s.token = fmt.Sprintf("%s-%d", Token, s.rotations)
}

func (s *Server) newID() string {
	s.nextID++
	return fmt.Sprintf("lab%04d", s.nextID)
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		want := "Bearer " + s.token
		reject := s.RejectTokens
		s.mu.Unlock()
		if reject || r.Header.Get("Authorization") != want {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "jwt expired"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds nuagex.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	s.mu.Lock()
	s.Logins++
	token := s.token
	s.mu.Unlock()
	if creds.Username != Username || creds.Password != Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "bad credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": token})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.templates)
}

func (s *Server) handleLabs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailLabs != 0 {
		writeJSON(w, s.FailLabs, map[string]string{"message": "labs unavailable"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		name := r.URL.Query().Get("name")
		out := []nuagex.Lab{}
		for _, fl := range s.labs {
			if fl.lab.Name != name {
				continue
			}
			if fl.deleted {
				if fl.goneLists <= 0 {
					continue
				}
				fl.goneLists--
			} else if fl.pendingLists > 0 {
				fl.pendingLists--
				if fl.pendingLists == 0 {
					fl.lab.Status = nuagex.StatusStarted
				}
			}
			out = append(out, fl.lab)
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		var req nuagex.CreateLabRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		if !s.hasTemplate(req.Template) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "unknown template"})
			return
		}
		s.Creates++
		lab := nuagex.Lab{
			ID:         s.newID(),
			Name:       req.Name,
			Status:     "pending",
			Template:   req.Template,
			ExternalIP: fmt.Sprintf("198.51.100.%d", s.nextID),
			Password:   "pw-" + req.Name,
			Services:   []nuagex.Service{{Name: "ssh", Protocol: "tcp", Port: 22}},
		}
		fl := &fakeLab{lab: lab, pendingLists: s.StartAfter}
		if s.StartAfter <= 0 {
			fl.lab.Status = nuagex.StatusStarted
		}
		s.labs = append(s.labs, fl)
		writeJSON(w, http.StatusCreated, lab)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLab(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/labs/")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailLabs != 0 {
		writeJSON(w, s.FailLabs, map[string]string{"message": "labs unavailable"})
		return
	}
	for _, fl := range s.labs {
		if fl.lab.ID == id && !fl.deleted {
			fl.deleted = true
			fl.goneLists = s.GoneAfter
			fl.lab.Status = "deleting"
			s.Deletes++
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "lab not found"})
}

func (s *Server) hasTemplate(id string) bool {
	for _, t := range s.templates {
		if t.ID == id {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
