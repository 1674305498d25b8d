// Package server is the kiosk-facing HTTP surface: a JSON API over the local
// store for the display frontend, an admin curation page, and the offline
// gateway mounted beneath everything else.
package server

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/guestkiosk/guestkiosk/internal/utils"
	"github.com/guestkiosk/guestkiosk/pkg/store"
)

//go:embed web
var WebFS embed.FS

type Server struct {
	Store   *store.Store
	Gateway http.Handler

	// DeletePassword gates destructive admin actions. It is a shared kiosk
	// secret, not a security boundary.
	DeletePassword string
}

func New(st *store.Store, gw http.Handler, deletePassword string) *Server {
	return &Server{
		Store:          st,
		Gateway:        gw,
		DeletePassword: deletePassword,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Entries API
	mux.HandleFunc("POST /api/entries", s.handleSubmitEntry)
	mux.HandleFunc("GET /api/entries", s.handleListEntries)
	mux.HandleFunc("GET /api/entries/count", s.handleCountEntries)
	mux.HandleFunc("GET /api/entries/{id}", s.handleGetEntry)
	mux.HandleFunc("DELETE /api/entries/{id}", s.handleDeleteEntry)
	mux.HandleFunc("DELETE /api/entries", s.deletePasswordGate(s.handlePurgeEntries))

	// Visitors API
	mux.HandleFunc("POST /api/visitors", s.handleAddVisitor)
	mux.HandleFunc("GET /api/visitors", s.handleListVisitors)
	mux.HandleFunc("GET /api/visitors/{id}", s.handleGetVisitor)
	mux.HandleFunc("DELETE /api/visitors/{id}", s.handleDeleteVisitor)

	// Admin curation page
	mux.HandleFunc("GET /admin", s.adminAuth(s.handleAdminPage))
	mux.HandleFunc("POST /admin/delete", s.adminAuth(s.handleAdminDelete))

	// Everything else is shell traffic and belongs to the offline gateway.
	mux.Handle("/", s.Gateway)

	return logRequests(mux)
}

func (s *Server) Start(addr string) error {
	utils.Log.Infof("Starting kiosk server on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// ShellFS returns the embedded demo shell, used when no upstream origin is
// configured and the kiosk self-hosts its app shell.
func ShellFS() (fs.FS, error) {
	return fs.Sub(WebFS, "web")
}

// deletePasswordGate protects the irreversible bulk purge: the shared secret
// plus an explicit confirm parameter, mirroring the two-step confirmation the
// kiosk UI shows.
func (s *Server) deletePasswordGate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.DeletePassword == "" || r.Header.Get("X-Delete-Password") != s.DeletePassword {
			http.Error(w, "invalid delete password", http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("confirm") != "yes" {
			http.Error(w, "confirm=yes is required", http.StatusBadRequest)
			return
		}
		next(w, r)
	}
}

// adminAuth gates the admin page behind the delete password via basic auth.
// The username is ignored.
func (s *Server) adminAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.DeletePassword == "" {
			next(w, r)
			return
		}
		_, pass, ok := r.BasicAuth()
		if !ok || pass != s.DeletePassword {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.Log.Debugf("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
