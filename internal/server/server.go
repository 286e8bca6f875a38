package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/eventscout/internal/database"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

const recentEventLimit = 100

// Server is the HTTP server for browsing digests, events and interests.
type Server struct {
	db       *database.DB
	gatherer prometheus.Gatherer
	pages    map[string]*template.Template
	mux      *http.ServeMux
}

// New creates a new Server. When gatherer is non-nil its metrics are
// exposed on /metrics.
func New(db *database.DB, gatherer prometheus.Gatherer) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown":     renderMarkdown,
		"formatPeriod": database.FormatPeriodDisplay,
		"join":         strings.Join,
		"when": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return t.Format("Mon, Jan 2 at 3:04 PM")
		},
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so {{define "content"}} does not collide.
	pageNames := []string{"index.html", "digest.html", "events.html", "interests.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, gatherer: gatherer, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/digest/", s.handleDigest)
	s.mux.HandleFunc("/events", s.handleEvents)
	s.mux.HandleFunc("/interests", s.handleInterests)
	s.mux.HandleFunc("/interests/add", s.handleAddInterest)
	s.mux.HandleFunc("/interests/", s.handleInterestAction)
	if s.gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	digests, err := s.db.GetAllDigests()
	if err != nil {
		log.Printf("Error loading digests: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	reports, _ := s.db.GetRecentReports(10)
	stats, _ := s.db.GetStats()

	s.render(w, "index.html", map[string]any{
		"Digests": digests,
		"Reports": reports,
		"Stats":   stats,
	})
}

func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimPrefix(r.URL.Path, "/digest/")
	if runID == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	digest, err := s.db.GetDigest(runID)
	if err != nil {
		log.Printf("Error loading digest %s: %v", runID, err)
	}
	if digest == nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
	}

	s.render(w, "digest.html", map[string]any{
		"Digest": digest,
		"RunID":  runID,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.db.LatestEvents(recentEventLimit)
	if err != nil {
		log.Printf("Error loading events: %v", err)
	}
	s.render(w, "events.html", map[string]any{
		"Events": events,
	})
}

func (s *Server) handleInterests(w http.ResponseWriter, r *http.Request) {
	interests, _ := s.db.GetAllInterests()
	s.render(w, "interests.html", map[string]any{
		"Interests": interests,
	})
}

func (s *Server) handleAddInterest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/interests", http.StatusFound)
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	description := strings.TrimSpace(r.FormValue("description"))
	keywords := splitKeywords(r.FormValue("keywords"))
	weight, _ := strconv.Atoi(r.FormValue("weight"))

	if title != "" {
		if _, err := s.db.InsertInterest(title, description, keywords, weight); err != nil {
			log.Printf("Error adding interest %q: %v", title, err)
		}
	}

	http.Redirect(w, r, "/interests", http.StatusFound)
}

func (s *Server) handleInterestAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/interests", http.StatusFound)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/interests/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 {
		http.Redirect(w, r, "/interests", http.StatusFound)
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.Redirect(w, r, "/interests", http.StatusFound)
		return
	}

	switch parts[1] {
	case "toggle":
		s.db.ToggleInterest(id)
	case "delete":
		s.db.DeleteInterest(id)
	case "edit":
		title := strings.TrimSpace(r.FormValue("title"))
		description := strings.TrimSpace(r.FormValue("description"))
		var weight *int
		if n, err := strconv.Atoi(r.FormValue("weight")); err == nil {
			weight = &n
		}
		if title != "" {
			s.db.UpdateInterest(id, &title, &description, splitKeywords(r.FormValue("keywords")), weight)
		}
	}

	http.Redirect(w, r, "/interests", http.StatusFound)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// splitKeywords parses a comma separated keyword list.
func splitKeywords(raw string) []string {
	var out []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, gatherer prometheus.Gatherer, port int) error {
	srv, err := New(db, gatherer)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
