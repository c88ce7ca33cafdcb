package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Credentials accepted by FakeConfluence.
const (
	FakeUsername = "migrator@example.com"
	FakeToken    = "fake-token"
	FakeSpace    = "DOCS"
	FakeHomeID   = "1000"
)

// FakePage is a page stored by FakeConfluence.
type FakePage struct {
	ID       string
	Title    string
	ParentID string
	Body     string
	Version  int
}

// FakeConfluence is an in-memory Confluence site serving the REST endpoints
// the migration uses, for one space.
type FakeConfluence struct {
	URL string

	mu      sync.Mutex
	srv     *httptest.Server
	pages   map[string]*FakePage
	nextID  int
	creates int
	updates int

	// FailStatus, when set, answers every matching request with the status.
	// Keys are "METHOD title" for creates and "METHOD id" otherwise.
	FailStatus map[string]int
}

// NewFakeConfluence starts a fake site whose space has an empty homepage.
// The server is closed when the test ends.
func NewFakeConfluence(t *testing.T) *FakeConfluence {
	t.Helper()
	f := &FakeConfluence{
		pages:      map[string]*FakePage{FakeHomeID: {ID: FakeHomeID, Title: FakeSpace + " Home", Version: 1}},
		nextID:     2000,
		FailStatus: make(map[string]int),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	f.URL = f.srv.URL + "/wiki"
	t.Cleanup(f.srv.Close)
	return f
}

// AddPage stores a page, as if created by someone else.
func (f *FakeConfluence) AddPage(parentID, title, body string) *FakePage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.add(parentID, title, body)
}

func (f *FakeConfluence) add(parentID, title, body string) *FakePage {
	f.nextID++
	p := &FakePage{ID: strconv.Itoa(f.nextID), Title: title, ParentID: parentID, Body: body, Version: 1}
	f.pages[p.ID] = p
	return p
}

// Children returns the titles of the children of id, sorted.
func (f *FakeConfluence) Children(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var titles []string
	for _, p := range f.pages {
		if p.ParentID == id {
			titles = append(titles, p.Title)
		}
	}
	sort.Strings(titles)
	return titles
}

// Find returns the child of parentID titled title.
func (f *FakeConfluence) Find(parentID, title string) (*FakePage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pages {
		if p.ParentID == parentID && p.Title == title {
			cp := *p
			return &cp, true
		}
	}
	return nil, false
}

// Len returns the number of pages, homepage included.
func (f *FakeConfluence) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pages)
}

// Creates returns how many pages were created through the API.
func (f *FakeConfluence) Creates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

func (f *FakeConfluence) serve(w http.ResponseWriter, r *http.Request) {
	if user, pass, ok := r.BasicAuth(); !ok || user != FakeUsername || pass != FakeToken {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/wiki/rest/api")
	switch {
	case r.Method == http.MethodGet && path == "/space/"+FakeSpace:
		writeJSON(w, map[string]any{
			"key":      FakeSpace,
			"homepage": map[string]any{"id": FakeHomeID},
		})
	case strings.HasPrefix(path, "/space/"):
		writeError(w, http.StatusNotFound, "no space with key "+strings.TrimPrefix(path, "/space/"))
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/child/page"):
		f.children(w, r, strings.TrimSuffix(strings.TrimPrefix(path, "/content/"), "/child/page"))
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/content/"):
		f.get(w, strings.TrimPrefix(path, "/content/"))
	case r.Method == http.MethodPost && path == "/content":
		f.create(w, r)
	case r.Method == http.MethodPut && strings.HasPrefix(path, "/content/"):
		f.update(w, r, strings.TrimPrefix(path, "/content/"))
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (f *FakeConfluence) view(p *FakePage) map[string]any {
	v := map[string]any{
		"id":      p.ID,
		"type":    "page",
		"title":   p.Title,
		"version": map[string]any{"number": p.Version},
		"body":    map[string]any{"storage": map[string]any{"value": p.Body, "representation": "storage"}},
		"_links":  map[string]any{"webui": "/spaces/" + FakeSpace + "/pages/" + p.ID, "base": f.URL},
	}
	if p.ParentID != "" {
		v["ancestors"] = []map[string]any{{"id": p.ParentID}}
	}
	return v
}

func (f *FakeConfluence) get(w http.ResponseWriter, id string) {
	p, ok := f.pages[id]
	if !ok {
		writeError(w, http.StatusNotFound, "no content with id "+id)
		return
	}
	writeJSON(w, f.view(p))
}

func (f *FakeConfluence) children(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := f.pages[id]; !ok {
		writeError(w, http.StatusNotFound, "no content with id "+id)
		return
	}
	var kids []*FakePage
	for _, p := range f.pages {
		if p.ParentID == id {
			kids = append(kids, p)
		}
	}
	sort.Slice(kids, func(i, j int) bool { return kids[i].ID < kids[j].ID })

	start, _ := strconv.Atoi(r.URL.Query().Get("start"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 25
	}
	if start > len(kids) {
		start = len(kids)
	}
	end := start + limit
	if end > len(kids) {
		end = len(kids)
	}

	results := make([]map[string]any, 0, end-start)
	for _, p := range kids[start:end] {
		results = append(results, f.view(p))
	}
	links := map[string]any{}
	if end < len(kids) {
		links["next"] = fmt.Sprintf("/rest/api/content/%s/child/page?start=%d&limit=%d", id, end, limit)
	}
	writeJSON(w, map[string]any{"results": results, "size": len(results), "limit": limit, "_links": links})
}

type fakeWrite struct {
	Title     string `json:"title"`
	Ancestors []struct {
		ID string `json:"id"`
	} `json:"ancestors"`
	Version struct {
		Number int `json:"number"`
	} `json:"version"`
	Body struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
}

func (f *FakeConfluence) create(w http.ResponseWriter, r *http.Request) {
	var req fakeWrite
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if status := f.FailStatus["POST "+req.Title]; status != 0 {
		writeError(w, status, "create refused")
		return
	}
	parentID := ""
	if len(req.Ancestors) > 0 {
		parentID = req.Ancestors[len(req.Ancestors)-1].ID
	}
	if _, ok := f.pages[parentID]; !ok {
		writeError(w, http.StatusNotFound, "no parent with id "+parentID)
		return
	}
	for _, p := range f.pages {
		if p.ParentID == parentID && p.Title == req.Title {
			writeError(w, http.StatusBadRequest, "a page with this title already exists")
			return
		}
	}
	f.creates++
	p := f.add(parentID, req.Title, req.Body.Storage.Value)
	writeJSON(w, f.view(p))
}

func (f *FakeConfluence) update(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := f.pages[id]
	if !ok {
		writeError(w, http.StatusNotFound, "no content with id "+id)
		return
	}
	if status := f.FailStatus["PUT "+id]; status != 0 {
		writeError(w, status, "update refused")
		return
	}
	var req fakeWrite
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Version.Number != p.Version+1 {
		writeError(w, http.StatusConflict, fmt.Sprintf("version %d does not follow %d", req.Version.Number, p.Version))
		return
	}
	f.updates++
	p.Version = req.Version.Number
	p.Body = req.Body.Storage.Value
	writeJSON(w, f.view(p))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"statusCode": status, "message": message})
}
