package executor

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aidanlsb/wikimigrate/internal/pagetree"
	"github.com/aidanlsb/wikimigrate/internal/remote"
)

const homeID = "home"

// fakeRemote is an in-memory wiki space.
type fakeRemote struct {
	match    pagetree.TitleMatch
	pages    map[string]*remote.Page
	children map[string][]string
	nextID   int

	creates int
	updates int
	finds   int

	failCreate   map[string]error // permanent failures by title
	transient    map[string]int   // transient create failures left, by title
	lostResponse map[string]bool  // create succeeds but reports a transient error
	failUpdate   map[string]error
}

func newFakeRemote(match pagetree.TitleMatch) *fakeRemote {
	f := &fakeRemote{
		match:        match,
		pages:        make(map[string]*remote.Page),
		children:     make(map[string][]string),
		failCreate:   make(map[string]error),
		transient:    make(map[string]int),
		lostResponse: make(map[string]bool),
		failUpdate:   make(map[string]error),
	}
	f.pages[homeID] = &remote.Page{ID: homeID, Title: "Home", URL: "https://wiki.test/pages/home", Version: 1}
	return f
}

func (f *fakeRemote) add(parentID, title, body string) *remote.Page {
	f.nextID++
	id := fmt.Sprintf("p%d", f.nextID)
	p := &remote.Page{
		ID:       id,
		Title:    title,
		URL:      "https://wiki.test/pages/" + id,
		Version:  1,
		ParentID: parentID,
		Body:     body,
	}
	f.pages[id] = p
	f.children[parentID] = append(f.children[parentID], id)
	return p
}

func (f *fakeRemote) child(parentID, title string) *remote.Page {
	for _, id := range f.children[parentID] {
		if p := f.pages[id]; f.match.Equal(p.Title, title) {
			return p
		}
	}
	return nil
}

func copyPage(p *remote.Page) *remote.Page {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func statusError(method string, status int) error {
	return remote.FromStatus(&remote.StatusError{Method: method, Path: "/rest/api/content", Status: status})
}

func (f *fakeRemote) HomePage(context.Context) (*remote.Page, error) {
	return copyPage(f.pages[homeID]), nil
}

func (f *fakeRemote) Page(_ context.Context, id string) (*remote.Page, error) {
	p, ok := f.pages[id]
	if !ok {
		return nil, statusError(http.MethodGet, http.StatusNotFound)
	}
	return copyPage(p), nil
}

func (f *fakeRemote) FindChild(_ context.Context, parentID, title string) (*remote.Page, error) {
	f.finds++
	return copyPage(f.child(parentID, title)), nil
}

func (f *fakeRemote) CreatePage(_ context.Context, parentID, title, body string) (*remote.Page, error) {
	if err := f.failCreate[title]; err != nil {
		return nil, err
	}
	if f.transient[title] > 0 {
		f.transient[title]--
		return nil, statusError(http.MethodPost, http.StatusServiceUnavailable)
	}
	if f.child(parentID, title) != nil {
		return nil, statusError(http.MethodPost, http.StatusBadRequest)
	}
	f.creates++
	p := f.add(parentID, title, body)
	if f.lostResponse[title] {
		delete(f.lostResponse, title)
		return nil, statusError(http.MethodPost, http.StatusGatewayTimeout)
	}
	return copyPage(p), nil
}

func (f *fakeRemote) UpdatePage(_ context.Context, page *remote.Page, body string) (*remote.Page, error) {
	if err := f.failUpdate[page.Title]; err != nil {
		return nil, err
	}
	p, ok := f.pages[page.ID]
	if !ok {
		return nil, statusError(http.MethodPut, http.StatusNotFound)
	}
	if page.Version != p.Version {
		return nil, statusError(http.MethodPut, http.StatusConflict)
	}
	f.updates++
	p.Version++
	p.Body = body
	return copyPage(p), nil
}

// bodyOf returns the body of the page titled title anywhere in the space.
func (f *fakeRemote) bodyOf(title string) string {
	for _, p := range f.pages {
		if p.Title == title {
			return p.Body
		}
	}
	return ""
}

func (f *fakeRemote) countTitled(title string) int {
	n := 0
	for _, p := range f.pages {
		if f.match.Equal(p.Title, title) {
			n++
		}
	}
	return n
}
