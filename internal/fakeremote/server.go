// Package fakeremote is an in-process stand-in for the vault host's remote
// API, used by tests in place of a live server. Its shape — a server
// wrapping shared app state (a file tree, a repo list, a set of connected
// event-stream listeners) behind an HTTP router — follows
// fake_remote/server.rs's AppState{state, files_service,
// eventstream_listeners}, reimplemented with net/http and httptest instead
// of axum/rustls since a TLS test double brings nothing a plain loopback
// listener doesn't already give Go's httptest package for free.
package fakeremote

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaultengine/vaultengine/internal/remoteapi"
)

// node is one file or directory in a mount's in-memory tree.
type node struct {
	entry    remoteapi.FileEntry
	path     string // full path, "/" separated, "/" for root
	content  []byte
	children map[string]*node // child name -> node, directories only
}

func newDir(path, name string, modified int64) *node {
	return &node{
		entry:    remoteapi.FileEntry{Name: name, Type: "dir", Modified: modified},
		path:     path,
		children: make(map[string]*node),
	}
}

// mountState is one mount's file tree plus its descriptive metadata, as
// returned by GET /mounts.
type mountState struct {
	mu   sync.Mutex
	root *node
	dto  remoteapi.MountDTO
}

// Server is a fake vault host: an HTTP API plus a broadcast event stream,
// enough of both for vaultcore's remote-facing code and internal/eventstream
// to exercise against in tests without a live server.
type Server struct {
	httpServer *httptest.Server

	mu      sync.Mutex
	mounts  map[string]*mountState
	repos   map[string]remoteapi.RepoDTO
	events  *eventBroadcaster
	nowFunc func() int64
}

// New starts a fake remote listening on a loopback port and returns it
// ready to use. Call Close when done.
func New() *Server {
	s := &Server{
		mounts:  make(map[string]*mountState),
		repos:   make(map[string]remoteapi.RepoDTO),
		events:  newEventBroadcaster(),
		nowFunc: func() int64 { return time.Now().Unix() },
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = httptest.NewServer(mux)

	return s
}

// URL returns the base URL a remoteapi.Client should be pointed at.
func (s *Server) URL() string {
	return s.httpServer.URL
}

// Close shuts down the fake remote and disconnects every event-stream
// listener.
func (s *Server) Close() {
	s.events.closeAll()
	s.httpServer.Close()
}

// AddMount registers a mount with an empty root directory, as if a user
// had connected a storage origin with nothing in it yet. name and origin
// populate the GET /mounts listing ("hosted", "onedrive", "dropbox", ...);
// the mount starts online and, if it is the first one registered, primary.
func (s *Server) AddMount(mountID, name, origin string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mounts[mountID] = &mountState{
		root: newDir("/", "", s.nowFunc()),
		dto: remoteapi.MountDTO{
			ID:        mountID,
			Name:      name,
			Type:      "device",
			Origin:    origin,
			Online:    true,
			IsPrimary: len(s.mounts) == 0,
		},
	}
}

// SetMountOnline flips a mount's online flag, as a test double for a
// provider connectivity change.
func (s *Server) SetMountOnline(mountID string, online bool) {
	m := s.mount(mountID)
	m.mu.Lock()
	m.dto.Online = online
	m.mu.Unlock()
}

// mount returns the mount's state, creating an empty online one on first
// use so tests don't have to call AddMount for every mount id they
// reference.
func (s *Server) mount(mountID string) *mountState {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.mounts[mountID]
	if !ok {
		m = &mountState{
			root: newDir("/", "", s.nowFunc()),
			dto:  remoteapi.MountDTO{ID: mountID, Name: mountID, Type: "device", Origin: "hosted", Online: true, IsPrimary: len(s.mounts) == 0},
		}
		s.mounts[mountID] = m
	}

	return m
}

func (s *Server) handleListMounts(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	mounts := make([]remoteapi.MountDTO, 0, len(s.mounts))

	for _, m := range s.mounts {
		m.mu.Lock()
		mounts = append(mounts, m.dto)
		m.mu.Unlock()
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, remoteapi.MountsResponse{Mounts: mounts})
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /mounts", s.handleListMounts)

	mux.HandleFunc("GET /vault-repos", s.handleListRepos)
	mux.HandleFunc("POST /vault-repos", s.handleCreateRepo)
	mux.HandleFunc("DELETE /vault-repos/{id}", s.handleDeleteRepo)

	mux.HandleFunc("GET /mounts/{mountID}/bundle", s.handleBundle)
	mux.HandleFunc("GET /mounts/{mountID}/files/info", s.handleFileInfo)
	mux.HandleFunc("POST /mounts/{mountID}/files/new-folder", s.handleNewFolder)
	mux.HandleFunc("POST /mounts/{mountID}/files/move", s.handleMove)
	mux.HandleFunc("POST /mounts/{mountID}/files/copy", s.handleCopy)
	mux.HandleFunc("POST /mounts/{mountID}/files/remove", s.handleRemove)
	mux.HandleFunc("GET /mounts/{mountID}/files/content", s.handleDownload)
	mux.HandleFunc("PUT /mounts/{mountID}/files/content", s.handleUpload)

	mux.HandleFunc("GET /events", s.handleEvents)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	http.Error(w, msg, status)
}

func queryPath(r *http.Request) string {
	p := r.URL.Query().Get("path")
	if p == "" {
		p = "/"
	}

	return p
}

// --- vault-repos ---

func (s *Server) handleListRepos(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repos := make([]remoteapi.RepoDTO, 0, len(s.repos))
	for _, r := range s.repos {
		repos = append(repos, r)
	}

	writeJSON(w, http.StatusOK, remoteapi.ReposResponse{Repos: repos})
}

func (s *Server) handleCreateRepo(w http.ResponseWriter, r *http.Request) {
	var body remoteapi.VaultRepoCreate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	dto := remoteapi.RepoDTO{
		ID:                         uuid.NewString(),
		Name:                       lastSegment(body.Path),
		MountID:                    body.MountID,
		Path:                       body.Path,
		Salt:                       body.Salt,
		PasswordValidator:          body.PasswordValidator,
		PasswordValidatorEncrypted: body.PasswordValidatorEncrypted,
	}

	s.mu.Lock()
	s.repos[dto.ID] = dto
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, dto)
}

func (s *Server) handleDeleteRepo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	_, ok := s.repos[id]
	delete(s.repos, id)
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "repo not found")

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- file tree ---

func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	mountID := r.PathValue("mountID")
	path := queryPath(r)

	m := s.mount(mountID)
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.lookup(path)
	if n == nil {
		writeError(w, http.StatusNotFound, "path not found")

		return
	}

	bundle := remoteapi.Bundle{File: n.entry}

	if n.entry.Type == "dir" {
		for _, child := range n.children {
			bundle.Files = append(bundle.Files, child.entry)
		}
	}

	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	mountID := r.PathValue("mountID")
	path := queryPath(r)

	m := s.mount(mountID)
	m.mu.Lock()
	n := m.lookup(path)
	m.mu.Unlock()

	if n == nil {
		writeError(w, http.StatusNotFound, "path not found")

		return
	}

	writeJSON(w, http.StatusOK, n.entry)
}

func (s *Server) handleNewFolder(w http.ResponseWriter, r *http.Request) {
	mountID := r.PathValue("mountID")

	var body remoteapi.FilesNewFolder
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	m := s.mount(mountID)
	m.mu.Lock()
	parent := m.lookup(body.Path)

	if parent == nil || parent.entry.Type != "dir" {
		m.mu.Unlock()
		writeError(w, http.StatusNotFound, "parent not found")

		return
	}

	childPath := joinPath(body.Path, body.Name)
	child := newDir(childPath, body.Name, s.nowFunc())
	parent.children[body.Name] = child
	m.mu.Unlock()

	s.events.broadcast(mountID, eventKindCreated, childPath, "", "", &child.entry)

	writeJSON(w, http.StatusCreated, child.entry)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	mountID := r.PathValue("mountID")
	fromPath := queryPath(r)

	var body remoteapi.FilesMove
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	m := s.mount(mountID)
	m.mu.Lock()

	moved, err := m.move(fromPath, body.ToPath)
	m.mu.Unlock()

	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())

		return
	}

	s.events.broadcast(mountID, eventKindMoved, "", fromPath, body.ToPath, &moved.entry)

	writeJSON(w, http.StatusOK, moved.entry)
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	mountID := r.PathValue("mountID")
	fromPath := queryPath(r)

	var body remoteapi.FilesCopy
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	m := s.mount(mountID)
	m.mu.Lock()

	copied, err := m.copy(fromPath, body.ToPath, s.nowFunc())
	m.mu.Unlock()

	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())

		return
	}

	s.events.broadcast(mountID, eventKindCopied, body.ToPath, fromPath, body.ToPath, &copied.entry)

	writeJSON(w, http.StatusOK, copied.entry)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	mountID := r.PathValue("mountID")
	path := queryPath(r)

	m := s.mount(mountID)
	m.mu.Lock()
	err := m.remove(path)
	m.mu.Unlock()

	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())

		return
	}

	s.events.broadcast(mountID, eventKindRemoved, path, "", "", nil)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	mountID := r.PathValue("mountID")
	path := queryPath(r)

	m := s.mount(mountID)
	m.mu.Lock()
	n := m.lookup(path)
	m.mu.Unlock()

	if n == nil || n.entry.Type != "file" {
		writeError(w, http.StatusNotFound, "file not found")

		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(n.content)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	mountID := r.PathValue("mountID")
	path := queryPath(r)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	m := s.mount(mountID)
	m.mu.Lock()

	entry, uerr := m.upload(path, body, s.nowFunc())
	m.mu.Unlock()

	if uerr != nil {
		writeError(w, http.StatusNotFound, uerr.Error())

		return
	}

	s.events.broadcast(mountID, eventKindCreated, path, "", "", &entry)

	writeJSON(w, http.StatusOK, entry)
}

func lastSegment(path string) string {
	trimmed := strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(trimmed, "/")

	return trimmed[idx+1:]
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}

	return parent + "/" + name
}
