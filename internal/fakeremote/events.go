package fakeremote

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/vaultengine/vaultengine/internal/remoteapi"
)

// eventKind mirrors internal/eventstream.MessageKind's wire values — kept
// as untyped string constants here rather than importing that package, to
// avoid a fakeremote -> eventstream -> (whatever eventstream imports back)
// cycle; the wire format is the only thing the two packages need to agree
// on.
const (
	eventKindCreated = "file-created"
	eventKindRemoved = "file-removed"
	eventKindCopied  = "file-copied"
	eventKindMoved   = "file-moved"
)

// wireMessage is the JSON shape pushed to every connected listener,
// matching internal/eventstream.Message field-for-field.
type wireMessage struct {
	Kind    string               `json:"type"`
	MountID string               `json:"mount_id"`
	Path    string               `json:"path"`
	OldPath string               `json:"old_path,omitempty"`
	NewPath string               `json:"new_path,omitempty"`
	File    *remoteapi.FileEntry `json:"file,omitempty"`
}

// eventBroadcaster fans out file-tree changes to every connected
// WebSocket listener, mirroring fake_remote::eventstream::Listeners'
// role in the Rust original: AppState holds one broadcaster shared by
// every HTTP handler, handlers push to it after mutating state, and the
// /events route subscribes new connections to it.
type eventBroadcaster struct {
	mu        sync.Mutex
	listeners map[chan wireMessage]struct{}
}

func newEventBroadcaster() *eventBroadcaster {
	return &eventBroadcaster{listeners: make(map[chan wireMessage]struct{})}
}

func (b *eventBroadcaster) subscribe() chan wireMessage {
	ch := make(chan wireMessage, 16)

	b.mu.Lock()
	b.listeners[ch] = struct{}{}
	b.mu.Unlock()

	return ch
}

func (b *eventBroadcaster) unsubscribe(ch chan wireMessage) {
	b.mu.Lock()
	delete(b.listeners, ch)
	b.mu.Unlock()
	close(ch)
}

func (b *eventBroadcaster) broadcast(mountID, kind, path, oldPath, newPath string, file *remoteapi.FileEntry) {
	msg := wireMessage{Kind: kind, MountID: mountID, Path: path, OldPath: oldPath, NewPath: newPath, File: file}

	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.listeners {
		select {
		case ch <- msg:
		default: // a slow test listener drops rather than blocking the mutation path
		}
	}
}

func (b *eventBroadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.listeners {
		delete(b.listeners, ch)
		close(ch)
	}
}

// handleEvents upgrades to a WebSocket and streams every subsequent file
// change as JSON, exactly the shape internal/eventstream.Client.apply
// expects to decode.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	ch := s.events.subscribe()
	defer s.events.unsubscribe(ch)

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}

			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}

// PushEvent lets a test directly inject an event without driving it
// through an HTTP mutation, e.g. to simulate another client's change.
func (s *Server) PushEvent(mountID, kind, path string, file *remoteapi.FileEntry) {
	s.events.broadcast(mountID, kind, path, "", "", file)
}
