// Package eventstream keeps the in-memory mirrors (remote files, repo
// files) live by consuming a server push feed over a WebSocket and folding
// each message back into the Store via vaultcore's mutation functions.
// Reconnect/backoff is modeled on internal/graph/client.go's HTTP retry
// loop, generalized to a long-lived connection instead of one request.
package eventstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/vaultengine/vaultengine/internal/remoteapi"
	"github.com/vaultengine/vaultengine/internal/vaultcore"
	"github.com/vaultengine/vaultengine/internal/vaultid"
)

const (
	baseBackoff    = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
	backoffFactor  = 1.7
	jitterFraction = 0.25
)

// MessageKind is the "type" discriminator of one push event.
type MessageKind string

const (
	KindFileCreated      MessageKind = "file-created"
	KindFileRemoved      MessageKind = "file-removed"
	KindFileCopied       MessageKind = "file-copied"
	KindFileMoved        MessageKind = "file-moved"
	KindFileTagsUpdated  MessageKind = "file-tags-updated"
)

// Message is one push event as the server serializes it over the socket.
type Message struct {
	Kind     MessageKind          `json:"type"`
	MountID  string               `json:"mount_id"`
	Path     string               `json:"path"`
	OldPath  string               `json:"old_path,omitempty"`
	NewPath  string               `json:"new_path,omitempty"`
	File     *remoteapi.FileEntry `json:"file,omitempty"`
}

// Stream is the WebSocket transport seam; production code dials a real
// server, tests substitute a fake.
type Stream interface {
	Connect(ctx context.Context, url string) (Conn, error)
}

// Conn reads framed push messages off one connected WebSocket.
type Conn interface {
	Read(ctx context.Context) (Message, error)
	Close() error
}

// WebsocketStream dials a real server with coder/websocket.
type WebsocketStream struct{}

func (WebsocketStream) Connect(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("eventstream: dialing %s: %w", url, err)
	}

	return &websocketConn{c: c}, nil
}

type websocketConn struct {
	c *websocket.Conn
}

func (w *websocketConn) Read(ctx context.Context) (Message, error) {
	_, data, err := w.c.Read(ctx)
	if err != nil {
		return Message{}, err
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("eventstream: decoding message: %w", err)
	}

	return msg, nil
}

func (w *websocketConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "closing")
}

// Client keeps one reconnecting event-stream session to its url alive,
// folding every received Message (for any mount) into the Store.
type Client struct {
	store  *vaultcore.Store
	stream Stream
	logger *slog.Logger
	url    string
}

// NewClient builds an eventstream Client against url, reconnecting with
// backoff whenever the connection drops.
func NewClient(store *vaultcore.Store, stream Stream, url string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{store: store, stream: stream, logger: logger, url: url}
}

// Run connects and processes messages until ctx is canceled, reconnecting
// with exponential backoff (±25% jitter, capped at maxBackoff) on every
// disconnect.
func (c *Client) Run(ctx context.Context) {
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.stream.Connect(ctx, c.url)
		if err != nil {
			c.logger.Warn("eventstream connect failed", "error", err, "attempt", attempt)

			if !sleepBackoff(ctx, attempt) {
				return
			}

			attempt++

			continue
		}

		attempt = 0

		c.readLoop(ctx, conn)

		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}

		if !sleepBackoff(ctx, attempt) {
			return
		}

		attempt++
	}
}

func (c *Client) readLoop(ctx context.Context, conn Conn) {
	for {
		msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("eventstream read failed", "error", err)
			}

			return
		}

		c.apply(msg)
	}
}

// apply folds one Message into the Store, inside a single Mutate call so
// every downstream mutation listener (RebuildRepoFilesFromRemote, Details'
// move-following hook) observes it atomically.
func (c *Client) apply(msg Message) {
	mountID := vaultid.MountId(msg.MountID)

	vaultcore.Mutate(c.store, func(state *vaultcore.State, notify vaultcore.Notify, mutationState *vaultcore.MutationState, mutationNotify vaultcore.MutationNotify) any {
		switch msg.Kind {
		case KindFileCreated:
			if msg.File != nil {
				vaultcore.FileCreated(state, notify, mutationState, mutationNotify, mountID, vaultid.RemotePath(msg.Path), *msg.File)
			}
		case KindFileRemoved:
			vaultcore.FileRemoved(state, notify, mutationState, mutationNotify, mountID, vaultid.RemotePath(msg.Path))
		case KindFileCopied:
			if msg.File != nil {
				vaultcore.FileCopied(state, notify, mutationState, mutationNotify, mountID, vaultid.RemotePath(msg.NewPath), *msg.File)
			}
		case KindFileMoved:
			if msg.File != nil {
				vaultcore.FileMoved(state, notify, mutationState, mutationNotify, mountID, vaultid.RemotePath(msg.OldPath), vaultid.RemotePath(msg.NewPath), *msg.File)
			}
		case KindFileTagsUpdated:
			if msg.File != nil {
				vaultcore.FileTagsUpdated(state, notify, mutationState, mutationNotify, mountID, vaultid.RemotePath(msg.Path), *msg.File)
			}
		default:
			c.logger.Warn("eventstream: unknown message kind", "kind", msg.Kind)
		}

		return nil
	})
}

func sleepBackoff(ctx context.Context, attempt int) bool {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	timer := time.NewTimer(time.Duration(backoff))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// MountSubscription is a mutex-guarded refcounted handle onto one underlying
// (mount, path) subscription, so Browsers and Details sessions watching
// the same location share a single upstream subscribe call instead of
// each opening their own.
type MountSubscription struct {
	mu       sync.Mutex
	refs     map[string]int
	subscribe   func(mountID vaultid.MountId, path vaultid.RemotePath) error
	unsubscribe func(mountID vaultid.MountId, path vaultid.RemotePath) error
}

// NewMountSubscription wires the ref-counted handle to the actual
// subscribe/unsubscribe calls (e.g. sending a "subscribe" control message
// over the WebSocket).
func NewMountSubscription(subscribe, unsubscribe func(mountID vaultid.MountId, path vaultid.RemotePath) error) *MountSubscription {
	return &MountSubscription{
		refs:        make(map[string]int),
		subscribe:   subscribe,
		unsubscribe: unsubscribe,
	}
}

func key(mountID vaultid.MountId, path vaultid.RemotePath) string {
	return string(mountID) + "\x00" + string(path)
}

// Acquire increments the refcount for (mountID, path), issuing the
// upstream subscribe call only on the first acquire.
func (m *MountSubscription) Acquire(mountID vaultid.MountId, path vaultid.RemotePath) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(mountID, path)

	if m.refs[k] > 0 {
		m.refs[k]++

		return nil
	}

	if m.subscribe != nil {
		if err := m.subscribe(mountID, path); err != nil {
			return err
		}
	}

	m.refs[k] = 1

	return nil
}

// Release decrements the refcount for (mountID, path), issuing the
// upstream unsubscribe call once it reaches zero.
func (m *MountSubscription) Release(mountID vaultid.MountId, path vaultid.RemotePath) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(mountID, path)

	if m.refs[k] == 0 {
		return nil
	}

	m.refs[k]--

	if m.refs[k] > 0 {
		return nil
	}

	delete(m.refs, k)

	if m.unsubscribe != nil {
		return m.unsubscribe(mountID, path)
	}

	return nil
}
