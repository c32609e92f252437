package vaultcore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vaultengine/vaultengine/internal/remoteapi"
	"github.com/vaultengine/vaultengine/internal/vaultcipher"
	"github.com/vaultengine/vaultengine/internal/vaulterr"
	"github.com/vaultengine/vaultengine/internal/vaultid"
)

// ConflictPolicy controls how an upload resolves a name collision against
// an existing RepoFile already present in the target folder.
type ConflictPolicy int

const (
	// ConflictAutoRename appends " (n)" to the requested name until one is
	// free. The default, and the only policy that always succeeds.
	ConflictAutoRename ConflictPolicy = iota
	// ConflictOverwrite uploads under the requested name regardless of a
	// collision, replacing whatever RemoteFile is there.
	ConflictOverwrite
	// ConflictError refuses the upload outright on a collision.
	ConflictError
)

// TransferSink receives the decrypted bytes of a completed download.
type TransferSink func(ctx context.Context) (io.WriteCloser, error)

// EnqueueUpload queues the upload of a local plaintext source (content) as
// name under parentID inside repoID. The runner resolves the actual unique
// name and performs encryption when the transfer is run, per policy.
func EnqueueUpload(store *Store, repoID vaultid.RepoId, mountID vaultid.MountId, parentID vaultid.RepoFileId, name string, size int64, policy ConflictPolicy, content TransferContent) uint32 {
	id := store.GetNextID()

	Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		t := Transfer{
			ID:       id,
			Kind:     TransferUpload,
			RepoID:   repoID,
			MountID:  mountID,
			ParentID: parentID,
			Name:     name,
			Size:     size,
			Policy:   policy,
			Content:  content,
			Status:   TransferWaiting,
		}

		state.Transfers.Transfers[id] = t
		state.Transfers.Order = append(state.Transfers.Order, id)

		notify(EventTransfers)

		return nil
	})

	return id
}

// EnqueueDownload queues the download of repoFileID inside repoID, writing
// decrypted bytes to whatever sink opens.
func EnqueueDownload(store *Store, repoID vaultid.RepoId, mountID vaultid.MountId, repoFileID vaultid.RepoFileId, name string, size int64, sink TransferSink) uint32 {
	id := store.GetNextID()

	Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		t := Transfer{
			ID:         id,
			Kind:       TransferDownload,
			RepoID:     repoID,
			MountID:    mountID,
			RepoFileID: repoFileID,
			Name:       name,
			Size:       size,
			Sink:       sink,
			Status:     TransferWaiting,
		}

		state.Transfers.Transfers[id] = t
		state.Transfers.Order = append(state.Transfers.Order, id)

		notify(EventTransfers)

		return nil
	})

	return id
}

// ResolveUploadName resolves name against the RepoFile children currently
// known under parentID inside repoID, appending " (n)" for a collision
// unless policy is Overwrite (pass the collision through unchanged) or
// Error (refuse outright), per the upload conflict policy.
func ResolveUploadName(store *Store, repoID vaultid.RepoId, parentID vaultid.RepoFileId, name string, policy ConflictPolicy) (string, error) {
	if parentID == "" {
		parentID = GetRepoFileID(repoID, "/")
	}

	taken := WithR(store, func(state *State) map[string]bool {
		out := make(map[string]bool)

		for _, id := range state.RepoFiles.Children[parentID] {
			f, ok := state.RepoFiles.Files[id]
			if !ok || f.RepoID != repoID || f.Name == nil {
				continue
			}

			out[vaultid.Fold(string(*f.Name))] = true
		}

		return out
	})

	if !taken[vaultid.Fold(name)] {
		return name, nil
	}

	switch policy {
	case ConflictOverwrite:
		return name, nil
	case ConflictError:
		return "", vaulterr.New(vaulterr.KindAPIAlreadyExists, "a file named %q already exists", name)
	}

	base, ext := name, ""
	if idx := strings.LastIndex(name, "."); idx > 0 {
		base, ext = name[:idx], name[idx:]
	}

	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if !taken[vaultid.Fold(candidate)] {
			return candidate, nil
		}
	}
}

// NewRemoteTransferRunner builds a TransferRunner that drives uploads and
// downloads against client, resolving names from store's current RepoFiles
// overlay and streaming bytes through each repo's cipher. cache may be nil,
// disabling partial-file resume tracking.
func NewRemoteTransferRunner(client *remoteapi.Client, store *Store, cache *PartialCache) TransferRunner {
	return func(ctx context.Context, t Transfer, onProgress func(done int64)) error {
		switch t.Kind {
		case TransferUpload:
			return runUpload(ctx, client, store, cache, t, onProgress)
		case TransferDownload:
			return runDownload(ctx, client, store, cache, t, onProgress)
		default:
			return vaulterr.New(vaulterr.KindInvalidState, "unknown transfer kind")
		}
	}
}

type repoCipherResult struct {
	repo   Repo
	cipher vaultcipher.Cipher
	err    error
}

func repoCipherFor(store *Store, repoID vaultid.RepoId) (Repo, vaultcipher.Cipher, error) {
	res := WithR(store, func(state *State) repoCipherResult {
		repo, ok := state.Repos.Repos[repoID]
		if !ok {
			return repoCipherResult{err: vaulterr.Wrap(vaulterr.KindAPINotFound, vaulterr.ErrRepoNotFound, "repo %s not found", repoID)}
		}

		if !repo.State.Unlocked {
			return repoCipherResult{err: vaulterr.ErrRepoLocked}
		}

		return repoCipherResult{repo: repo, cipher: repo.State.Cipher}
	})

	return res.repo, res.cipher, res.err
}

// repoRelativeEncryptedPath returns the repo-relative encrypted path of an
// already-known RepoFileId, or "/" for the repo root (parentID == "").
func repoRelativeEncryptedPath(store *Store, parentID vaultid.RepoFileId) vaultid.EncryptedPath {
	if parentID == "" {
		return "/"
	}

	return WithR(store, func(state *State) vaultid.EncryptedPath {
		f, ok := state.RepoFiles.Files[parentID]
		if !ok {
			return "/"
		}

		return f.EncryptedPath
	})
}

// absoluteRemotePath rejoins a repo-relative encrypted path onto the repo's
// tree_path, the inverse of relEncryptedPath.
func absoluteRemotePath(repo Repo, rel vaultid.EncryptedPath) vaultid.RemotePath {
	if rel == "/" || rel == "" {
		return repo.TreePath
	}

	if repo.TreePath == vaultid.Root {
		return vaultid.RemotePath(string(rel))
	}

	return vaultid.RemotePath(string(repo.TreePath) + string(rel))
}

func runUpload(ctx context.Context, client *remoteapi.Client, store *Store, cache *PartialCache, t Transfer, onProgress func(int64)) error {
	repo, cipher, err := repoCipherFor(store, t.RepoID)
	if err != nil {
		return err
	}

	name, err := ResolveUploadName(store, t.RepoID, t.ParentID, t.Name, t.Policy)
	if err != nil {
		return err
	}

	encName, err := cipher.EncryptName(name)
	if err != nil {
		return vaulterr.Wrap(vaulterr.KindInvalidName, err, "encrypting upload name %q", name)
	}

	parentRemote := absoluteRemotePath(repo, repoRelativeEncryptedPath(store, t.ParentID))

	var src io.ReadCloser
	if t.Content != nil {
		r, err := t.Content(ctx)
		if err != nil {
			return vaulterr.Wrap(vaulterr.KindTransport, err, "opening upload source")
		}

		src = r
		defer src.Close()
	} else {
		src = io.NopCloser(strings.NewReader(""))
	}

	encReader, err := cipher.EncryptingReader(src)
	if err != nil {
		return vaulterr.Wrap(vaulterr.KindInvalidState, err, "building encrypting reader")
	}

	// Stage ciphertext on disk under the partial cache, when one is
	// configured, so a crash mid-upload leaves a `.partial` file the next
	// run's NewPartialCache scan can report as resumable instead of losing
	// the bytes staged so far.
	body := io.Reader(encReader)
	cleanup := func() {}

	if cache != nil {
		path := cache.PartialPath(fmt.Sprintf("%s-%s", t.RepoID, encName))

		staged, err := stagePartial(path, encReader)
		if err != nil {
			return vaulterr.Wrap(vaulterr.KindTransport, err, "staging upload partial")
		}

		body = staged
		cleanup = func() {
			staged.Close()
			os.Remove(path)
		}
	}

	defer cleanup()

	counting := &progressReader{r: body, onRead: onProgress}

	entry, err := client.Upload(ctx, string(t.MountID), string(parentRemote), encName, counting)
	if err != nil {
		return mapRemoteError(err)
	}

	Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		FileCreated(state, notify, mutationState, mutationNotify, t.MountID, vaultid.JoinPathName(parentRemote, vaultid.RemoteName(encName)), entry)

		return nil
	})

	return nil
}

// stagePartial copies r to a local `.partial` file and returns a reader
// over that file, so the bytes handed to the HTTP client are read back from
// disk rather than held only in the in-flight encrypting pipe — giving a
// crash recovery something real to resume from.
func stagePartial(path string, r io.Reader) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()

		return nil, err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()

		return nil, err
	}

	return f, nil
}

func runDownload(ctx context.Context, client *remoteapi.Client, store *Store, cache *PartialCache, t Transfer, onProgress func(int64)) error {
	repo, cipher, err := repoCipherFor(store, t.RepoID)
	if err != nil {
		return err
	}

	rf := WithR(store, func(state *State) RepoFile {
		return state.RepoFiles.Files[t.RepoFileID]
	})

	remotePath := absoluteRemotePath(repo, rf.EncryptedPath)

	body, err := client.Download(ctx, string(t.MountID), string(remotePath))
	if err != nil {
		return mapRemoteError(err)
	}
	defer body.Close()

	decReader, err := cipher.DecryptingReader(body)
	if err != nil {
		return vaulterr.Wrap(vaulterr.KindInvalidState, err, "building decrypting reader")
	}

	var sink io.WriteCloser
	if t.Sink != nil {
		sink, err = t.Sink(ctx)
		if err != nil {
			return vaulterr.Wrap(vaulterr.KindTransport, err, "opening download sink")
		}

		defer sink.Close()
	} else {
		sink = nopWriteCloser{io.Discard}
	}

	counting := &progressWriter{w: sink, onWrite: onProgress}

	if _, err := io.Copy(counting, decReader); err != nil {
		return vaulterr.Wrap(vaulterr.KindTransport, err, "streaming download")
	}

	return nil
}

// mapRemoteError translates remoteapi's HTTP-status error taxonomy into
// vaulterr.Error{Kind}, so the engine's retry classification (isRetryable)
// can tell a transient transport failure from a terminal 4xx.
func mapRemoteError(err error) error {
	var apiErr *remoteapi.Error
	if !errors.As(err, &apiErr) {
		return vaulterr.Wrap(vaulterr.KindTransport, err, "transfer request failed")
	}

	switch {
	case errors.Is(apiErr, remoteapi.ErrNotFound):
		return vaulterr.Wrap(vaulterr.KindAPINotFound, apiErr, "%s", apiErr.Message)
	case errors.Is(apiErr, remoteapi.ErrConflict):
		return vaulterr.Wrap(vaulterr.KindAPIAlreadyExists, apiErr, "%s", apiErr.Message)
	case errors.Is(apiErr, remoteapi.ErrBadRequest):
		return vaulterr.Wrap(vaulterr.KindInvalidName, apiErr, "%s", apiErr.Message)
	default:
		return vaulterr.Wrap(vaulterr.KindTransport, apiErr, "%s", apiErr.Message)
	}
}

type progressReader struct {
	r      io.Reader
	onRead func(int64)
	done   int64
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.done += int64(n)
		p.onRead(p.done)
	}

	return n, err
}

type progressWriter struct {
	w       io.Writer
	onWrite func(int64)
	done    int64
}

func (p *progressWriter) Write(buf []byte) (int, error) {
	n, err := p.w.Write(buf)
	if n > 0 {
		p.done += int64(n)
		p.onWrite(p.done)
	}

	return n, err
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
