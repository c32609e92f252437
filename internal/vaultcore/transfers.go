package vaultcore

import (
	"context"
	"io"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vaultengine/vaultengine/internal/vaulterr"
	"github.com/vaultengine/vaultengine/internal/vaultid"
)

// TransferKind distinguishes an upload from a download.
type TransferKind int

const (
	TransferUpload TransferKind = iota
	TransferDownload
)

// TransferStatus is the Waiting->Processing->Done/Failed(->retry)/Aborted
// state machine driving one file transfer.
type TransferStatus int

const (
	TransferWaiting TransferStatus = iota
	TransferProcessing
	TransferDone
	TransferFailed
	TransferAborted
)

func (s TransferStatus) String() string {
	switch s {
	case TransferWaiting:
		return "waiting"
	case TransferProcessing:
		return "processing"
	case TransferDone:
		return "done"
	case TransferFailed:
		return "failed"
	case TransferAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Transfer is one upload or download in flight, tracked for progress and
// retry accounting.
type Transfer struct {
	ID         uint32
	Kind       TransferKind
	RepoID     vaultid.RepoId
	MountID    vaultid.MountId
	RemotePath vaultid.RemotePath
	Name       string
	Size       int64 // total bytes, 0 if unknown
	Done       int64 // bytes transferred so far
	Status     TransferStatus
	Attempt    int
	Error      error
	StartedAt  time.Time

	// Upload-only: the target folder and conflict policy ResolveUploadName
	// applies, and the plaintext source the runner reads from.
	ParentID vaultid.RepoFileId
	Policy   ConflictPolicy
	Content  TransferContent

	// Download-only: the RepoFile being fetched and where its decrypted
	// bytes are written.
	RepoFileID vaultid.RepoFileId
	Sink       TransferSink
}

// TransfersState holds every transfer created this session, in creation
// order; the aggregate accounting (percentage, throughput, ETA) is computed
// from it by Summary.
type TransfersState struct {
	Transfers map[uint32]Transfer
	Order     []uint32 // FIFO order transfers were created in
}

func newTransfersState() TransfersState {
	return TransfersState{
		Transfers: make(map[uint32]Transfer),
	}
}

// TransfersSummary is the aggregate progress projection a host UI renders as
// one progress bar across every in-flight transfer.
type TransfersSummary struct {
	TotalCount     int
	DoneCount      int
	FailedCount    int
	TotalBytes     int64
	DoneBytes      int64
	Percentage     float64
	BytesPerSec    float64
	ETA            time.Duration
	IsTransferring bool
}

// Summary computes the current aggregate progress over every transfer that
// has not been aborted.
func Summary(state *State) TransfersSummary {
	var s TransfersSummary

	var earliestStart time.Time

	for _, t := range state.Transfers.Transfers {
		if t.Status == TransferAborted {
			continue
		}

		s.TotalCount++
		s.TotalBytes += t.Size
		s.DoneBytes += t.Done

		switch t.Status {
		case TransferDone:
			s.DoneCount++
		case TransferFailed:
			s.FailedCount++
		case TransferProcessing:
			s.IsTransferring = true
		}

		if !t.StartedAt.IsZero() && (earliestStart.IsZero() || t.StartedAt.Before(earliestStart)) {
			earliestStart = t.StartedAt
		}
	}

	if s.TotalBytes > 0 {
		s.Percentage = 100 * float64(s.DoneBytes) / float64(s.TotalBytes)
	}

	if !earliestStart.IsZero() {
		elapsed := time.Since(earliestStart).Seconds()
		if elapsed > 0 {
			s.BytesPerSec = float64(s.DoneBytes) / elapsed
		}

		if s.BytesPerSec > 0 {
			remaining := s.TotalBytes - s.DoneBytes
			s.ETA = time.Duration(float64(remaining)/s.BytesPerSec) * time.Second
		}
	}

	return s
}

// TransferContent opens the plaintext source of an upload; the runner
// encrypts it while streaming. Downloads write to a TransferSink instead.
type TransferContent func(ctx context.Context) (io.ReadCloser, error)

// TransferRunner performs the actual network I/O for one transfer. Supplied
// by the caller so the engine's retry/accounting loop stays decoupled from
// remoteapi.
type TransferRunner func(ctx context.Context, t Transfer, onProgress func(done int64)) error

// TransfersEngine runs a bounded number of concurrent transfers with retry
// and exponential backoff, reporting progress back into the Store.
type TransfersEngine struct {
	store       *Store
	sem         *semaphore.Weighted
	runner      TransferRunner
	maxRetries  int
	backoffBase time.Duration
	backoffMax  time.Duration
}

// NewTransfersEngine creates an engine bounded to concurrency in-flight
// transfers.
func NewTransfersEngine(store *Store, concurrency int64, runner TransferRunner, maxRetries int, backoffBase, backoffMax time.Duration) *TransfersEngine {
	return &TransfersEngine{
		store:       store,
		sem:         semaphore.NewWeighted(concurrency),
		runner:      runner,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		backoffMax:  backoffMax,
	}
}

// Enqueue creates a new Transfer in the Waiting state and returns its id.
func Enqueue(store *Store, kind TransferKind, repoID vaultid.RepoId, mountID vaultid.MountId, path vaultid.RemotePath, name string, size int64) uint32 {
	id := store.GetNextID()

	Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		t := Transfer{
			ID:         id,
			Kind:       kind,
			RepoID:     repoID,
			MountID:    mountID,
			RemotePath: path,
			Name:       name,
			Size:       size,
			Status:     TransferWaiting,
		}

		state.Transfers.Transfers[id] = t
		state.Transfers.Order = append(state.Transfers.Order, id)

		notify(EventTransfers)

		return nil
	})

	return id
}

// Run drives transfer id to completion (possibly after several retries),
// acquiring a concurrency slot from the bounded semaphore for the duration
// of each attempt and abandoning further retries once ctx is canceled or
// the transfer is aborted.
func (e *TransfersEngine) Run(ctx context.Context, id uint32) {
	for attempt := 1; ; attempt++ {
		if e.transferAborted(id) {
			return
		}

		if err := e.sem.Acquire(ctx, 1); err != nil {
			e.fail(id, attempt, err)

			return
		}

		e.setProcessing(id, attempt)

		err := e.runner(ctx, e.snapshot(id), func(done int64) {
			e.reportProgress(id, done)
		})

		e.sem.Release(1)

		if err == nil {
			e.complete(id)

			return
		}

		if e.transferAborted(id) {
			return
		}

		e.fail(id, attempt, err)

		if !isRetryable(err) || attempt > e.maxRetries {
			return
		}

		delay := e.backoffBase * time.Duration(1<<uint(attempt-1))
		if delay > e.backoffMax {
			delay = e.backoffMax
		}

		timer := time.NewTimer(delay)

		select {
		case <-ctx.Done():
			timer.Stop()

			return
		case <-timer.C:
		}
	}
}

// isRetryable reports whether err warrants another attempt. Only transport
// failures are transient; remote 404/409 and local validation errors are
// terminal and must go straight to Failed.
func isRetryable(err error) bool {
	return vaulterr.Is(err, vaulterr.KindTransport)
}

// Abort marks transfer id as Aborted; in-flight I/O is expected to notice
// ctx cancellation and return promptly.
func Abort(store *Store, id uint32) {
	Mutate(store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		t, ok := state.Transfers.Transfers[id]
		if !ok {
			return nil
		}

		t.Status = TransferAborted
		state.Transfers.Transfers[id] = t

		notify(EventTransfers)

		return nil
	})
}

func (e *TransfersEngine) snapshot(id uint32) Transfer {
	return WithR(e.store, func(state *State) Transfer {
		return state.Transfers.Transfers[id]
	})
}

func (e *TransfersEngine) transferAborted(id uint32) bool {
	return WithR(e.store, func(state *State) bool {
		t, ok := state.Transfers.Transfers[id]

		return ok && t.Status == TransferAborted
	})
}

func (e *TransfersEngine) setProcessing(id uint32, attempt int) {
	Mutate(e.store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		t, ok := state.Transfers.Transfers[id]
		if !ok {
			return nil
		}

		t.Status = TransferProcessing
		t.Attempt = attempt

		if t.StartedAt.IsZero() {
			t.StartedAt = startedAtFor(attempt)
		}

		t.Error = nil
		state.Transfers.Transfers[id] = t

		notify(EventTransfers)

		return nil
	})
}

func startedAtFor(attempt int) time.Time {
	return time.Now()
}

func (e *TransfersEngine) reportProgress(id uint32, done int64) {
	Mutate(e.store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		t, ok := state.Transfers.Transfers[id]
		if !ok {
			return nil
		}

		t.Done = done
		state.Transfers.Transfers[id] = t

		notify(EventTransfers)

		return nil
	})
}

func (e *TransfersEngine) complete(id uint32) {
	Mutate(e.store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		t, ok := state.Transfers.Transfers[id]
		if !ok {
			return nil
		}

		t.Status = TransferDone
		if t.Size > 0 {
			t.Done = t.Size
		}

		state.Transfers.Transfers[id] = t

		notify(EventTransfers)

		return nil
	})
}

func (e *TransfersEngine) fail(id uint32, attempt int, err error) {
	Mutate(e.store, func(state *State, notify Notify, mutationState *MutationState, mutationNotify MutationNotify) any {
		t, ok := state.Transfers.Transfers[id]
		if !ok {
			return nil
		}

		t.Status = TransferFailed
		t.Attempt = attempt
		t.Error = err
		state.Transfers.Transfers[id] = t

		notify(EventTransfers)

		return nil
	})
}
