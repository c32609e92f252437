package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vaultengine/vaultengine/internal/eventstream"
	"github.com/vaultengine/vaultengine/internal/vaultcore"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load server state and keep it live via the event stream",
		Long: `Authenticates, loads every mount and vault repo the server reports, then
keeps that in-memory picture live by consuming the push event stream until
interrupted.

This is not a background sync daemon: it holds no offline cache beyond
in-flight transfers and exits cleanly on SIGINT/SIGTERM, mirroring the
single-instance-per-session model — a second serve against the same data
directory refuses to start while one is already running.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	pidPath := filepath.Join(filepath.Dir(cc.Cfg.Auth.TokenStorePath), "vaultd.pid")

	cleanup, err := writePIDFile(pidPath)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := shutdownContext(parentCtx, logger)

	sess, err := openSession(ctx, cc.Cfg, logger)
	if err != nil {
		return fmt.Errorf("not logged in: %w", err)
	}
	defer sess.Close()

	if err := loadAll(ctx, sess); err != nil {
		return fmt.Errorf("loading server state: %w", err)
	}

	logger.Info("server state loaded")

	eventsURL := cc.Cfg.Network.EventStreamURL
	if eventsURL == "" {
		eventsURL = deriveEventStreamURL(cc.Cfg.Auth.ServerURL)
	}

	client := eventstream.NewClient(sess.vault, eventstream.WebsocketStream{}, eventsURL, logger)

	cache, err := vaultcore.NewPartialCache(cc.Cfg.Transfers.PartialCacheDir, logger)
	if err != nil {
		return fmt.Errorf("opening partial transfer cache: %w", err)
	}
	defer cache.Close()

	runner := vaultcore.NewRemoteTransferRunner(sess.client, sess.vault, cache)

	backoffBase, err := time.ParseDuration(cc.Cfg.Transfers.BackoffBase)
	if err != nil {
		backoffBase = 500 * time.Millisecond
	}

	backoffMax, err := time.ParseDuration(cc.Cfg.Transfers.BackoffMax)
	if err != nil {
		backoffMax = 30 * time.Second
	}

	engine := vaultcore.NewTransfersEngine(sess.vault, int64(cc.Cfg.Transfers.ParallelTransfers), runner, cc.Cfg.Transfers.MaxRetries, backoffBase, backoffMax)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		client.Run(gctx)

		return nil
	})
	g.Go(func() error {
		runTransfersLoop(gctx, sess.vault, engine)

		return nil
	})

	<-ctx.Done()
	logger.Info("shutting down")

	return g.Wait()
}

// runTransfersLoop launches TransfersEngine.Run for every transfer that
// enters the Waiting state, tracking which ids it has already started so a
// repeat EventTransfers notification (e.g. a progress update on an
// unrelated transfer) never launches the same transfer twice. Returns once
// ctx is canceled.
func runTransfersLoop(ctx context.Context, store *vaultcore.Store, engine *vaultcore.TransfersEngine) {
	started := make(map[uint32]bool)

	launch := func() {
		waiting := vaultcore.WithR(store, func(state *vaultcore.State) []uint32 {
			var out []uint32

			for _, id := range state.Transfers.Order {
				if state.Transfers.Transfers[id].Status == vaultcore.TransferWaiting {
					out = append(out, id)
				}
			}

			return out
		})

		for _, id := range waiting {
			if started[id] {
				continue
			}

			started[id] = true

			go engine.Run(ctx, id)
		}
	}

	done := make(chan struct{})
	defer close(done)

	listenerID := store.GetNextID()
	store.On(listenerID, []vaultcore.Event{vaultcore.EventTransfers}, launch)
	defer store.RemoveListener(listenerID)

	launch()

	<-ctx.Done()
}

// deriveEventStreamURL builds a ws(s):// events URL from the configured
// HTTP(S) server URL when network.event_stream_url is left unset.
func deriveEventStreamURL(serverURL string) string {
	switch {
	case len(serverURL) >= 8 && serverURL[:8] == "https://":
		return "wss://" + serverURL[8:] + "/events"
	case len(serverURL) >= 7 && serverURL[:7] == "http://":
		return "ws://" + serverURL[7:] + "/events"
	default:
		return serverURL + "/events"
	}
}
