package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.uber.org/multierr"

	"github.com/vaultengine/vaultengine/internal/auth"
	"github.com/vaultengine/vaultengine/internal/config"
	"github.com/vaultengine/vaultengine/internal/remoteapi"
	"github.com/vaultengine/vaultengine/internal/tokenstore"
	"github.com/vaultengine/vaultengine/internal/vaultcore"
)

// session bundles the pieces every command after login needs: an
// authenticated remote client and the store that backs it.
type session struct {
	store   *tokenstore.Store
	client  *remoteapi.Client
	vault   *vaultcore.Store
	tsource *auth.TokenSource
}

// openSession opens the token store, rehydrates a TokenSource from the
// persisted session, and builds the remote client and an empty Store ready
// for a full load. Returns auth.ErrNotLoggedIn if login has not run yet.
func openSession(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*session, error) {
	store, err := tokenstore.Open(ctx, cfg.Auth.TokenStorePath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening token store: %w", err)
	}

	ts, err := auth.TokenSourceFromStore(ctx, store, cfg.Auth.ClientID, logger)
	if err != nil {
		store.Close()

		return nil, err
	}

	connectTimeout, err := time.ParseDuration(cfg.Network.ConnectTimeout)
	if err != nil {
		connectTimeout = 10 * time.Second
	}

	httpClient := &http.Client{Timeout: connectTimeout}

	client := remoteapi.NewClient(cfg.Auth.ServerURL, httpClient, ts, logger)
	vault := vaultcore.NewStore(logger)

	return &session{store: store, client: client, vault: vault, tsource: ts}, nil
}

func (s *session) Close() {
	s.store.Close()
}

// loadAll performs the server-load bootstrap: fetch every mount and repo
// visible to the session and fold them into the Store, mirroring the
// client's first connect. Mounts and repos are independent listings, so
// both are attempted even if one fails, and any failures are joined into
// a single error instead of hiding the second behind the first.
func loadAll(ctx context.Context, s *session) error {
	var errs error

	mountDTOs, err := s.client.ListMounts(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("listing mounts: %w", err))
	} else {
		mounts := make([]vaultcore.Mount, 0, len(mountDTOs))
		for _, dto := range mountDTOs {
			mounts = append(mounts, vaultcore.MountFromDTO(dto))
		}

		vaultcore.Mutate(s.vault, func(state *vaultcore.State, notify vaultcore.Notify, mutationState *vaultcore.MutationState, mutationNotify vaultcore.MutationNotify) any {
			vaultcore.MountsLoaded(state, notify, mutationState, mutationNotify, mounts)

			return nil
		})
	}

	repos, err := s.client.ListRepos(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("listing repos: %w", err))
	} else {
		vaultcore.Mutate(s.vault, func(state *vaultcore.State, notify vaultcore.Notify, mutationState *vaultcore.MutationState, mutationNotify vaultcore.MutationNotify) any {
			vaultcore.ReposLoaded(state, notify, mutationState, mutationNotify, repos)

			return nil
		})
	}

	return errs
}
