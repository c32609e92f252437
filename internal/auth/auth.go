// Package auth implements OAuth2 login against the vault host and keeps
// the resulting refresh token alive across restarts. The device-code
// flow, token-refresh persistence hook, and TokenSource bridge follow
// internal/graph/auth.go, generalized from a single hardcoded Microsoft
// endpoint to whatever server_url the caller's config resolves to, and
// from a token file to internal/tokenstore.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/vaultengine/vaultengine/internal/tokenstore"
)

// ErrNotLoggedIn is returned by TokenSourceFromStore when no session has
// ever been persisted.
var ErrNotLoggedIn = errors.New("auth: not logged in")

// DeviceAuth holds the device code response fields the CLI displays to
// the user during Login.
type DeviceAuth struct {
	UserCode        string
	VerificationURI string
}

// endpoint builds the vault host's OAuth2 endpoint from its base URL.
// The vault host exposes the standard RFC 8628 device-authorization and
// token endpoints under /oauth/.
func endpoint(serverURL string) oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:       serverURL + "/oauth/authorize",
		TokenURL:      serverURL + "/oauth/token",
		DeviceAuthURL: serverURL + "/oauth/device/code",
	}
}

func oauthConfig(serverURL, clientID string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: clientID,
		Scopes:   []string{"vault.read", "vault.write"},
		Endpoint: endpoint(serverURL),
	}
}

// Login performs the device code OAuth2 flow:
//  1. requests a device code from the vault host
//  2. calls display so the CLI can show the user code and verification URL
//  3. polls until the user authorizes (blocking, respects ctx cancellation)
//  4. persists the resulting session to store
//  5. returns a TokenSource for use with remoteapi.Client
//
// The returned TokenSource binds ctx to the underlying oauth2 token
// source — ctx must outlive it. Callers should pass context.Background()
// for a long-lived daemon session.
func Login(
	ctx context.Context,
	store *tokenstore.Store,
	serverURL, clientID string,
	display func(DeviceAuth),
	logger *slog.Logger,
) (*TokenSource, error) {
	return doLogin(ctx, store, oauthConfig(serverURL, clientID), serverURL, display, logger)
}

// doLogin implements the device code flow against a pre-built oauth2.Config
// so tests can inject a mock endpoint.
func doLogin(
	ctx context.Context,
	store *tokenstore.Store,
	cfg *oauth2.Config,
	serverURL string,
	display func(DeviceAuth),
	logger *slog.Logger,
) (*TokenSource, error) {
	logger.Info("starting device code auth flow", slog.String("server_url", serverURL))

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: device auth request failed: %w", err)
	}

	logger.Info("device code received, waiting for user authorization")

	display(DeviceAuth{
		UserCode:        da.UserCode,
		VerificationURI: da.VerificationURI,
	})

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("auth: device code authorization failed: %w", err)
	}

	userID, err := userIDFromToken(tok)
	if err != nil {
		return nil, err
	}

	logger.Info("user authorized, saving session", slog.Time("expiry", tok.Expiry))

	if saveErr := save(ctx, store, serverURL, userID, tok); saveErr != nil {
		return nil, saveErr
	}

	return newTokenSource(ctx, store, serverURL, userID, cfg, tok, logger), nil
}

// TokenSourceFromStore loads a previously persisted session and returns a
// TokenSource with auto-refresh and auto-persistence back to store.
// Returns ErrNotLoggedIn if no session has ever been saved.
func TokenSourceFromStore(ctx context.Context, store *tokenstore.Store, clientID string, logger *slog.Logger) (*TokenSource, error) {
	sess, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: loading session: %w", err)
	}

	if sess == nil {
		return nil, ErrNotLoggedIn
	}

	tok := &oauth2.Token{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		TokenType:    sess.TokenType,
		Expiry:       sess.Expiry,
	}

	logger.Info("loaded saved session",
		slog.String("user_id", sess.UserID),
		slog.Time("expiry", sess.Expiry),
		slog.Bool("expired", tok.Expiry.Before(time.Now())),
	)

	cfg := oauthConfig(sess.ServerURL, clientID)

	return newTokenSource(ctx, store, sess.ServerURL, sess.UserID, cfg, tok, logger), nil
}

// Logout clears the persisted session. Returns nil if already logged out.
func Logout(ctx context.Context, store *tokenstore.Store, logger *slog.Logger) error {
	if err := store.Clear(ctx); err != nil {
		return err
	}

	logger.Info("logout: session cleared")

	return nil
}

func save(ctx context.Context, store *tokenstore.Store, serverURL, userID string, tok *oauth2.Token) error {
	return store.Save(ctx, tokenstore.Session{
		ServerURL:    serverURL,
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	})
}

// userIDFromToken extracts the subject id the vault host embeds in the
// token's extras under "user_id". Device-code grants against this host
// always include it alongside the access token.
func userIDFromToken(tok *oauth2.Token) (string, error) {
	if id, ok := tok.Extra("user_id").(string); ok && id != "" {
		return id, nil
	}

	return "", errors.New("auth: token response missing user_id")
}

// newTokenSource wraps cfg's reuse-and-refresh token source with a hook
// that persists every silently-refreshed token back to store, then wraps
// that in a TokenSource implementing remoteapi.TokenSource's Token()
// (string, error) shape.
func newTokenSource(
	ctx context.Context,
	store *tokenstore.Store,
	serverURL, userID string,
	cfg *oauth2.Config,
	tok *oauth2.Token,
	logger *slog.Logger,
) *TokenSource {
	persisting := &persistingSource{
		ctx:       ctx,
		store:     store,
		serverURL: serverURL,
		userID:    userID,
		logger:    logger,
	}
	persisting.inner = oauth2.ReuseTokenSource(tok, cfg.TokenSource(ctx, tok))

	return &TokenSource{src: persisting, logger: logger}
}

// persistingSource wraps an oauth2.TokenSource and persists every token it
// returns, so a silent refresh performed deep inside the oauth2 library is
// not lost on the next restart.
type persistingSource struct {
	ctx       context.Context
	store     *tokenstore.Store
	serverURL string
	userID    string
	logger    *slog.Logger
	inner     oauth2.TokenSource
	last      string // last-persisted access token, to avoid redundant writes
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.inner.Token()
	if err != nil {
		return nil, err
	}

	if tok.AccessToken != p.last {
		if err := save(p.ctx, p.store, p.serverURL, p.userID, tok); err != nil {
			p.logger.Warn("failed to persist refreshed token", slog.String("error", err.Error()))
		} else {
			p.last = tok.AccessToken
			p.logger.Info("persisted refreshed token", slog.Time("new_expiry", tok.Expiry))
		}
	}

	return tok, nil
}

// TokenSource adapts oauth2.TokenSource to the plain Token() (string,
// error) shape that remoteapi.Client and eventstream dialing expect.
type TokenSource struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (t *TokenSource) Token() (string, error) {
	tok, err := t.src.Token()
	if err != nil {
		t.logger.Warn("token acquisition failed", slog.String("error", err.Error()))

		return "", fmt.Errorf("auth: obtaining token: %w", err)
	}

	t.logger.Debug("token acquired", slog.Time("expiry", tok.Expiry), slog.Bool("valid", tok.Valid()))

	return tok.AccessToken, nil
}
