// Package session implements the login manager: the prompt state machine
// deciding whether an authorize request can complete silently, the grant
// records tying a browser session to an application, and logout.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/brightlock/identity/internal/identity/domain"
	"github.com/brightlock/identity/internal/identity/protocol"
	"github.com/brightlock/identity/internal/identity/store"
	"github.com/brightlock/identity/pkg/idx"
)

// LoginStatus is the outcome of the prompt state machine.
type LoginStatus int

const (
	// StatusAuthorized means the request can complete without interaction.
	StatusAuthorized LoginStatus = iota

	// StatusLoginRequired means the user must authenticate (again) before the
	// request can proceed.
	StatusLoginRequired

	// StatusForbidden means interaction is required but the request forbade
	// it with prompt=none; the error must go back to the client.
	StatusForbidden
)

// LoginResult carries the state machine's decision plus, when authorized,
// the resolved principal and the grant that authorized it.
type LoginResult struct {
	Status LoginStatus
	User   domain.User
	Grant  domain.Grant
	Error  *protocol.Error
}

// LogoutResult is the outcome of ending a session: either a redirect back to
// the client or a locally rendered signed-out page.
type LogoutResult struct {
	RedirectURI   string
	ShowLoggedOut bool
}

// PrincipalFactory resolves the full principal for an authorized session.
type PrincipalFactory interface {
	Principal(ctx context.Context, userID string) (domain.User, error)
}

// StorePrincipalFactory loads the principal from the user store.
type StorePrincipalFactory struct {
	Store store.Store
}

func (f *StorePrincipalFactory) Principal(ctx context.Context, userID string) (domain.User, error) {
	return f.Store.Users().GetByID(ctx, userID)
}

// Manager owns grant records and the login decision.
type Manager struct {
	Store      store.Store
	Principals PrincipalFactory
}

func NewManager(st store.Store) *Manager {
	return &Manager{
		Store:      st,
		Principals: &StorePrincipalFactory{Store: st},
	}
}

// CanLogIn runs the prompt state machine for an authorize request. userID is
// the browser session's authenticated user, empty when nobody is signed in.
//
// prompt=none never interacts: without a usable session it fails with
// login_required. prompt=login always re-authenticates. Otherwise the
// request is authorized exactly when a grant exists for this user and
// client.
func (m *Manager) CanLogIn(ctx context.Context, userID string, req protocol.AuthorizationRequest) (LoginResult, error) {
	if !req.IsValid() {
		return LoginResult{}, fmt.Errorf("session: CanLogIn called with an invalid request")
	}

	prompt := req.Message.Prompt

	if userID == "" {
		return m.interactionRequired(prompt, req)
	}

	if prompt == protocol.PromptLogin {
		return LoginResult{Status: StatusLoginRequired}, nil
	}

	grant, err := m.Store.Grants().GetByUserAndClient(ctx, userID, req.Message.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return m.interactionRequired(prompt, req)
		}
		return LoginResult{}, err
	}

	user, err := m.Principals.Principal(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return m.interactionRequired(prompt, req)
		}
		return LoginResult{}, err
	}

	return LoginResult{Status: StatusAuthorized, User: user, Grant: grant}, nil
}

func (m *Manager) interactionRequired(prompt string, req protocol.AuthorizationRequest) (LoginResult, error) {
	if prompt == protocol.PromptNone {
		return LoginResult{
			Status: StatusForbidden,
			Error:  protocol.LoginRequiredError().WithState(req.Message.State),
		}, nil
	}
	return LoginResult{Status: StatusLoginRequired}, nil
}

// LogIn records a fresh authorization for the (user, client) pair, replacing
// any previous grant, and returns the new grant with its session id. The
// application's first registered logout redirect URI is captured so logout
// can send the browser back without a store round trip.
func (m *Manager) LogIn(ctx context.Context, user domain.User, app domain.Application, grants protocol.RequestGrants) (domain.Grant, error) {
	grant := domain.Grant{
		ID:        idx.New().String(),
		UserID:    user.ID,
		ClientID:  app.ClientID,
		SessionID: idx.New().String(),
		Scopes:    grants.Scopes,
	}
	if logoutURIs := app.LogoutRedirectURIs(); len(logoutURIs) > 0 {
		grant.LogoutRedirectURI = logoutURIs[0]
	}

	err := m.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Grants().DeleteByUserAndClient(ctx, user.ID, app.ClientID); err != nil &&
			!errors.Is(err, store.ErrNotFound) {
			return err
		}
		return tx.Grants().Create(ctx, grant)
	})
	if err != nil {
		return domain.Grant{}, err
	}
	return grant, nil
}

// LogOut ends the session for a validated end-session request. The grant for
// the requesting client is removed; without a client id every grant of the
// user goes. When the request validated a post-logout redirect URI the
// browser is sent there, with the client's state re-appended so it can
// correlate the round trip.
func (m *Manager) LogOut(ctx context.Context, userID string, req protocol.LogoutRequest) (LogoutResult, error) {
	if !req.IsValid() {
		return LogoutResult{}, fmt.Errorf("session: LogOut called with an invalid request")
	}

	if userID != "" {
		var err error
		if req.Message.ClientID != "" {
			err = m.Store.Grants().DeleteByUserAndClient(ctx, userID, req.Message.ClientID)
		} else {
			err = m.Store.Grants().DeleteByUser(ctx, userID)
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return LogoutResult{}, err
		}
	}

	if req.RedirectURI == "" {
		return LogoutResult{ShowLoggedOut: true}, nil
	}

	redirect, err := appendState(req.RedirectURI, req.Message.State)
	if err != nil {
		return LogoutResult{ShowLoggedOut: true}, nil
	}
	return LogoutResult{RedirectURI: redirect}, nil
}

func appendState(redirectURI, state string) (string, error) {
	if state == "" {
		return redirectURI, nil
	}

	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
