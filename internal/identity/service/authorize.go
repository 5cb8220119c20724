package service

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/brightlock/identity/internal/identity/domain"
	"github.com/brightlock/identity/internal/identity/protocol"
	"github.com/brightlock/identity/internal/identity/response"
	"github.com/brightlock/identity/internal/identity/session"
	"github.com/brightlock/identity/internal/identity/store"
	"github.com/brightlock/identity/internal/identity/token"
	"github.com/brightlock/identity/pkg/cryptox"
	"github.com/brightlock/identity/pkg/idx"
	"github.com/brightlock/identity/pkg/slogx"
)

// AuthorizeOutcome is what the authorize endpoint does next: redirect the
// browser, render the login page, or render a local error because no safe
// redirect exists.
type AuthorizeOutcome struct {
	RedirectURI   string
	LoginRequired bool
	Error         *protocol.Error
}

// AuthorizationService drives the authorize endpoint: validate the request,
// consult the login manager, issue the front-channel tokens, and persist the
// authorization code for later redemption.
type AuthorizationService struct {
	Store     store.Store
	Validator *protocol.AuthorizationValidator
	Sessions  *session.Manager
	Tokens    *token.Manager
	Responses response.AuthorizationResponseFactory
}

// Authorize processes one authorize request for the browser session's user
// (empty userID when nobody is signed in).
func (s *AuthorizationService) Authorize(ctx context.Context, userID string, msg protocol.Message) (AuthorizeOutcome, error) {
	req, app, failed, err := s.prepare(ctx, &msg)
	if err != nil || failed != nil {
		return deref(failed), err
	}

	login, err := s.Sessions.CanLogIn(ctx, userID, req)
	if err != nil {
		return AuthorizeOutcome{}, err
	}

	switch login.Status {
	case session.StatusForbidden:
		return s.failure(req.Grants.RedirectURI, req.Grants, login.Error), nil
	case session.StatusLoginRequired:
		return AuthorizeOutcome{LoginRequired: true}, nil
	}

	grants := req.Grants
	grants.SessionID = login.Grant.SessionID
	grants.Subject = login.User.ID

	return s.complete(ctx, login.User, app, grants, msg)
}

// AuthorizeWithLogin completes an authorize request for a user who just
// proved their credentials. A fresh grant replaces any previous one, so the
// issued session id is always new.
func (s *AuthorizationService) AuthorizeWithLogin(ctx context.Context, user domain.User, msg protocol.Message) (AuthorizeOutcome, error) {
	req, app, failed, err := s.prepare(ctx, &msg)
	if err != nil || failed != nil {
		return deref(failed), err
	}

	grant, err := s.Sessions.LogIn(ctx, user, app, req.Grants)
	if err != nil {
		return AuthorizeOutcome{}, err
	}

	grants := req.Grants
	grants.SessionID = grant.SessionID
	grants.Subject = user.ID

	return s.complete(ctx, user, app, grants, msg)
}

// prepare runs validation and PKCE normalization. A non-nil outcome means the
// request failed and the caller must return it as-is.
func (s *AuthorizationService) prepare(ctx context.Context, msg *protocol.Message) (protocol.AuthorizationRequest, domain.Application, *AuthorizeOutcome, error) {
	req, err := s.Validator.Validate(ctx, *msg)
	if err != nil {
		return protocol.AuthorizationRequest{}, domain.Application{}, nil, err
	}
	if !req.IsValid() {
		out := s.failure(req.Message.RedirectURI, req.Grants, req.Err())
		return protocol.AuthorizationRequest{}, domain.Application{}, &out, nil
	}

	app, err := s.Store.Applications().GetByClientID(ctx, msg.ClientID)
	if err != nil {
		return protocol.AuthorizationRequest{}, domain.Application{}, nil, err
	}

	challenge, method, perr := protocol.ValidatePKCE(msg.CodeChallenge, msg.CodeChallengeMethod, app.IsPublic())
	if perr != nil {
		out := s.failure(req.Grants.RedirectURI, req.Grants, perr.WithState(msg.State))
		return protocol.AuthorizationRequest{}, domain.Application{}, &out, nil
	}
	msg.CodeChallenge = challenge
	msg.CodeChallengeMethod = method

	return req, app, nil, nil
}

func (s *AuthorizationService) complete(
	ctx context.Context,
	user domain.User,
	app domain.Application,
	grants protocol.RequestGrants,
	msg protocol.Message,
) (AuthorizeOutcome, error) {
	tgc := token.NewGeneratingContext(user, app, msg, grants)
	if err := s.Tokens.IssueTokens(ctx, tgc); err != nil {
		return AuthorizeOutcome{}, err
	}

	if code, issued := tgc.IssuedToken(token.KindAuthorizationCode); issued {
		if err := s.persistCode(ctx, user, app, grants, msg, code); err != nil {
			return AuthorizeOutcome{}, err
		}
	}

	redirect, err := s.Responses.SuccessRedirect(grants, msg.State, tgc)
	if err != nil {
		return AuthorizeOutcome{}, err
	}

	slogx.FromContext(ctx).Info("authorization granted",
		slog.String("client_id", app.ClientID),
		slog.String("user_id", user.ID),
		slog.Any("response_types", grants.ResponseTypes),
	)
	return AuthorizeOutcome{RedirectURI: redirect}, nil
}

func deref(out *AuthorizeOutcome) AuthorizeOutcome {
	if out == nil {
		return AuthorizeOutcome{}
	}
	return *out
}

func (s *AuthorizationService) failure(redirectURI string, grants protocol.RequestGrants, perr *protocol.Error) AuthorizeOutcome {
	if redirect, ok := s.Responses.ErrorRedirect(redirectURI, grants, perr); ok {
		return AuthorizeOutcome{RedirectURI: redirect}
	}
	return AuthorizeOutcome{Error: perr}
}

// persistCode stores the fingerprint record a future token exchange redeems.
func (s *AuthorizationService) persistCode(
	ctx context.Context,
	user domain.User,
	app domain.Application,
	grants protocol.RequestGrants,
	msg protocol.Message,
	code token.TokenResult,
) error {
	record := domain.AuthorizationCode{
		ID:                  idx.New().String(),
		UserID:              user.ID,
		ClientID:            app.ClientID,
		CodeHash:            cryptox.FingerprintToken(code.Serialized),
		RedirectURI:         grants.RedirectURI,
		Scopes:              grants.Scopes,
		Nonce:               grants.Nonce,
		SessionID:           grants.SessionID,
		CodeChallenge:       msg.CodeChallenge,
		CodeChallengeMethod: msg.CodeChallengeMethod,
		ExpiresAt:           tokenExpiry(code.Token),
	}
	return s.Store.AuthorizationCodes().Create(ctx, record)
}

// tokenExpiry reads the exp claim the signer committed to, so the stored
// record can never outlive the token itself.
func tokenExpiry(t token.Token) time.Time {
	if expStr, ok := t.Claim(token.ClaimExpiry); ok {
		if exp, err := strconv.ParseInt(expStr, 10, 64); err == nil {
			return time.Unix(exp, 0)
		}
	}
	return time.Now()
}
