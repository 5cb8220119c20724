package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/brightlock/identity/internal/identity/domain"
	"github.com/brightlock/identity/internal/identity/protocol"
	"github.com/brightlock/identity/internal/identity/response"
	"github.com/brightlock/identity/internal/identity/store"
	"github.com/brightlock/identity/internal/identity/token"
	"github.com/brightlock/identity/pkg/cryptox"
	"github.com/brightlock/identity/pkg/idx"
	"github.com/brightlock/identity/pkg/slogx"
)

// TokenExchangeService drives the token endpoint: it redeems authorization
// codes, rotates refresh tokens, and serves client_credentials, always
// returning either a token response or a protocol error.
type TokenExchangeService struct {
	Store     store.Store
	Validator *protocol.TokenValidator
	Tokens    *token.Manager
	Responses response.TokenResponseFactory
}

// Exchange processes one token request. A non-nil *protocol.Error is the
// client's fault; a non-nil error is ours.
func (s *TokenExchangeService) Exchange(ctx context.Context, msg protocol.Message) (response.TokenResponse, *protocol.Error, error) {
	req, err := s.Validator.Validate(ctx, msg)
	if err != nil {
		return response.TokenResponse{}, nil, err
	}
	if !req.IsValid() {
		return response.TokenResponse{}, req.Err(), nil
	}

	app, err := s.Store.Applications().GetByClientID(ctx, msg.ClientID)
	if err != nil {
		return response.TokenResponse{}, nil, err
	}

	var tgc *token.GeneratingContext
	var perr *protocol.Error

	switch msg.GrantType {
	case protocol.GrantAuthorizationCode:
		tgc, perr, err = s.redeemCode(ctx, app, req)
	case protocol.GrantRefreshToken:
		tgc, perr, err = s.refreshTokens(ctx, app, req)
	case protocol.GrantClientCredentials:
		tgc, err = s.clientCredentials(ctx, app, req)
	default:
		return response.TokenResponse{}, protocol.UnsupportedGrantType(msg.GrantType), nil
	}
	if err != nil || perr != nil {
		return response.TokenResponse{}, perr, err
	}

	resp, ok := s.Responses.Success(tgc.Grants, tgc)
	if !ok {
		return response.TokenResponse{}, nil, errors.New("service: exchange produced no access token")
	}

	slogx.FromContext(ctx).Info("tokens issued",
		slog.String("client_id", app.ClientID),
		slog.String("grant_type", msg.GrantType),
	)
	return resp, nil, nil
}

// redeemCode consumes an authorization code inside one transaction so a
// concurrent redemption of the same code cannot double-issue.
func (s *TokenExchangeService) redeemCode(ctx context.Context, app domain.Application, req protocol.TokenRequest) (*token.GeneratingContext, *protocol.Error, error) {
	msg := req.Message
	now := time.Now()

	var tgc *token.GeneratingContext
	var perr *protocol.Error

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		code, err := tx.AuthorizationCodes().GetByHash(ctx, cryptox.FingerprintToken(msg.Code))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				perr = protocol.InvalidGrant("authorization code is invalid")
				return nil
			}
			return err
		}

		switch {
		case code.ClientID != app.ClientID:
			perr = protocol.InvalidGrant("authorization code was issued to another client")
		case code.RedirectURI != msg.RedirectURI:
			perr = protocol.InvalidGrant("redirect_uri does not match the authorization request")
		case code.UsedAt != nil:
			perr = protocol.InvalidGrant("authorization code has already been redeemed")
		case now.After(code.ExpiresAt):
			perr = protocol.InvalidGrant("authorization code has expired")
		case !protocol.VerifyCodeVerifier(code.CodeChallenge, code.CodeChallengeMethod, msg.CodeVerifier):
			perr = protocol.InvalidGrant("PKCE verification failed")
		}
		if perr != nil {
			return nil
		}

		if err := tx.AuthorizationCodes().MarkUsed(ctx, code.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				perr = protocol.InvalidGrant("authorization code has already been redeemed")
				return nil
			}
			return err
		}

		user, err := tx.Users().GetByID(ctx, code.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				perr = protocol.InvalidGrant("the authorizing user no longer exists")
				return nil
			}
			return err
		}

		grants := protocol.RequestGrants{
			GrantType: protocol.GrantAuthorizationCode,
			Scopes:    code.Scopes,
			Nonce:     code.Nonce,
			SessionID: code.SessionID,
			Subject:   user.ID,
		}

		tgc = token.NewGeneratingContext(user, app, msg, grants)
		if err := s.Tokens.IssueTokens(ctx, tgc); err != nil {
			return err
		}

		return s.persistRefresh(ctx, tx, user.ID, app.ClientID, grants, tgc)
	})
	return tgc, perr, err
}

// refreshTokens rotates a refresh token: the presented token is revoked and
// a replacement is issued in the same transaction.
func (s *TokenExchangeService) refreshTokens(ctx context.Context, app domain.Application, req protocol.TokenRequest) (*token.GeneratingContext, *protocol.Error, error) {
	msg := req.Message
	now := time.Now()
	hash := cryptox.FingerprintToken(msg.RefreshToken)

	var tgc *token.GeneratingContext
	var perr *protocol.Error

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		rt, err := tx.RefreshTokens().GetByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				perr = protocol.InvalidGrant("refresh token is invalid")
				return nil
			}
			return err
		}

		switch {
		case rt.ClientID != app.ClientID:
			perr = protocol.InvalidGrant("refresh token was issued to another client")
		case rt.Revoked:
			perr = protocol.InvalidGrant("refresh token has been revoked")
		case now.After(rt.ExpiresAt):
			perr = protocol.InvalidGrant("refresh token has expired")
		}
		if perr != nil {
			return nil
		}

		scopes := rt.Scopes
		if len(msg.Scope) > 0 {
			// Narrowing only: a refresh can never widen the original grant.
			for _, sc := range msg.Scope {
				if !slices.Contains(rt.Scopes, sc) {
					perr = protocol.InvalidScope("requested scope exceeds the original grant")
					return nil
				}
			}
			scopes = msg.Scope
		}

		user, err := tx.Users().GetByID(ctx, rt.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				perr = protocol.InvalidGrant("the authorizing user no longer exists")
				return nil
			}
			return err
		}

		grants := protocol.RequestGrants{
			GrantType: protocol.GrantRefreshToken,
			Scopes:    scopes,
			Nonce:     rt.Nonce,
			SessionID: rt.SessionID,
			Subject:   user.ID,
		}

		tgc = token.NewGeneratingContext(user, app, msg, grants)
		if err := s.Tokens.IssueTokens(ctx, tgc); err != nil {
			return err
		}

		if err := tx.RefreshTokens().Revoke(ctx, hash); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				perr = protocol.InvalidGrant("refresh token has been revoked")
				return nil
			}
			return err
		}

		return s.persistRefresh(ctx, tx, user.ID, app.ClientID, grants, tgc)
	})
	return tgc, perr, err
}

// clientCredentials issues a machine token; there is no user and no refresh
// token to persist.
func (s *TokenExchangeService) clientCredentials(ctx context.Context, app domain.Application, req protocol.TokenRequest) (*token.GeneratingContext, error) {
	tgc := token.NewGeneratingContext(domain.User{}, app, req.Message, req.Grants)
	if err := s.Tokens.IssueTokens(ctx, tgc); err != nil {
		return nil, err
	}
	return tgc, nil
}

// RevokeRefreshToken revokes a single refresh token by its serialized form.
func (s *TokenExchangeService) RevokeRefreshToken(ctx context.Context, serialized string) error {
	return s.Store.RefreshTokens().Revoke(ctx, cryptox.FingerprintToken(serialized))
}

func (s *TokenExchangeService) persistRefresh(
	ctx context.Context,
	tx store.Tx,
	userID, clientID string,
	grants protocol.RequestGrants,
	tgc *token.GeneratingContext,
) error {
	refresh, issued := tgc.IssuedToken(token.KindRefreshToken)
	if !issued {
		return nil
	}

	record := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    userID,
		ClientID:  clientID,
		TokenHash: cryptox.FingerprintToken(refresh.Serialized),
		SessionID: grants.SessionID,
		Scopes:    grants.Scopes,
		Nonce:     grants.Nonce,
		ExpiresAt: tokenExpiry(refresh.Token),
	}
	return tx.RefreshTokens().Create(ctx, record)
}
