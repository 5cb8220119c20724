package response

import (
	"net/http"
	"strings"

	"github.com/brightlock/identity/internal/identity/protocol"
	"github.com/brightlock/identity/internal/identity/token"
)

// TokenResponse is the token endpoint's success body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// TokenErrorResponse is the token endpoint's failure body.
type TokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// TokenResponseFactory builds the token endpoint's JSON bodies.
type TokenResponseFactory struct{}

// Success assembles the body from the context's issued tokens. The access
// token is mandatory for every grant this endpoint serves; its absence is a
// server error the caller must have prevented.
func (TokenResponseFactory) Success(grants protocol.RequestGrants, tgc *token.GeneratingContext) (TokenResponse, bool) {
	access, ok := tgc.IssuedToken(token.KindAccessToken)
	if !ok {
		return TokenResponse{}, false
	}

	resp := TokenResponse{
		AccessToken: access.Serialized,
		TokenType:   "Bearer",
		Scope:       strings.Join(grants.Scopes, " "),
	}
	if lifetime, ok := remainingLifetime(access.Token); ok {
		resp.ExpiresIn = lifetime
	}
	if refresh, ok := tgc.IssuedToken(token.KindRefreshToken); ok {
		resp.RefreshToken = refresh.Serialized
	}
	if id, ok := tgc.IssuedToken(token.KindIDToken); ok {
		resp.IDToken = id.Serialized
	}

	return resp, true
}

// Failure maps a protocol error onto the RFC 6749 wire shape and status.
func (TokenResponseFactory) Failure(perr *protocol.Error) (TokenErrorResponse, int) {
	status := http.StatusBadRequest
	switch perr.Code {
	case protocol.CodeInvalidClient:
		status = http.StatusUnauthorized
	case protocol.CodeServerError:
		status = http.StatusInternalServerError
	}

	return TokenErrorResponse{
		Error:            perr.Code,
		ErrorDescription: perr.Description,
	}, status
}
