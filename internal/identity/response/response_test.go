package response

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightlock/identity/internal/identity/domain"
	"github.com/brightlock/identity/internal/identity/protocol"
	"github.com/brightlock/identity/internal/identity/token"
)

func contextWith(t *testing.T, grants protocol.RequestGrants, results map[token.Kind]string) *token.GeneratingContext {
	t.Helper()

	tgc := token.NewGeneratingContext(domain.User{ID: "user-1"}, domain.Application{ClientID: "client-1"},
		protocol.Message{}, grants)

	for _, kind := range []token.Kind{token.KindAuthorizationCode, token.KindAccessToken, token.KindRefreshToken, token.KindIDToken} {
		serialized, ok := results[kind]
		if !ok {
			continue
		}
		require.NoError(t, tgc.InitializeForToken(kind))
		require.NoError(t, tgc.AddClaims(
			token.Claim{Type: token.ClaimID, Value: token.NewJTI()},
			token.Claim{Type: token.ClaimIssuedAt, Value: "1700000000"},
			token.Claim{Type: token.ClaimNotBefore, Value: "1700000000"},
			token.Claim{Type: token.ClaimExpiry, Value: "1700003600"},
		))
		tok, err := token.NewToken(kind, tgc.CurrentClaims())
		require.NoError(t, err)
		require.NoError(t, tgc.AddToken(token.TokenResult{Token: tok, Serialized: serialized}))
	}
	return tgc
}

func TestAuthorizationSuccessRedirect(t *testing.T) {
	factory := AuthorizationResponseFactory{}

	t.Run("code flow rides the query string", func(t *testing.T) {
		grants := protocol.RequestGrants{
			RedirectURI:   "https://app.example.com/cb?keep=1",
			ResponseTypes: []string{protocol.ResponseTypeCode},
		}
		tgc := contextWith(t, grants, map[token.Kind]string{token.KindAuthorizationCode: "the-code"})

		redirect, err := factory.SuccessRedirect(grants, "xyz", tgc)
		require.NoError(t, err)

		u, err := url.Parse(redirect)
		require.NoError(t, err)
		assert.Empty(t, u.Fragment)
		assert.Equal(t, "the-code", u.Query().Get("code"))
		assert.Equal(t, "xyz", u.Query().Get("state"))
		assert.Equal(t, "1", u.Query().Get("keep"), "existing query parameters survive")
	})

	t.Run("implicit flow rides the fragment", func(t *testing.T) {
		grants := protocol.RequestGrants{
			RedirectURI:   "https://app.example.com/cb",
			ResponseTypes: []string{protocol.ResponseTypeToken, protocol.ResponseTypeIDToken},
		}
		tgc := contextWith(t, grants, map[token.Kind]string{
			token.KindAccessToken: "the-access",
			token.KindIDToken:     "the-id",
		})

		redirect, err := factory.SuccessRedirect(grants, "", tgc)
		require.NoError(t, err)

		u, err := url.Parse(redirect)
		require.NoError(t, err)
		assert.Empty(t, u.RawQuery)

		frag, err := url.ParseQuery(u.Fragment)
		require.NoError(t, err)
		assert.Equal(t, "the-access", frag.Get("access_token"))
		assert.Equal(t, "the-id", frag.Get("id_token"))
		assert.Equal(t, "Bearer", frag.Get("token_type"))
		assert.Equal(t, "3600", frag.Get("expires_in"))
	})

	t.Run("explicit response_mode overrides the default", func(t *testing.T) {
		grants := protocol.RequestGrants{
			RedirectURI:   "https://app.example.com/cb",
			ResponseTypes: []string{protocol.ResponseTypeCode},
			ResponseMode:  protocol.ResponseModeFragment,
		}
		tgc := contextWith(t, grants, map[token.Kind]string{token.KindAuthorizationCode: "the-code"})

		redirect, err := factory.SuccessRedirect(grants, "", tgc)
		require.NoError(t, err)

		u, err := url.Parse(redirect)
		require.NoError(t, err)
		frag, err := url.ParseQuery(u.Fragment)
		require.NoError(t, err)
		assert.Equal(t, "the-code", frag.Get("code"))
	})
}

func TestAuthorizationErrorRedirect(t *testing.T) {
	factory := AuthorizationResponseFactory{}
	grants := protocol.RequestGrants{
		RedirectURI:   "https://app.example.com/cb",
		ResponseTypes: []string{protocol.ResponseTypeCode},
	}

	t.Run("redirectable error carries code, description and state", func(t *testing.T) {
		perr := protocol.LoginRequiredError().WithState("abc")

		redirect, ok := factory.ErrorRedirect(grants.RedirectURI, grants, perr)
		require.True(t, ok)

		u, err := url.Parse(redirect)
		require.NoError(t, err)
		assert.Equal(t, protocol.CodeLoginRequired, u.Query().Get("error"))
		assert.Equal(t, "abc", u.Query().Get("state"))
		assert.NotEmpty(t, u.Query().Get("error_description"))
	})

	t.Run("NoRedirect errors stay local", func(t *testing.T) {
		_, ok := factory.ErrorRedirect(grants.RedirectURI, grants, protocol.InvalidClient("unknown client"))
		assert.False(t, ok)
	})

	t.Run("missing redirect URI stays local", func(t *testing.T) {
		_, ok := factory.ErrorRedirect("", grants, protocol.InvalidRequest("bad"))
		assert.False(t, ok)
	})
}

func TestTokenResponseFactory(t *testing.T) {
	factory := TokenResponseFactory{}

	t.Run("success includes every issued token", func(t *testing.T) {
		grants := protocol.RequestGrants{
			GrantType: protocol.GrantAuthorizationCode,
			Scopes:    []string{"openid", "profile"},
		}
		tgc := contextWith(t, grants, map[token.Kind]string{
			token.KindAccessToken:  "the-access",
			token.KindRefreshToken: "the-refresh",
			token.KindIDToken:      "the-id",
		})

		resp, ok := factory.Success(grants, tgc)
		require.True(t, ok)
		assert.Equal(t, "the-access", resp.AccessToken)
		assert.Equal(t, "Bearer", resp.TokenType)
		assert.Equal(t, int64(3600), resp.ExpiresIn)
		assert.Equal(t, "the-refresh", resp.RefreshToken)
		assert.Equal(t, "the-id", resp.IDToken)
		assert.Equal(t, "openid profile", resp.Scope)
	})

	t.Run("missing access token is not a success", func(t *testing.T) {
		grants := protocol.RequestGrants{GrantType: protocol.GrantAuthorizationCode}
		tgc := contextWith(t, grants, nil)

		_, ok := factory.Success(grants, tgc)
		assert.False(t, ok)
	})

	t.Run("invalid_client maps to 401", func(t *testing.T) {
		body, status := factory.Failure(protocol.InvalidClient("bad secret"))
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, protocol.CodeInvalidClient, body.Error)
	})

	t.Run("invalid_grant maps to 400", func(t *testing.T) {
		body, status := factory.Failure(protocol.InvalidGrant("code already used"))
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, protocol.CodeInvalidGrant, body.Error)
	})
}
