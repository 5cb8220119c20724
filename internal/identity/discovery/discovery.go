// Package discovery serves the OpenID Connect provider metadata and the
// JWKS backing it.
package discovery

import (
	"github.com/brightlock/identity/internal/identity/protocol"
	"github.com/brightlock/identity/pkg/jwtx"
)

// Document is the provider metadata published at
// /.well-known/openid-configuration.
type Document struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	EndSessionEndpoint                string   `json:"end_session_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	ResponseModesSupported            []string `json:"response_modes_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	PromptValuesSupported             []string `json:"prompt_values_supported"`
}

// Service assembles the metadata document from the issuer and the live key
// set. The document is computed per request so key rotation is reflected
// immediately.
type Service struct {
	Issuer string
	Keys   *jwtx.KeyManager

	// ExtraScopes extends scopes_supported beyond the protocol scopes.
	ExtraScopes []string
}

// Metadata builds the provider document. A provider without a signing key
// cannot honour anything the document advertises, so this fails with
// jwtx.ErrNoSigningKey rather than publishing a broken configuration.
func (s *Service) Metadata() (Document, error) {
	if !s.Keys.KeySet.IsReady() {
		return Document{}, jwtx.ErrNoSigningKey
	}

	scopes := append([]string{protocol.ScopeOpenID, protocol.ScopeOfflineAccess}, s.ExtraScopes...)

	return Document{
		Issuer:                s.Issuer,
		AuthorizationEndpoint: s.Issuer + "/v1/oauth2/authorize",
		TokenEndpoint:         s.Issuer + "/v1/oauth2/token",
		UserinfoEndpoint:      s.Issuer + "/v1/oauth2/userinfo",
		EndSessionEndpoint:    s.Issuer + "/v1/oauth2/logout",
		JWKSURI:               s.Issuer + "/.well-known/jwks.json",
		ResponseTypesSupported: []string{
			"code", "token", "id_token",
			"code id_token", "id_token token", "code id_token token",
		},
		ResponseModesSupported: []string{protocol.ResponseModeQuery, protocol.ResponseModeFragment},
		GrantTypesSupported: []string{
			protocol.GrantAuthorizationCode,
			protocol.GrantRefreshToken,
			protocol.GrantClientCredentials,
		},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{s.Keys.Algorithm()},
		ScopesSupported:                   scopes,
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post", "none"},
		ClaimsSupported: []string{
			"iss", "sub", "aud", "exp", "iat", "nbf", "jti",
			"name", "preferred_username", "nonce", "sid", "at_hash", "c_hash",
		},
		CodeChallengeMethodsSupported: []string{"S256", "plain"},
		PromptValuesSupported: []string{
			protocol.PromptNone, protocol.PromptLogin, protocol.PromptConsent,
		},
	}, nil
}

// JWKS returns the public key set for the jwks endpoint.
func (s *Service) JWKS() jwtx.JWKS {
	return s.Keys.KeySet.PublicJWKS()
}
