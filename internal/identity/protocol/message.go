// Package protocol parses raw OAuth2/OpenID Connect parameters into typed,
// validated request objects and defines the error vocabulary the endpoints
// speak.
package protocol

import (
	"net/url"
	"strings"
)

// Response types, grant types, prompts, and well-known scopes.
const (
	ResponseTypeCode    = "code"
	ResponseTypeToken   = "token"
	ResponseTypeIDToken = "id_token"

	ResponseModeQuery    = "query"
	ResponseModeFragment = "fragment"

	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"

	PromptNone    = "none"
	PromptLogin   = "login"
	PromptConsent = "consent"

	ScopeOpenID        = "openid"
	ScopeOfflineAccess = "offline_access"
)

// Message carries the raw, untrusted protocol parameters of an inbound
// request. Validation turns a Message into one of the typed request objects;
// nothing else should read it.
type Message struct {
	ClientID     string
	ClientSecret string

	// Authorization endpoint parameters.
	RedirectURI         string
	ResponseType        string
	ResponseMode        string
	Scope               []string
	State               string
	Nonce               string
	Prompt              string
	CodeChallenge       string
	CodeChallengeMethod string

	// Token endpoint parameters.
	GrantType    string
	Code         string
	CodeVerifier string
	RefreshToken string

	// Logout parameters.
	PostLogoutRedirectURI string
}

// ParseAuthorizationMessage reads the authorize endpoint parameters from a
// query string or form body.
func ParseAuthorizationMessage(values url.Values) Message {
	return Message{
		ClientID:            strings.TrimSpace(values.Get("client_id")),
		RedirectURI:         strings.TrimSpace(values.Get("redirect_uri")),
		ResponseType:        strings.TrimSpace(values.Get("response_type")),
		ResponseMode:        strings.TrimSpace(values.Get("response_mode")),
		Scope:               splitScope(values.Get("scope")),
		State:               values.Get("state"),
		Nonce:               strings.TrimSpace(values.Get("nonce")),
		Prompt:              strings.TrimSpace(values.Get("prompt")),
		CodeChallenge:       strings.TrimSpace(values.Get("code_challenge")),
		CodeChallengeMethod: strings.TrimSpace(values.Get("code_challenge_method")),
	}
}

// ParseTokenMessage reads the token endpoint form parameters.
func ParseTokenMessage(values url.Values) Message {
	return Message{
		ClientID:     strings.TrimSpace(values.Get("client_id")),
		ClientSecret: values.Get("client_secret"),
		GrantType:    strings.TrimSpace(values.Get("grant_type")),
		Code:         strings.TrimSpace(values.Get("code")),
		CodeVerifier: strings.TrimSpace(values.Get("code_verifier")),
		RefreshToken: strings.TrimSpace(values.Get("refresh_token")),
		RedirectURI:  strings.TrimSpace(values.Get("redirect_uri")),
		Scope:        splitScope(values.Get("scope")),
	}
}

// ParseLogoutMessage reads the end-session endpoint parameters.
func ParseLogoutMessage(values url.Values) Message {
	return Message{
		ClientID:              strings.TrimSpace(values.Get("client_id")),
		PostLogoutRedirectURI: strings.TrimSpace(values.Get("post_logout_redirect_uri")),
		State:                 values.Get("state"),
	}
}

// ResponseTypes splits the space-delimited response_type parameter.
func (m Message) ResponseTypes() []string {
	return strings.Fields(m.ResponseType)
}

// HasResponseType reports whether rt appears in the response_type parameter.
func (m Message) HasResponseType(rt string) bool {
	for _, t := range m.ResponseTypes() {
		if t == rt {
			return true
		}
	}
	return false
}

func splitScope(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}
