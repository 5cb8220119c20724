package protocol

import "fmt"

// OAuth2/OIDC error codes surfaced to clients.
const (
	CodeInvalidRequest          = "invalid_request"
	CodeInvalidClient           = "invalid_client"
	CodeInvalidGrant            = "invalid_grant"
	CodeInvalidScope            = "invalid_scope"
	CodeUnauthorizedClient      = "unauthorized_client"
	CodeUnsupportedResponseType = "unsupported_response_type"
	CodeUnsupportedGrantType    = "unsupported_grant_type"
	CodeLoginRequired           = "login_required"
	CodeConsentRequired         = "consent_required"
	CodeAccessDenied            = "access_denied"
	CodeServerError             = "server_error"
)

// Error is a structured protocol failure. It travels to the HTTP boundary as
// an OAuth error response (JSON or redirect parameters), never as a panic or
// a bare 500.
type Error struct {
	Code        string
	Description string
	State       string

	// NoRedirect marks errors that must never be delivered via the client's
	// redirect URI: the client is unknown or the redirect URI itself failed
	// validation, so redirecting would hand the error to an attacker-chosen
	// location.
	NoRedirect bool
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WithState returns a copy of the error carrying the request's state
// parameter, which error redirects must echo back.
func (e *Error) WithState(state string) *Error {
	clone := *e
	clone.State = state
	return &clone
}

func InvalidRequest(description string) *Error {
	return &Error{Code: CodeInvalidRequest, Description: description}
}

// InvalidRedirectURI is an invalid_request that must not redirect.
func InvalidRedirectURI(description string) *Error {
	return &Error{Code: CodeInvalidRequest, Description: description, NoRedirect: true}
}

func InvalidClient(description string) *Error {
	return &Error{Code: CodeInvalidClient, Description: description, NoRedirect: true}
}

func InvalidGrant(description string) *Error {
	return &Error{Code: CodeInvalidGrant, Description: description}
}

func InvalidScope(description string) *Error {
	return &Error{Code: CodeInvalidScope, Description: description}
}

func UnsupportedResponseType(responseType string) *Error {
	return &Error{
		Code:        CodeUnsupportedResponseType,
		Description: fmt.Sprintf("response type %q is not supported", responseType),
	}
}

func UnsupportedGrantType(grantType string) *Error {
	return &Error{
		Code:        CodeUnsupportedGrantType,
		Description: fmt.Sprintf("grant type %q is not supported", grantType),
	}
}

// LoginRequiredError signals that prompt=none could not be satisfied without
// user interaction.
func LoginRequiredError() *Error {
	return &Error{Code: CodeLoginRequired, Description: "user interaction is required"}
}
