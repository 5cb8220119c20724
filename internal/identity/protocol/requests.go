package protocol

// The three request types below share one shape: a raw Message, resolved
// RequestGrants when valid, and a validity flag gating everything else. They
// are constructed only through the Valid*/Invalid* factories; handlers must
// check IsValid() before trusting any other field.

// AuthorizationRequest is a validated (or failed) authorize endpoint request.
type AuthorizationRequest struct {
	Message Message
	Grants  RequestGrants

	valid bool
	err   *Error
}

func ValidAuthorizationRequest(msg Message, grants RequestGrants) AuthorizationRequest {
	return AuthorizationRequest{Message: msg, Grants: grants, valid: true}
}

func InvalidAuthorizationRequest(msg Message, err *Error) AuthorizationRequest {
	return AuthorizationRequest{Message: msg, err: err.WithState(msg.State)}
}

func (r AuthorizationRequest) IsValid() bool { return r.valid }
func (r AuthorizationRequest) Err() *Error   { return r.err }

// TokenRequest is a validated (or failed) token endpoint request.
type TokenRequest struct {
	Message Message
	Grants  RequestGrants

	valid bool
	err   *Error
}

func ValidTokenRequest(msg Message, grants RequestGrants) TokenRequest {
	return TokenRequest{Message: msg, Grants: grants, valid: true}
}

func InvalidTokenRequest(msg Message, err *Error) TokenRequest {
	return TokenRequest{Message: msg, err: err}
}

func (r TokenRequest) IsValid() bool { return r.valid }
func (r TokenRequest) Err() *Error   { return r.err }

// LogoutRequest is a validated (or failed) end-session request. When valid,
// RedirectURI holds the registered post-logout target (possibly empty when
// the client did not ask for a redirect).
type LogoutRequest struct {
	Message     Message
	RedirectURI string

	valid bool
	err   *Error
}

func ValidLogoutRequest(msg Message, redirectURI string) LogoutRequest {
	return LogoutRequest{Message: msg, RedirectURI: redirectURI, valid: true}
}

func InvalidLogoutRequest(msg Message, err *Error) LogoutRequest {
	return LogoutRequest{Message: msg, err: err.WithState(msg.State)}
}

func (r LogoutRequest) IsValid() bool { return r.valid }
func (r LogoutRequest) Err() *Error   { return r.err }
