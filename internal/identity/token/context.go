package token

import (
	"errors"
	"fmt"
	"slices"

	"github.com/brightlock/identity/internal/identity/domain"
	"github.com/brightlock/identity/internal/identity/protocol"
)

var (
	// ErrNoCurrentToken reports a claim write without InitializeForToken
	// having been called first.
	ErrNoCurrentToken = errors.New("token: no token kind is being generated")

	// ErrKindMismatch reports AddToken with a result whose kind differs from
	// the kind currently being generated.
	ErrKindMismatch = errors.New("token: result kind does not match the current kind")

	// ErrKindAlreadyIssued reports a second InitializeForToken for a kind
	// that already produced a result in this context.
	ErrKindAlreadyIssued = errors.New("token: kind already issued in this context")
)

// GeneratingContext is the per-request workspace for token generation. It
// threads the authenticated principals, the protocol message, and the
// resolved grants through the claims providers, accumulating one token kind
// at a time.
//
// Claims added while a kind is current are scoped to that kind only:
// InitializeForToken resets the scratch buffer and AddToken freezes it into
// an immutable result. The context is request-scoped and never shared across
// goroutines, so no locking happens here.
type GeneratingContext struct {
	User        domain.User
	Application domain.Application
	Message     protocol.Message
	Grants      protocol.RequestGrants

	// SigningAlgorithm is the JWS algorithm the manager will sign with,
	// available to providers that derive hash claims from it.
	SigningAlgorithm string

	ambient    []Claim
	results    []TokenResult
	current    Kind
	hasCurrent bool
	scratch    []Claim
}

// NewGeneratingContext builds a context for one authorize/token request.
func NewGeneratingContext(user domain.User, app domain.Application, msg protocol.Message, grants protocol.RequestGrants) *GeneratingContext {
	return &GeneratingContext{
		User:        user,
		Application: app,
		Message:     msg,
		Grants:      grants,
	}
}

// AddAmbientClaims registers host-supplied claims (tenant, policy, version)
// that the ambient provider folds into every issued token.
func (c *GeneratingContext) AddAmbientClaims(claims ...Claim) {
	c.ambient = append(c.ambient, claims...)
}

// AmbientClaims returns the registered ambient claims.
func (c *GeneratingContext) AmbientClaims() []Claim {
	return slices.Clone(c.ambient)
}

// InitializeForToken begins accumulation for a token kind, clearing the
// scratch buffer. Re-initializing a kind that already produced a result is
// an invariant violation.
func (c *GeneratingContext) InitializeForToken(kind Kind) error {
	if _, issued := c.IssuedToken(kind); issued {
		return fmt.Errorf("%w: %s", ErrKindAlreadyIssued, kind)
	}
	c.current = kind
	c.hasCurrent = true
	c.scratch = c.scratch[:0]
	return nil
}

// CurrentKind returns the kind being generated, if any.
func (c *GeneratingContext) CurrentKind() (Kind, bool) {
	return c.current, c.hasCurrent
}

// AddClaims appends claims to the current token's scratch set. Providers are
// the only callers.
func (c *GeneratingContext) AddClaims(claims ...Claim) error {
	if !c.hasCurrent {
		return ErrNoCurrentToken
	}
	c.scratch = append(c.scratch, claims...)
	return nil
}

// CurrentClaims returns a copy of the in-progress claim set for the active
// kind. Claims of other, not-yet-finalized kinds are not reachable.
func (c *GeneratingContext) CurrentClaims() []Claim {
	return slices.Clone(c.scratch)
}

// AddToken finalizes the current kind with its produced result, making it
// visible to later providers, and clears the scratch state.
func (c *GeneratingContext) AddToken(result TokenResult) error {
	if !c.hasCurrent {
		return ErrNoCurrentToken
	}
	if result.Token.Kind() != c.current {
		return fmt.Errorf("%w: current %s, result %s", ErrKindMismatch, c.current, result.Token.Kind())
	}

	c.results = append(c.results, result)
	c.hasCurrent = false
	c.scratch = c.scratch[:0]
	return nil
}

// IssuedToken returns the already-issued result of the given kind.
func (c *GeneratingContext) IssuedToken(kind Kind) (TokenResult, bool) {
	for _, r := range c.results {
		if r.Token.Kind() == kind {
			return r, true
		}
	}
	return TokenResult{}, false
}

// Results returns the full ordered set of issued results.
func (c *GeneratingContext) Results() []TokenResult {
	return slices.Clone(c.results)
}
