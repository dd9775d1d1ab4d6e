package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// TokenValidator checks the registered claims of an access token and the
// role it grants.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
	// Roles lists the accepted role claim values. Empty accepts any role.
	Roles []string
}

// Validate returns an error when tok was signed with an unexpected
// algorithm, is outside its validity window, targets another issuer or
// audience, has no subject, or carries a role outside Roles.
func (v TokenValidator) Validate(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) error {
	if tok == nil {
		return errors.New("auth: token is nil")
	}
	if algorithm == "" {
		return errors.New("auth: token missing algorithm")
	}
	if v.Algorithm != "" && algorithm != v.Algorithm {
		return fmt.Errorf("auth: unexpected token algorithm %s", algorithm)
	}

	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithRequiredClaim(jwt.SubjectKey),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	if len(v.Roles) > 0 {
		options = append(options, jwt.WithValidator(jwt.ValidatorFunc(v.validateRole)))
	}
	return jwt.Validate(tok, options...)
}

func (v TokenValidator) validateRole(_ context.Context, tok jwt.Token) jwt.ValidationError {
	raw, ok := tok.Get(roleClaim)
	if !ok {
		return jwt.NewValidationError(errors.New(`"role" not satisfied: required claim not found`))
	}
	role, ok := raw.(string)
	if !ok || !slices.Contains(v.Roles, role) {
		return jwt.NewValidationError(fmt.Errorf(`"role" not satisfied: unexpected value %v`, raw))
	}
	return nil
}
