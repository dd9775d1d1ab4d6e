package auth

import (
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
)

func buildToken(t *testing.T, now time.Time, mutate func(*jwt.Builder) *jwt.Builder) jwt.Token {
	t.Helper()
	b := jwt.NewBuilder().
		Issuer("farmbridge").
		Audience([]string{"farmbridge-web"}).
		Subject("user-1").
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(time.Minute)).
		Claim(roleClaim, "buyer")
	if mutate != nil {
		b = mutate(b)
	}
	tok, err := b.Build()
	require.NoError(t, err)
	return tok
}

func testValidator() TokenValidator {
	return TokenValidator{
		Issuer:    "farmbridge",
		Audience:  "farmbridge-web",
		ClockSkew: time.Second,
		Algorithm: jwa.HS256,
		Roles:     []string{"farmer", "buyer"},
	}
}

func TestTokenValidatorAcceptsWellFormedToken(t *testing.T) {
	now := time.Now()
	require.NoError(t, testValidator().Validate(buildToken(t, now, nil), jwa.HS256, now))
}

func TestTokenValidatorRejects(t *testing.T) {
	now := time.Now()
	cases := map[string]struct {
		mutate    func(*jwt.Builder) *jwt.Builder
		algorithm jwa.SignatureAlgorithm
	}{
		"issuer":   {mutate: func(b *jwt.Builder) *jwt.Builder { return b.Issuer("other") }},
		"audience": {mutate: func(b *jwt.Builder) *jwt.Builder { return b.Audience([]string{"mobile"}) }},
		"expired": {mutate: func(b *jwt.Builder) *jwt.Builder {
			return b.IssuedAt(now.Add(-2 * time.Hour)).NotBefore(now.Add(-2 * time.Hour)).Expiration(now.Add(-time.Minute))
		}},
		"not yet valid": {mutate: func(b *jwt.Builder) *jwt.Builder { return b.NotBefore(now.Add(5 * time.Minute)) }},
		"unknown role":  {mutate: func(b *jwt.Builder) *jwt.Builder { return b.Claim(roleClaim, "admin") }},
		"algorithm":     {algorithm: jwa.RS256},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			alg := tc.algorithm
			if alg == "" {
				alg = jwa.HS256
			}
			require.Error(t, testValidator().Validate(buildToken(t, now, tc.mutate), alg, now))
		})
	}
}

func TestTokenValidatorRequiresSubject(t *testing.T) {
	now := time.Now()
	tok, err := jwt.NewBuilder().
		Issuer("farmbridge").
		Audience([]string{"farmbridge-web"}).
		Expiration(now.Add(time.Minute)).
		Claim(roleClaim, "farmer").
		Build()
	require.NoError(t, err)
	require.Error(t, testValidator().Validate(tok, jwa.HS256, now))
}
