package httpapi

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

func TestAuthenticatorRoundTrip(t *testing.T) {
	t.Parallel()

	a := NewAuthenticator("secret", "bakery")
	tok, err := a.Issue("user-1", domain.RoleAdmin, time.Hour)
	require.NoError(t, err)

	requester, err := a.Parse(tok)
	require.NoError(t, err)
	require.Equal(t, "user-1", requester.UserID)
	require.True(t, requester.IsAdmin())
}

func TestAuthenticatorRejects(t *testing.T) {
	t.Parallel()

	a := NewAuthenticator("secret", "")
	sign := func(claims Claims, method jwt.SigningMethod, key any) string {
		tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return tok
	}
	valid := jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	expired, err := a.Issue("user-1", domain.RoleCustomer, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "abc.def.ghi"},
		{name: "expired", token: expired},
		{name: "unknown role", token: sign(Claims{Role: "root", RegisteredClaims: valid}, jwt.SigningMethodHS256, []byte("secret"))},
		{name: "no subject", token: sign(Claims{Role: "customer"}, jwt.SigningMethodHS256, []byte("secret"))},
		{name: "other algorithm", token: sign(Claims{RegisteredClaims: valid}, jwt.SigningMethodHS512, []byte("secret"))},
		{name: "wrong key", token: sign(Claims{RegisteredClaims: valid}, jwt.SigningMethodHS256, []byte("nope"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Parse(tt.token)
			require.Error(t, err)
			require.True(t, errors.Is(err, errInvalidToken))
		})
	}
}

func TestAuthenticatorDefaultsRoleToCustomer(t *testing.T) {
	t.Parallel()

	a := NewAuthenticator("secret", "")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-2"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	requester, err := a.Parse(tok)
	require.NoError(t, err)
	require.Equal(t, domain.RoleCustomer, requester.Role)
}

func TestNilAuthenticator(t *testing.T) {
	t.Parallel()

	a := NewAuthenticator("  ", "")
	require.Nil(t, a)
	_, err := a.Parse("x")
	require.ErrorIs(t, err, errInvalidToken)
	_, err = a.Issue("u", domain.RoleCustomer, time.Minute)
	require.Error(t, err)
}

func TestRequestHashDependsOnActorAndBody(t *testing.T) {
	t.Parallel()

	base := requestHash("POST", "/orders", "user-1", []byte(`{"a":1}`))
	require.Equal(t, base, requestHash("POST", "/orders", "user-1", []byte(" {\"a\":1}\n")))
	require.NotEqual(t, base, requestHash("POST", "/orders", "user-2", []byte(`{"a":1}`)))
	require.NotEqual(t, base, requestHash("POST", "/payments", "user-1", []byte(`{"a":1}`)))
	require.NotEqual(t, base, requestHash("POST", "/orders", "user-1", []byte(`{"a":2}`)))
}

func TestClassifyHidesInternalErrors(t *testing.T) {
	t.Parallel()

	status, body := classify(errors.New("pq: connection refused to 10.0.0.1"))
	require.Equal(t, 500, status)
	require.Equal(t, CodeInternal, body.Code)
	require.NotContains(t, body.Message, "10.0.0.1")

	status, body = classify(errors.Join(domain.ErrConstraintViolation, errors.New("orders_pkey")))
	require.Equal(t, 400, status)
	require.Equal(t, CodeDatabase, body.Code)
	require.NotContains(t, body.Message, "orders_pkey")
}
