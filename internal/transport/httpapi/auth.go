package httpapi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

const (
	headerSessionID = "X-Session-ID"
	ctxRequesterKey = "bakery.requester"
)

var errInvalidToken = errors.New("invalid bearer token")

// Claims: полезная нагрузка JWT, sub хранит идентификатор пользователя, role его роль.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator выпускает и проверяет токены HS256.
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator возвращает nil для пустого секрета: тогда все запросы гостевые.
func NewAuthenticator(secret, issuer string) *Authenticator {
	if strings.TrimSpace(secret) == "" {
		return nil
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// Issue подписывает токен для пользователя.
func (a *Authenticator) Issue(userID string, role domain.Role, ttl time.Duration) (string, error) {
	if a == nil {
		return "", errors.New("authenticator is not configured")
	}
	now := time.Now().UTC()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse проверяет подпись и срок действия токена и возвращает запрашивающего.
func (a *Authenticator) Parse(raw string) (domain.Requester, error) {
	if a == nil {
		return domain.Requester{}, fmt.Errorf("%w: authentication is not configured", errInvalidToken)
	}

	var claims Claims
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if _, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...); err != nil {
		return domain.Requester{}, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if claims.Subject == "" {
		return domain.Requester{}, fmt.Errorf("%w: subject is empty", errInvalidToken)
	}

	role := domain.Role(claims.Role)
	switch role {
	case domain.RoleAdmin, domain.RoleCustomer:
	case "":
		role = domain.RoleCustomer
	default:
		return domain.Requester{}, fmt.Errorf("%w: unknown role %q", errInvalidToken, claims.Role)
	}
	return domain.Requester{UserID: claims.Subject, Role: role}, nil
}

// authenticate кладёт запрашивающего в контекст. Без заголовка Authorization
// запрос гостевой; некорректный токен отклоняется с 401.
func authenticate(a *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			c.Set(ctxRequesterKey, domain.Requester{Role: domain.RoleGuest})
			c.Next()
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			respondError(c, fmt.Errorf("%w: malformed authorization header", domain.ErrUnauthenticated))
			return
		}
		requester, err := a.Parse(strings.TrimSpace(token))
		if err != nil {
			respondError(c, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err))
			return
		}
		c.Set(ctxRequesterKey, requester)
		c.Next()
	}
}

// requireAdmin пропускает только администраторов.
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		requester := requesterFrom(c, "")
		if !requester.Authenticated() {
			respondError(c, domain.ErrUnauthenticated)
			return
		}
		if !requester.IsAdmin() {
			respondError(c, domain.ErrForbidden)
			return
		}
		c.Next()
	}
}

// requesterFrom возвращает запрашивающего с идентификатором сессии из тела,
// query-параметра sessionId или заголовка X-Session-ID.
func requesterFrom(c *gin.Context, bodySessionID string) domain.Requester {
	requester := domain.Requester{Role: domain.RoleGuest}
	if v, ok := c.Get(ctxRequesterKey); ok {
		if r, ok := v.(domain.Requester); ok {
			requester = r
		}
	}

	session := strings.TrimSpace(bodySessionID)
	if session == "" {
		session = strings.TrimSpace(c.Query("sessionId"))
	}
	if session == "" {
		session = strings.TrimSpace(c.GetHeader(headerSessionID))
	}
	requester.SessionID = session
	return requester
}
