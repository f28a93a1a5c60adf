package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "finpay-ledger/internal/errors"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Claims carries the account id in the subject and an optional role.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the caller resolved from a bearer token.
type Identity struct {
	AccountID uuid.UUID
	Role      string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanAccess reports whether the caller may read data of the given account.
func (i Identity) CanAccess(accountID uuid.UUID) bool {
	return i.IsAdmin() || i.AccountID == accountID
}

type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(secret, issuer string) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("jwt_secret must be set")
	}
	return &Authenticator{
		secret: []byte(secret),
		issuer: issuer,
	}, nil
}

// IssueToken signs an HS256 token for accountID valid for ttl.
func (a *Authenticator) IssueToken(accountID uuid.UUID, role string, ttl time.Duration) (string, error) {
	if role == "" {
		role = RoleUser
	}
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify checks the signature, issuer and expiry of token and returns the
// identity it names.
func (a *Authenticator) Verify(token string) (Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, apperrors.ErrUnauthorized.WithDetails(err.Error())
	}

	accountID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, apperrors.ErrUnauthorized.WithDetails("subject is not an account id")
	}

	role := claims.Role
	if role == "" {
		role = RoleUser
	}
	return Identity{AccountID: accountID, Role: role}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type contextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}
