// Package auth verifies bearer tokens issued by the identity provider.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/databanana-backend/internal/platform/envutil"
)

const defaultLeeway = 30 * time.Second

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	Subject   string
	Email     string
	Issuer    string
	ExpiresAt time.Time
}

type Config struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// Secret enables HS256 verification instead of JWKS.
	Secret string
}

func LoadConfig() Config {
	return Config{
		Issuer:   envutil.String("AUTH_ISSUER", ""),
		Audience: envutil.String("AUTH_AUDIENCE", ""),
		JWKSURL:  envutil.String("AUTH_JWKS_URL", ""),
		Secret:   envutil.String("AUTH_JWT_SECRET", ""),
	}
}

type Verifier struct {
	keyfunc jwt.Keyfunc
	parser  *jwt.Parser
}

// NewVerifier uses the JWKS of the issuer unless a shared secret is set.
func NewVerifier(cfg Config) (*Verifier, error) {
	opts := []jwt.ParserOption{jwt.WithLeeway(defaultLeeway), jwt.WithExpirationRequired()}
	issuer := normalizeIssuer(cfg.Issuer)
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	if cfg.Secret != "" {
		secret := []byte(cfg.Secret)
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
		return &Verifier{
			keyfunc: func(*jwt.Token) (any, error) { return secret, nil },
			parser:  jwt.NewParser(opts...),
		}, nil
	}

	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		if issuer == "" {
			return nil, errors.New("AUTH_ISSUER, AUTH_JWKS_URL or AUTH_JWT_SECRET must be set")
		}
		jwksURL = issuer + ".well-known/jwks.json"
	}
	keyProvider, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to init JWKS keyfunc: %w", err)
	}
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name, jwt.SigningMethodRS384.Name, jwt.SigningMethodRS512.Name}))
	return &Verifier{keyfunc: keyProvider.Keyfunc, parser: jwt.NewParser(opts...)}, nil
}

func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	token, err := v.parser.Parse(tokenString, v.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims := &Claims{
		Subject: readString(mapClaims, "sub"),
		Email:   readString(mapClaims, "email"),
		Issuer:  readString(mapClaims, "iss"),
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token missing sub", ErrInvalidToken)
	}
	return claims, nil
}

func normalizeIssuer(issuer string) string {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return ""
	}
	if !strings.HasSuffix(issuer, "/") {
		issuer += "/"
	}
	return issuer
}

func readString(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return s
	}
	return ""
}
