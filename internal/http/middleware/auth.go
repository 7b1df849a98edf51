package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/databanana-backend/internal/domain"
	"github.com/yungbote/databanana-backend/internal/platform/auth"
	"github.com/yungbote/databanana-backend/internal/platform/ctxutil"
	"github.com/yungbote/databanana-backend/internal/platform/logger"
)

const headerDevUser = "X-Dev-User"

type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type UserResolver interface {
	Resolve(ctx context.Context, externalID, email string) (*domain.User, error)
}

type AuthMiddleware struct {
	log      *logger.Logger
	verifier TokenVerifier
	users    UserResolver
	// disabled trusts the X-Dev-User header instead of a token. Local only.
	disabled bool
}

func NewAuthMiddleware(log *logger.Logger, verifier TokenVerifier, users UserResolver, disabled bool) *AuthMiddleware {
	mwLog := log.With("middleware", "AuthMiddleware")
	if disabled {
		mwLog.Warn("auth disabled; trusting X-Dev-User header")
	}
	return &AuthMiddleware{log: mwLog, verifier: verifier, users: users, disabled: disabled}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := am.claims(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": err.Error(), "code": "unauthorized"},
			})
			return
		}
		u, err := am.users.Resolve(c.Request.Context(), claims.Subject, claims.Email)
		if err != nil || u == nil || u.ID == uuid.Nil {
			am.log.Warn("user resolve failed", "subject", claims.Subject, "error", err)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"message": "forbidden", "code": "forbidden"},
			})
			return
		}

		ctx := c.Request.Context()
		rd := ctxutil.GetRequestData(ctx)
		if rd == nil {
			rd = &ctxutil.RequestData{}
			ctx = ctxutil.WithRequestData(ctx, rd)
		}
		rd.UserID = u.ID
		rd.ExternalID = claims.Subject
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (am *AuthMiddleware) claims(c *gin.Context) (*auth.Claims, error) {
	if am.disabled {
		sub := strings.TrimSpace(c.GetHeader(headerDevUser))
		if sub == "" {
			sub = strings.TrimSpace(c.Query("dev_user"))
		}
		if sub == "" {
			sub = "dev-user"
		}
		return &auth.Claims{Subject: sub, Email: sub + "@localhost"}, nil
	}
	token := extractTokenFromAll(c)
	if token == "" {
		return nil, errors.New("missing or invalid token")
	}
	if am.verifier == nil {
		return nil, errors.New("token verification not configured")
	}
	return am.verifier.Verify(token)
}

// UserID returns the authenticated user of the request.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		return uuid.Nil, false
	}
	return rd.UserID, true
}

// extractTokenFromAll accepts ?token= for EventSource clients, which cannot
// set headers.
func extractTokenFromAll(c *gin.Context) string {
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
