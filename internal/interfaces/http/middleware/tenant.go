package middleware

import (
	"errors"
	"strings"

	"github.com/erp/invoicing/internal/infrastructure/auth"
	"github.com/erp/invoicing/internal/infrastructure/logger"
	"github.com/erp/invoicing/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Gin context keys set by Tenant
const (
	TenantIDKey  = logger.GinTenantIDKey
	JWTClaimsKey = "jwt_claims"
)

const bearerPrefix = "Bearer "

// TenantConfig configures tenant resolution
type TenantConfig struct {
	// JWT validates bearer tokens. Nil or disabled means X-Tenant-ID only.
	JWT *auth.JWTService
	// RequireToken rejects requests without a bearer token
	RequireToken bool
	// SkipPaths are served without a tenant
	SkipPaths []string
	Logger    *zap.Logger
}

// Tenant resolves the tenant of every request. A valid bearer token is
// authoritative; an X-Tenant-ID header naming another tenant is refused.
// Without a token the header alone identifies the tenant, unless
// RequireToken is set.
func Tenant(cfg TenantConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	tokens := cfg.JWT != nil && cfg.JWT.Enabled()

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skip := range cfg.SkipPaths {
			if path == skip || strings.HasPrefix(path, skip+"/") {
				c.Next()
				return
			}
		}

		header := strings.TrimSpace(c.GetHeader(TenantHeader))
		var tenantID uuid.UUID

		authz := c.GetHeader("Authorization")
		switch {
		case tokens && strings.HasPrefix(authz, bearerPrefix):
			claims, err := cfg.JWT.ValidateToken(strings.TrimSpace(strings.TrimPrefix(authz, bearerPrefix)))
			if err != nil {
				log.Warn("Bearer token rejected", zap.Error(err), zap.String("path", path))
				abortAuth(c, err)
				return
			}
			tenantID, _ = claims.TenantUUID()
			if header != "" && !strings.EqualFold(header, tenantID.String()) {
				abort(c, dto.ErrCodeForbidden, "X-Tenant-ID does not match the token")
				return
			}
			c.Set(JWTClaimsKey, claims)

		case cfg.RequireToken:
			abort(c, dto.ErrCodeUnauthorized, "Bearer token required")
			return

		default:
			if header == "" {
				abort(c, dto.ErrCodeUnauthorized, "Tenant required: send X-Tenant-ID or a bearer token")
				return
			}
			id, err := uuid.Parse(header)
			if err != nil || id == uuid.Nil {
				abort(c, dto.ErrCodeBadRequest, "X-Tenant-ID must be a UUID")
				return
			}
			tenantID = id
		}

		c.Set(TenantIDKey, tenantID.String())
		ctx := c.Request.Context()
		ctx, reqLogger := logger.WithTenantID(ctx, logger.FromContext(ctx), tenantID.String())
		c.Request = c.Request.WithContext(ctx)
		logger.SetGinLogger(c, reqLogger)
		c.Next()
	}
}

// GetTenantID returns the tenant resolved by Tenant
func GetTenantID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetString(TenantIDKey))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// GetJWTClaims returns the validated token claims, if the tenant came from one
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(JWTClaimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

func abortAuth(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		abort(c, dto.ErrCodeTokenExpired, "Token has expired")
	case errors.Is(err, auth.ErrMissingTenantID):
		abort(c, dto.ErrCodeTokenInvalid, "Token carries no tenant")
	default:
		abort(c, dto.ErrCodeTokenInvalid, "Invalid token")
	}
}

func abort(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c), nil))
}
