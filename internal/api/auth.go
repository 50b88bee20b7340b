package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"perp-gateway/internal/auth"
)

const walletContextKey = "Wallet"

// AuthMiddleware enforces bearer tokens. allowQuery also accepts ?token= for
// websocket clients that cannot set headers.
func (s *Server) AuthMiddleware(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.ParseBearer(c.GetHeader("Authorization"))
		if !ok && allowQuery {
			token = c.Query("token")
			ok = token != ""
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "MISSING_TOKEN",
				"error": "missing or malformed Authorization header",
			})
			return
		}

		wallet, valid := s.Auth.Verify(token)
		if !valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "INVALID_TOKEN",
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(walletContextKey, wallet)
		c.Next()
	}
}

// CurrentWallet returns the authenticated wallet from context.
func CurrentWallet(c *gin.Context) string {
	if v, ok := c.Get(walletContextKey); ok {
		if w, okCast := v.(string); okCast {
			return w
		}
	}
	return ""
}

type loginRequest struct {
	Wallet    string `json:"wallet" binding:"required"`
	Timestamp int64  `json:"timestamp" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// login exchanges a signed login message for a bearer token.
func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "wallet, timestamp and signature are required")
		return
	}
	if err := s.Auth.VerifyLogin(req.Wallet, req.Timestamp, req.Signature); err != nil {
		s.Log.WithField("wallet", req.Wallet).WithError(err).Warn("login rejected")
		respondError(c, http.StatusUnauthorized, "AUTH_INVALID", "signature verification failed")
		return
	}

	token, expiresAt, err := s.Auth.Issue(req.Wallet, s.opts.TokenTTL)
	if err != nil {
		respondErr(c, err)
		return
	}
	wallet, _ := s.Auth.Verify(token)
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"wallet":     wallet,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}
