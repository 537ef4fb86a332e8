package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const userKey = "auth.user"

// Authenticate rejects requests without a valid bearer token and stores the
// caller for later handlers.
func Authenticate(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := BearerToken(c.GetHeader("Authorization"))
		if err == nil {
			var u User
			if u, err = v.Verify(token); err == nil {
				c.Set(userKey, u)
				c.Request = c.Request.WithContext(WithUser(c.Request.Context(), u))
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthenticated", "message": "missing or invalid bearer token"})
	}
}

// Authorize checks the caller's role against the route policy.
func Authorize(p *Policy, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthenticated", "message": "missing or invalid bearer token"})
			return
		}
		allowed, err := p.Allowed(u, c.Request.URL.Path, c.Request.Method)
		if err != nil {
			log.WithError(err).Error("policy evaluation failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "InternalError", "message": "internal error"})
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "AccessDenied", "message": "access denied"})
			return
		}
		c.Next()
	}
}

func CurrentUser(c *gin.Context) (User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return User{}, false
	}
	u, ok := v.(User)
	return u, ok
}
