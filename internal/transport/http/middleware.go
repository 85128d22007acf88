package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	a "github.com/you/matchday-booking/pkg/auth"

	"github.com/you/matchday-booking/internal/domain"
)

func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		tok := strings.TrimPrefix(h, "Bearer ")
		claims, err := a.ParseValidate(tok)
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Set("sub", claims.Sub)
		c.Set("name", claims.Name)
		c.Set("phone", claims.Phone)
		c.Set("email", claims.Email)
		c.Next()
	}
}

func requester(c *gin.Context) domain.Requester {
	return domain.Requester{
		ID:    c.GetString("sub"),
		Name:  c.GetString("name"),
		Phone: c.GetString("phone"),
		Email: c.GetString("email"),
	}
}
