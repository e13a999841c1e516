// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/od-approval-backend/internal/i18n"
)

func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := i18n.DefaultLanguage()

		// Handle cases like "ta-IN,ta;q=0.9,en;q=0.8"
		for _, candidate := range strings.Split(c.GetHeader("Accept-Language"), ",") {
			tag := strings.TrimSpace(strings.Split(candidate, ";")[0])
			if tag == "" {
				continue
			}
			base := strings.ToLower(strings.SplitN(strings.ReplaceAll(tag, "_", "-"), "-", 2)[0])
			if i18n.Supported(base) {
				lang = base
				break
			}
		}

		// Set language in context
		c.Set("lang", lang)
		c.Next()
	}
}
