package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CacheConfig describes the Cache-Control policy of a route group.
type CacheConfig struct {
	MaxAge  int
	Private bool
	NoStore bool
	Vary    []string
}

// NoStoreCacheConfig is used for responses carrying tokens, invite links or
// PIX codes.
func NoStoreCacheConfig() CacheConfig {
	return CacheConfig{
		Private: true,
		NoStore: true,
		Vary:    []string{"Authorization"},
	}
}

// Cache adds cache control headers to responses. Anything but GET is never
// stored.
func Cache(config CacheConfig) gin.HandlerFunc {
	value := cacheControl(config)
	vary := strings.Join(config.Vary, ", ")

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Header("Cache-Control", "no-store")
		} else if value != "" {
			c.Header("Cache-Control", value)
		}
		if vary != "" {
			c.Writer.Header().Add("Vary", vary)
		}
		c.Next()
	}
}

func cacheControl(config CacheConfig) string {
	directives := make([]string, 0, 3)
	if config.Private {
		directives = append(directives, "private")
	} else {
		directives = append(directives, "public")
	}
	if config.NoStore {
		directives = append(directives, "no-store")
	} else if config.MaxAge > 0 {
		directives = append(directives, "max-age="+strconv.Itoa(config.MaxAge))
	}
	return strings.Join(directives, ", ")
}
