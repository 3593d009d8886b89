package rest

import (
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/natours/tours-rest/http_errors"
)

// StaticConfig describes a directory of public assets such as tour images
// and user photos.
type StaticConfig struct {
	Prefix    string        // URL prefix, "/" when empty.
	Directory string        // Directory to serve.
	MaxAge    time.Duration // Cache lifetime of images and stylesheets. Zero disables caching.
}

var assetExtensions = []string{".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico", ".woff", ".woff2"}

func isAssetFile(path string) bool {
	return slices.Contains(assetExtensions, strings.ToLower(filepath.Ext(path)))
}

// staticHeaders sets security headers on every file and cache headers on
// assets.
func (config StaticConfig) staticHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Response().Header()
			header.Set("X-Content-Type-Options", "nosniff")
			header.Set("Referrer-Policy", "strict-origin-when-cross-origin")

			if config.MaxAge > 0 && isAssetFile(c.Request().URL.Path) {
				header.Set("Cache-Control", "public, max-age="+strconv.Itoa(int(config.MaxAge.Seconds())))
			} else {
				header.Set("Cache-Control", "no-cache")
			}
			return next(c)
		}
	}
}

// ServeStatic serves a directory of public files. Unknown files fall through
// to the regular not found answer.
func (receiver *RestApp) ServeStatic(config StaticConfig) error {
	if config.Directory == "" {
		return http_errors.UnexpectedError(os.ErrInvalid)
	}
	info, err := os.Stat(config.Directory)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return http_errors.UnexpectedError(&os.PathError{Op: "serve", Path: config.Directory, Err: os.ErrInvalid})
	}
	if config.Prefix == "" {
		config.Prefix = "/"
	}

	receiver.Infof("Serving static files from %s at %s", config.Directory, config.Prefix)

	group := receiver.EchoApp.Group(strings.TrimSuffix(config.Prefix, "/"))
	group.Use(config.staticHeaders())
	group.Use(middleware.StaticWithConfig(middleware.StaticConfig{Root: config.Directory}))
	return nil
}
