package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/anonto42/nano-midea/user-service/internal/apperr"
	"github.com/anonto42/nano-midea/user-service/internal/proxy"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ImageProxy fetches images the service owns
type ImageProxy interface {
	FetchIfOwned(ctx context.Context, rawURL string) (*proxy.Asset, error)
}

// ImageHandler relays stored images through the API origin
type ImageHandler struct {
	proxy  ImageProxy
	logger *zap.Logger
}

// NewImageHandler creates a new ImageHandler
func NewImageHandler(p ImageProxy, logger *zap.Logger) *ImageHandler {
	return &ImageHandler{proxy: p, logger: logger}
}

// RegisterImageRoutes registers image routes
func (h *ImageHandler) RegisterImageRoutes(g *echo.Group) {
	g.GET("/images/proxy", h.ProxyImage)
}

// ProxyImage streams ?url= when it points into the image bucket. Anything
// outside the bucket is a 400; a failed fetch is a 404.
func (h *ImageHandler) ProxyImage(c echo.Context) error {
	rawURL := c.QueryParam("url")

	asset, err := h.proxy.FetchIfOwned(c.Request().Context(), rawURL)
	if errors.Is(err, apperr.ErrValidation) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		h.logger.Warn("failed to proxy image", zap.String("url", rawURL), zap.Error(err))
		return echo.NewHTTPError(http.StatusNotFound, "Image not found")
	}
	defer asset.Body.Close()

	return c.Stream(http.StatusOK, asset.ContentType, asset.Body)
}
