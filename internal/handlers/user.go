package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/anonto42/nano-midea/user-service/internal/models"
	"github.com/anonto42/nano-midea/user-service/internal/storage"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// UserService is what the user endpoints need from the profile service
type UserService interface {
	CreateUser(ctx context.Context, req models.CreateUserRequest) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, req models.UpdateUserRequest) (*models.User, error)
	UpdateUserByUsername(ctx context.Context, username string, req models.UpdateUserRequest) (*models.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	SearchUsers(ctx context.Context, query string) ([]models.User, error)
	UploadAvatar(ctx context.Context, id uuid.UUID, asset storage.Asset) (*models.User, error)
	UploadCoverImage(ctx context.Context, id uuid.UUID, asset storage.Asset) (*models.User, error)
	DeleteAvatar(ctx context.Context, id uuid.UUID) (*models.User, error)
	DeleteCoverImage(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// UserHandler handles HTTP requests related to users
type UserHandler struct {
	users  UserService
	logger *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// RegisterUserRoutes registers user profile routes. mw guards the routes
// that change state.
func (h *UserHandler) RegisterUserRoutes(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.GET("/users/search", h.SearchUsers)
	g.GET("/users/id/:id", h.GetUserByID)
	g.GET("/users/:username", h.GetUserByUsername)

	g.POST("/users", h.CreateUser, mw...)
	g.PATCH("/users/username/:username", h.UpdateUserByUsername, mw...)
	g.PATCH("/users/:id", h.UpdateUser, mw...)
	g.DELETE("/users/:id", h.DeleteUser, mw...)

	g.POST("/users/:id/avatar", h.UploadAvatar, mw...)
	g.DELETE("/users/:id/avatar", h.DeleteAvatar, mw...)
	g.POST("/users/:id/coverImage", h.UploadCoverImage, mw...)
	g.DELETE("/users/:id/coverImage", h.DeleteCoverImage, mw...)
}

func (h *UserHandler) GetUserByUsername(c echo.Context) error {
	user, err := h.users.GetUserByUsername(c.Request().Context(), c.Param("username"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, user.ToResponse())
}

func (h *UserHandler) GetUserByID(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	user, err := h.users.GetUserByID(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, user.ToResponse())
}

// CreateUser registers a profile for an identity created elsewhere
func (h *UserHandler) CreateUser(c echo.Context) error {
	var req models.CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, err := h.users.CreateUser(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, user.ToResponse())
}

func (h *UserHandler) UpdateUser(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	req, err := bindUpdate(c)
	if err != nil {
		return err
	}

	user, err := h.users.UpdateUser(c.Request().Context(), id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, user.ToResponse())
}

func (h *UserHandler) UpdateUserByUsername(c echo.Context) error {
	req, err := bindUpdate(c)
	if err != nil {
		return err
	}

	user, err := h.users.UpdateUserByUsername(c.Request().Context(), c.Param("username"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, user.ToResponse())
}

func bindUpdate(c echo.Context) (models.UpdateUserRequest, error) {
	var req models.UpdateUserRequest
	if err := c.Bind(&req); err != nil {
		return req, echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return req, err
	}
	return req, nil
}

func (h *UserHandler) DeleteUser(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.users.DeleteUser(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SearchUsers returns users matching ?query=, best match first
func (h *UserHandler) SearchUsers(c echo.Context) error {
	query := c.QueryParam("query")
	if strings.TrimSpace(query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Search query is required")
	}

	users, err := h.users.SearchUsers(c.Request().Context(), query)
	if err != nil {
		h.logger.Error("user search failed", zap.String("query", query), zap.Error(err))
		return httpError(err)
	}
	return c.JSON(http.StatusOK, models.ToResponses(users))
}

func (h *UserHandler) UploadAvatar(c echo.Context) error {
	return h.upload(c, models.AvatarSlot, h.users.UploadAvatar)
}

func (h *UserHandler) UploadCoverImage(c echo.Context) error {
	return h.upload(c, models.CoverSlot, h.users.UploadCoverImage)
}

type uploadFunc func(ctx context.Context, id uuid.UUID, asset storage.Asset) (*models.User, error)

// upload reads the multipart "file" field and hands it to fn
func (h *UserHandler) upload(c echo.Context, slot models.AssetSlot, fn uploadFunc) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	file, err := c.FormFile("file")
	if err != nil || file.Size == 0 {
		return c.JSON(http.StatusBadRequest, statusResponse(false, "No file provided"))
	}
	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, statusResponse(false, "Failed to read file"))
	}
	defer src.Close()

	user, err := fn(c.Request().Context(), id, storage.Asset{
		Body:        src,
		ContentType: file.Header.Get(echo.HeaderContentType),
		Filename:    file.Filename,
	})
	if err != nil {
		he := httpError(err)
		msg, _ := he.Message.(string)
		return c.JSON(he.Code, statusResponse(false, "Failed to upload "+string(slot)+": "+msg))
	}

	body := statusResponse(true, uploadMessage(slot))
	if slot == models.CoverSlot {
		body["coverImageUrl"] = user.CoverImageURL
	} else {
		body["avatarUrl"] = user.AvatarURL
	}
	body["user"] = user.ToResponse()
	return c.JSON(http.StatusOK, body)
}

func uploadMessage(slot models.AssetSlot) string {
	if slot == models.CoverSlot {
		return "Cover image uploaded successfully"
	}
	return "Avatar uploaded successfully"
}

func (h *UserHandler) DeleteAvatar(c echo.Context) error {
	return h.deleteAsset(c, h.users.DeleteAvatar)
}

func (h *UserHandler) DeleteCoverImage(c echo.Context) error {
	return h.deleteAsset(c, h.users.DeleteCoverImage)
}

func (h *UserHandler) deleteAsset(c echo.Context, fn func(ctx context.Context, id uuid.UUID) (*models.User, error)) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	user, err := fn(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, user.ToResponse())
}
