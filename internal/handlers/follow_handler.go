package handlers

import (
	"context"
	"net/http"

	"github.com/anonto42/nano-midea/user-service/internal/models"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// FollowService is what the follow endpoints need from the profile service
type FollowService interface {
	Follow(ctx context.Context, followerID, followingID uuid.UUID) error
	Unfollow(ctx context.Context, followerID, followingID uuid.UUID) error
	IsFollowing(ctx context.Context, followerID, followingID uuid.UUID) (bool, error)
	GetFollowers(ctx context.Context, userID uuid.UUID) ([]models.User, error)
	GetFollowing(ctx context.Context, userID uuid.UUID) ([]models.User, error)
	GetFollowersCount(ctx context.Context, userID uuid.UUID) (int64, error)
	GetFollowingCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

// FollowHandler handles follow/unfollow HTTP requests
type FollowHandler struct {
	follows FollowService
	logger  *zap.Logger
}

// NewFollowHandler creates a new FollowHandler
func NewFollowHandler(follows FollowService, logger *zap.Logger) *FollowHandler {
	return &FollowHandler{follows: follows, logger: logger}
}

// RegisterFollowRoutes registers follow-related routes. mw guards the routes
// that change state.
func (h *FollowHandler) RegisterFollowRoutes(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.POST("/users/:followerId/follow/:followingId", h.FollowUser, mw...)
	g.DELETE("/users/:followerId/follow/:followingId", h.UnfollowUser, mw...)
	g.GET("/users/:followerId/following/:followingId", h.IsFollowing)

	g.GET("/users/:userId/followers", h.GetFollowers)
	g.GET("/users/:userId/following", h.GetFollowing)
	g.GET("/users/:userId/followers/count", h.GetFollowersCount)
	g.GET("/users/:userId/following/count", h.GetFollowingCount)
}

func (h *FollowHandler) edge(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	followerID, err := parseID(c, "followerId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	followingID, err := parseID(c, "followingId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return followerID, followingID, nil
}

// FollowUser makes followerId follow followingId
func (h *FollowHandler) FollowUser(c echo.Context) error {
	followerID, followingID, err := h.edge(c)
	if err != nil {
		return err
	}

	if err := h.follows.Follow(c.Request().Context(), followerID, followingID); err != nil {
		h.logger.Info("follow rejected",
			zap.String("followerId", followerID.String()),
			zap.String("followingId", followingID.String()),
			zap.Error(err),
		)
		he := httpError(err)
		msg, _ := he.Message.(string)
		return c.JSON(he.Code, statusResponse(false, msg))
	}
	return c.JSON(http.StatusOK, statusResponse(true, "User followed successfully"))
}

// UnfollowUser removes the edge; a missing edge is not an error
func (h *FollowHandler) UnfollowUser(c echo.Context) error {
	followerID, followingID, err := h.edge(c)
	if err != nil {
		return err
	}

	if err := h.follows.Unfollow(c.Request().Context(), followerID, followingID); err != nil {
		h.logger.Error("unfollow failed",
			zap.String("followerId", followerID.String()),
			zap.String("followingId", followingID.String()),
			zap.Error(err),
		)
		he := httpError(err)
		msg, _ := he.Message.(string)
		return c.JSON(he.Code, statusResponse(false, msg))
	}
	return c.JSON(http.StatusOK, statusResponse(true, "User unfollowed successfully"))
}

func (h *FollowHandler) IsFollowing(c echo.Context) error {
	followerID, followingID, err := h.edge(c)
	if err != nil {
		return err
	}

	ok, err := h.follows.IsFollowing(c.Request().Context(), followerID, followingID)
	if err != nil {
		h.logger.Error("follow check failed",
			zap.String("followerId", followerID.String()),
			zap.String("followingId", followingID.String()),
			zap.Error(err),
		)
		return c.JSON(http.StatusInternalServerError, map[string]bool{"isFollowing": false})
	}
	return c.JSON(http.StatusOK, map[string]bool{"isFollowing": ok})
}

// The list and count endpoints below answer with an empty list or zero when
// the store fails so profile pages still render.

func (h *FollowHandler) GetFollowers(c echo.Context) error {
	return h.list(c, "followers", h.follows.GetFollowers)
}

func (h *FollowHandler) GetFollowing(c echo.Context) error {
	return h.list(c, "following", h.follows.GetFollowing)
}

func (h *FollowHandler) GetFollowersCount(c echo.Context) error {
	return h.count(c, "followers", h.follows.GetFollowersCount)
}

func (h *FollowHandler) GetFollowingCount(c echo.Context) error {
	return h.count(c, "following", h.follows.GetFollowingCount)
}

func (h *FollowHandler) list(c echo.Context, what string, fn func(context.Context, uuid.UUID) ([]models.User, error)) error {
	userID, err := parseID(c, "userId")
	if err != nil {
		return err
	}

	users, err := fn(c.Request().Context(), userID)
	if err != nil {
		h.logger.Error("failed to list "+what, zap.String("userId", userID.String()), zap.Error(err))
		users = nil
	}
	return c.JSON(http.StatusOK, models.ToResponses(users))
}

func (h *FollowHandler) count(c echo.Context, what string, fn func(context.Context, uuid.UUID) (int64, error)) error {
	userID, err := parseID(c, "userId")
	if err != nil {
		return err
	}

	n, err := fn(c.Request().Context(), userID)
	if err != nil {
		h.logger.Error("failed to count "+what, zap.String("userId", userID.String()), zap.Error(err))
		n = 0
	}
	return c.JSON(http.StatusOK, map[string]int64{"count": n})
}
