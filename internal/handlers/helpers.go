package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chatspace/internal/models"
	"chatspace/internal/policy"
	"chatspace/internal/repositories"
)

// requesterID returns the authenticated user id set by the auth
// middleware.
func requesterID(c *gin.Context) int {
	return c.GetInt("userID")
}

// chatIDParam parses the chat id path segment. A malformed id is a
// client error, not an internal one.
func chatIDParam(c *gin.Context) (int, bool) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return 0, false
	}
	return chatID, true
}

// respondError maps repository and policy errors the per-operation
// checks did not already handle.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repositories.ErrChatNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Chat not found"})
	case errors.Is(err, repositories.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, repositories.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
	case errors.Is(err, repositories.ErrInvalidID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
	case errors.Is(err, policy.ErrNotGroupChat):
		c.JSON(http.StatusBadRequest, gin.H{"error": "This is not a group chat"})
	case errors.Is(err, policy.ErrEmptyMemberList):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please provide members to add"})
	case errors.Is(err, policy.ErrMemberLimitExceeded):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Group members limit reached"})
	case errors.Is(err, policy.ErrBelowMinimumSize):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Group must have at least 3 members"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// memberTuples expands users to the populated member view.
func memberTuples(users []models.User) []models.MemberInfo {
	members := make([]models.MemberInfo, 0, len(users))
	for _, u := range users {
		members = append(members, models.MemberInfo{ID: u.ID, Name: u.Username, Avatar: u.AvatarURL})
	}
	return members
}
