package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatspace/internal/models"
	"chatspace/internal/repositories"
	"chatspace/internal/telemetry"
)

// ChatHandler serves the chat-list projections and direct chats.
type ChatHandler struct {
	chatRepo repositories.ChatRepository
	userRepo repositories.UserRepository
	audit    *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chatRepo repositories.ChatRepository, userRepo repositories.UserRepository, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{chatRepo: chatRepo, userRepo: userRepo, audit: audit}
}

// ListMyChats returns the chats visible to the requester. Direct chats
// borrow the other member's name and avatar; group chats show up to
// three member avatars.
func (h *ChatHandler) ListMyChats(c *gin.Context) {
	userID := requesterID(c)

	chats, err := h.chatRepo.ListChatsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	usersByID, err := h.resolveMembers(c, chats)
	if err != nil {
		respondError(c, err)
		return
	}

	summaries := make([]models.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		summary := models.ChatSummary{
			ChatID:  chat.ID,
			IsGroup: chat.IsGroup,
			Name:    chat.Name,
		}
		for _, id := range chat.Members {
			if id != userID {
				summary.MemberIDs = append(summary.MemberIDs, id)
			}
		}
		if chat.IsGroup {
			for _, id := range chat.Members {
				if len(summary.Avatars) == 3 {
					break
				}
				summary.Avatars = append(summary.Avatars, usersByID[id].AvatarURL)
			}
		} else if other, ok := otherMember(chat, userID); ok {
			summary.Name = usersByID[other].Username
			summary.Avatars = []string{usersByID[other].AvatarURL}
		}
		summaries = append(summaries, summary)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "chats": summaries})
}

// ListMyGroups returns the group chats the requester created.
func (h *ChatHandler) ListMyGroups(c *gin.Context) {
	userID := requesterID(c)

	chats, err := h.chatRepo.ListGroupsCreatedBy(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}

	usersByID, err := h.resolveMembers(c, chats)
	if err != nil {
		respondError(c, err)
		return
	}

	groups := make([]models.GroupSummary, 0, len(chats))
	for _, chat := range chats {
		summary := models.GroupSummary{ChatID: chat.ID, Name: chat.Name, IsGroup: chat.IsGroup}
		for _, id := range chat.Members {
			if len(summary.Avatars) == 3 {
				break
			}
			summary.Avatars = append(summary.Avatars, usersByID[id].AvatarURL)
		}
		groups = append(groups, summary)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "groups": groups})
}

// GetChatDetails handles GET /chats/:chat_id. With ?populate=true the
// member ids are expanded to id/name/avatar tuples.
func (h *ChatHandler) GetChatDetails(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		respondError(c, err)
		return
	}

	if c.Query("populate") != "true" {
		c.JSON(http.StatusOK, gin.H{"success": true, "chat": chat})
		return
	}

	users, err := h.userRepo.BulkUsers(c.Request.Context(), chat.Members)
	if err != nil {
		respondError(c, err)
		return
	}

	details := models.ChatDetails{
		ID:        chat.ID,
		Name:      chat.Name,
		IsGroup:   chat.IsGroup,
		CreatorID: chat.CreatorID,
		CreatedAt: chat.CreatedAt,
		Members:   memberTuples(users),
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "chat": details})
}

// StartDirectChat handles POST /chats/start: create-or-get the
// two-member chat with a friend.
func (h *ChatHandler) StartDirectChat(c *gin.Context) {
	userID := requesterID(c)

	var req struct {
		FriendID int `json:"friend_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.FriendID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}

	if _, err := h.userRepo.GetUser(c.Request.Context(), req.FriendID); err != nil {
		respondError(c, err)
		return
	}

	chat, err := h.chatRepo.FindDirectChat(c.Request.Context(), userID, req.FriendID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		chat, err = h.chatRepo.CreateChat(c.Request.Context(), "", false, userID, []int{req.FriendID})
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "chat_id": chat.ID})
}

// resolveMembers bulk-loads every member appearing in chats.
func (h *ChatHandler) resolveMembers(c *gin.Context, chats []models.Chat) (map[int]models.User, error) {
	seen := map[int]struct{}{}
	ids := make([]int, 0)
	for _, chat := range chats {
		for _, id := range chat.Members {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}

	usersByID := make(map[int]models.User, len(ids))
	if len(ids) == 0 {
		return usersByID, nil
	}
	users, err := h.userRepo.BulkUsers(c.Request.Context(), ids)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		usersByID[u.ID] = u
	}
	return usersByID, nil
}

func otherMember(chat models.Chat, userID int) (int, bool) {
	for _, id := range chat.Members {
		if id != userID {
			return id, true
		}
	}
	return 0, false
}
