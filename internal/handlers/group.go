package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"chatspace/internal/models"
	"chatspace/internal/notify"
	"chatspace/internal/policy"
	"chatspace/internal/repositories"
	"chatspace/internal/storage"
	"chatspace/internal/telemetry"
)

// GroupHandler orchestrates the group lifecycle: creation, membership
// changes, rename, leave and deletion.
type GroupHandler struct {
	chatRepo      repositories.ChatRepository
	userRepo      repositories.UserRepository
	messageRepo   repositories.MessageRepository
	media         storage.MediaStore
	notifier      *notify.Notifier
	audit         *telemetry.AuditEmitter
	pickSuccessor policy.SuccessorPicker
}

// NewGroupHandler constructs a GroupHandler. A nil picker falls back to
// the uniform random successor choice.
func NewGroupHandler(chatRepo repositories.ChatRepository, userRepo repositories.UserRepository, messageRepo repositories.MessageRepository, media storage.MediaStore, notifier *notify.Notifier, audit *telemetry.AuditEmitter, pick policy.SuccessorPicker) *GroupHandler {
	if pick == nil {
		pick = policy.RandomPicker
	}
	return &GroupHandler{
		chatRepo:      chatRepo,
		userRepo:      userRepo,
		messageRepo:   messageRepo,
		media:         media,
		notifier:      notifier,
		audit:         audit,
		pickSuccessor: pick,
	}
}

// CreateGroup handles POST /chats/group.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID := requesterID(c)

	var req struct {
		Name      string `json:"name" binding:"required"`
		MemberIDs []int  `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Validate the invited members exist before persisting anything.
	if len(req.MemberIDs) > 0 {
		if _, err := h.userRepo.BulkUsers(c.Request.Context(), req.MemberIDs); err != nil {
			respondError(c, err)
			return
		}
	}

	chat, err := h.chatRepo.CreateChat(c.Request.Context(), req.Name, true, userID, req.MemberIDs)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	invited := make([]int, 0, len(req.MemberIDs))
	for _, id := range req.MemberIDs {
		if id != userID {
			invited = append(invited, id)
		}
	}
	h.notifier.GroupCreated(chat.ID, req.Name, chat.Members, invited)

	h.emitAudit(c, "INFO", "Group chat created")
	c.JSON(http.StatusCreated, gin.H{"success": true, "chat_id": chat.ID, "message": "Group chat created"})
}

// AddMembers handles PUT /chats/group/members.
func (h *GroupHandler) AddMembers(c *gin.Context) {
	userID := requesterID(c)

	var req struct {
		ChatID    int   `json:"chat_id" binding:"required"`
		MemberIDs []int `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chat, err := h.chatRepo.GetChat(c.Request.Context(), req.ChatID)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(req.MemberIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please provide members to add"})
		return
	}
	if !chat.IsGroup {
		c.JSON(http.StatusBadRequest, gin.H{"error": "This is not a group chat"})
		return
	}
	if chat.CreatorID != userID {
		h.emitAudit(c, "ERROR", "not allowed to add members")
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not allowed to add members"})
		return
	}

	candidates, err := h.userRepo.BulkUsers(c.Request.Context(), req.MemberIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	unique, err := policy.NewUniqueMembers(chat, req.MemberIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.chatRepo.AddMembers(c.Request.Context(), chat.ID, unique); err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add members"})
		return
	}

	names := make([]string, 0, len(candidates))
	for _, u := range candidates {
		names = append(names, u.Username)
	}
	h.notifier.MembersAdded(chat.ID, names, append(chat.Members, unique...))

	h.emitAudit(c, "INFO", "Members added")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Members added successfully"})
}

// RemoveMember handles DELETE /chats/group/members.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	userID := requesterID(c)

	var req struct {
		ChatID int `json:"chat_id" binding:"required"`
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// chat and target user are independent reads; load them together
	var chat models.Chat
	var target models.User
	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		var err error
		chat, err = h.chatRepo.GetChat(ctx, req.ChatID)
		return err
	})
	g.Go(func() error {
		var err error
		target, err = h.userRepo.GetUser(ctx, req.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		respondError(c, err)
		return
	}

	if !chat.IsGroup {
		c.JSON(http.StatusBadRequest, gin.H{"error": "This is not a group chat"})
		return
	}
	if chat.CreatorID != userID {
		h.emitAudit(c, "ERROR", "not allowed to remove members")
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not allowed to remove members"})
		return
	}
	if err := policy.CanRemoveMember(chat); err != nil {
		respondError(c, err)
		return
	}

	// the removed member still gets the refetch signal
	priorMembers := chat.Members
	remaining := make([]int, 0, len(chat.Members))
	for _, id := range chat.Members {
		if id != req.UserID {
			remaining = append(remaining, id)
		}
	}

	if err := h.chatRepo.SetMembers(c.Request.Context(), chat.ID, remaining, chat.CreatorID); err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove member"})
		return
	}

	h.notifier.MemberRemoved(chat.ID, target.Username, remaining, priorMembers)

	h.emitAudit(c, "INFO", "Member removed")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Member removed successfully"})
}

// Leave handles DELETE /chats/group/:chat_id/leave.
func (h *GroupHandler) Leave(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	userID := requesterID(c)

	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		respondError(c, err)
		return
	}

	outcome, err := policy.Leave(chat, userID, h.pickSuccessor)
	if err != nil {
		respondError(c, err)
		return
	}

	// the membership write and the name lookup for the departure alert
	// are independent
	var departed models.User
	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		var err error
		departed, err = h.userRepo.GetUser(ctx, userID)
		return err
	})
	g.Go(func() error {
		return h.chatRepo.SetMembers(ctx, chat.ID, outcome.Members, outcome.CreatorID)
	})
	if err := g.Wait(); err != nil {
		respondError(c, err)
		return
	}

	h.notifier.MemberLeft(chat.ID, departed.Username, outcome.Members)

	h.emitAudit(c, "INFO", "Member left group")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "You have left the group"})
}

// Rename handles PUT /chats/:chat_id.
func (h *GroupHandler) Rename(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	userID := requesterID(c)

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !chat.IsGroup {
		c.JSON(http.StatusBadRequest, gin.H{"error": "This is not a group chat"})
		return
	}
	if chat.CreatorID != userID {
		h.emitAudit(c, "ERROR", "not allowed to rename")
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not allowed to rename the group"})
		return
	}

	if err := h.chatRepo.Rename(c.Request.Context(), chat.ID, req.Name); err != nil {
		respondError(c, err)
		return
	}

	h.notifier.ChatRenamed(chat.ID, req.Name, chat.Members)

	h.emitAudit(c, "INFO", "Group chat renamed")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Group chat renamed"})
}

// Delete handles DELETE /chats/:chat_id. Group chats may only be
// deleted by their creator; direct chats by either member.
func (h *GroupHandler) Delete(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	userID := requesterID(c)

	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := policy.CanDelete(chat, userID); err != nil {
		h.emitAudit(c, "ERROR", "not allowed to delete")
		if errors.Is(err, policy.ErrNotCreator) {
			c.JSON(http.StatusForbidden, gin.H{"error": "You are not allowed to delete the group"})
		} else {
			c.JSON(http.StatusForbidden, gin.H{"error": "You are not allowed to delete the chat"})
		}
		return
	}

	// captured before any mutation: the chat is gone afterwards
	priorMembers := chat.Members

	refs, err := h.messageRepo.ListAttachmentRefs(c.Request.Context(), chat.ID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete chat"})
		return
	}

	// Blob deletion must never block or fail the chat deletion; it runs
	// detached from the request context.
	if len(refs) > 0 {
		go func(refs []models.AttachmentRef) {
			_ = h.media.Delete(context.Background(), refs)
		}(refs)
	}

	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error { return h.messageRepo.DeleteChatMessages(ctx, chat.ID) })
	g.Go(func() error { return h.chatRepo.DeleteChat(ctx, chat.ID) })
	if err := g.Wait(); err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete chat"})
		return
	}

	h.notifier.ChatDeleted(priorMembers)

	h.emitAudit(c, "INFO", "Chat deleted")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Chat deleted successfully"})
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
