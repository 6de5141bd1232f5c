package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"chatspace/internal/models"
	"chatspace/internal/notify"
	"chatspace/internal/observability"
	"chatspace/internal/repositories"
	"chatspace/internal/storage"
	"chatspace/internal/telemetry"
)

const (
	messagesPerPage = 20
	maxAttachments  = 5
)

// MessageHandler serves the message feed and message/attachment sends.
type MessageHandler struct {
	chatRepo    repositories.ChatRepository
	userRepo    repositories.UserRepository
	messageRepo repositories.MessageRepository
	media       storage.MediaStore
	notifier    *notify.Notifier
	audit       *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(chatRepo repositories.ChatRepository, userRepo repositories.UserRepository, messageRepo repositories.MessageRepository, media storage.MediaStore, notifier *notify.Notifier, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		chatRepo:    chatRepo,
		userRepo:    userRepo,
		messageRepo: messageRepo,
		media:       media,
		notifier:    notifier,
		audit:       audit,
	}
}

// SendMessage handles POST /chats/:chat_id/messages (text messages).
func (h *MessageHandler) SendMessage(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	userID := requesterID(c)

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var chat models.Chat
	var sender models.User
	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		var err error
		chat, err = h.chatRepo.GetChat(ctx, chatID)
		return err
	})
	g.Go(func() error {
		var err error
		sender, err = h.userRepo.GetUser(ctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		respondError(c, err)
		return
	}
	if !chat.HasMember(userID) {
		h.emitAudit(c, "ERROR", "not a chat member")
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not allowed to send messages to this chat"})
		return
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), chat.ID, userID, req.Content, nil)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	view := msg.ViewWithSender(models.MessageSender{ID: sender.ID, Name: sender.Username})
	h.notifier.NewMessage(chat.ID, chat.Members, view)

	h.emitAudit(c, "INFO", "Message sent")
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": view})
}

// SendAttachments handles POST /chats/:chat_id/attachments. Between one
// and five files are uploaded in order, stored as one message with
// empty content, and fanned out to the chat members.
func (h *MessageHandler) SendAttachments(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	userID := requesterID(c)

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	files := form.File["files"]
	if len(files) < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please provide attachments"})
		return
	}
	if len(files) > maxAttachments {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Files can't be more than 5"})
		return
	}

	var chat models.Chat
	var sender models.User
	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		var err error
		chat, err = h.chatRepo.GetChat(ctx, chatID)
		return err
	})
	g.Go(func() error {
		var err error
		sender, err = h.userRepo.GetUser(ctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		respondError(c, err)
		return
	}

	uploads, err := readUploads(files)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read attachments"})
		return
	}

	attachments, err := h.media.Upload(c.Request.Context(), uploads)
	if err != nil {
		h.emitAudit(c, "ERROR", "attachment upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upload attachments"})
		return
	}
	observability.AddMediaUploads(len(attachments))

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), chat.ID, userID, "", attachments)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	view := msg.ViewWithSender(models.MessageSender{ID: sender.ID, Name: sender.Username})
	h.notifier.NewMessage(chat.ID, chat.Members, view)

	h.emitAudit(c, "INFO", "Attachments sent")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": view})
}

// ListMessages handles GET /chats/:chat_id/messages?page=N: one
// fixed-size window, newest page first, chronological inside the page.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	userID := requesterID(c)

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}

	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !chat.HasMember(userID) {
		h.emitAudit(c, "ERROR", "not a chat member")
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not allowed to view the messages or may be you've been removed from the group"})
		return
	}

	skip := (page - 1) * messagesPerPage

	// window and total are independent reads
	var msgs []models.Message
	var total int
	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		var err error
		msgs, err = h.messageRepo.ListMessagesPage(ctx, chat.ID, messagesPerPage, skip)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = h.messageRepo.CountMessages(ctx, chat.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	views, err := h.denormalizeSenders(c, msgs)
	if err != nil {
		respondError(c, err)
		return
	}

	// the window arrives newest-first; flip it so the client renders
	// oldest-first within the page
	for i, j := 0, len(views)-1; i < j; i, j = i+1, j-1 {
		views[i], views[j] = views[j], views[i]
	}

	totalPages := (total + messagesPerPage - 1) / messagesPerPage

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"messages":    views,
		"total_pages": totalPages,
	})
}

func (h *MessageHandler) denormalizeSenders(c *gin.Context, msgs []models.Message) ([]models.MessageView, error) {
	senderIDs := make([]int, 0, len(msgs))
	seen := map[int]struct{}{}
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}

	nameByID := map[int]string{}
	if len(senderIDs) > 0 {
		users, err := h.userRepo.BulkUsers(c.Request.Context(), senderIDs)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			nameByID[u.ID] = u.Username
		}
	}

	views := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, m.ViewWithSender(models.MessageSender{ID: m.SenderID, Name: nameByID[m.SenderID]}))
	}
	return views, nil
}

func readUploads(files []*multipart.FileHeader) ([]storage.UploadFile, error) {
	uploads := make([]storage.UploadFile, 0, len(files))
	for _, header := range files {
		f, err := header.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, storage.UploadFile{Name: header.Filename, Data: data})
	}
	return uploads, nil
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
