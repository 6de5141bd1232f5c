// Package notify decides which real-time event, payload and recipient
// set each chat lifecycle action produces, and delivers them without
// blocking the caller.
package notify

import (
	"fmt"
	"log"
	"strings"

	"chatspace/internal/models"
	"chatspace/internal/observability"
)

// Event names of the real-time channel.
const (
	EventAlert           = "ALERT"
	EventRefetchChats    = "REFETCH_CHATS"
	EventNewMessage      = "NEW_MESSAGE"
	EventNewMessageAlert = "NEW_MESSAGE_ALERT"
)

// Transport fans a named event out to a set of member ids.
type Transport interface {
	Emit(event string, userIDs []int, payload any)
}

// AlertPayload carries a free-text alert scoped to one chat.
type AlertPayload struct {
	ChatID  int    `json:"chat_id"`
	Message string `json:"message"`
}

// NewMessagePayload carries the full display-ready message.
type NewMessagePayload struct {
	ChatID  int                `json:"chat_id"`
	Message models.MessageView `json:"message"`
}

// NewMessageAlertPayload lets idle clients bump unread counters without
// fetching the message body.
type NewMessageAlertPayload struct {
	ChatID int `json:"chat_id"`
}

// Notifier emits chat events over the injected transport. Every emit is
// fire-and-forget: the triggering operation returns without waiting,
// and a transport failure never reaches the caller.
type Notifier struct {
	transport Transport
}

// New constructs a Notifier.
func New(transport Transport) *Notifier {
	return &Notifier{transport: transport}
}

// Emit delivers one event asynchronously.
func (n *Notifier) Emit(event string, userIDs []int, payload any) {
	if n == nil || n.transport == nil || len(userIDs) == 0 {
		return
	}
	observability.IncRealtimeEvent(event)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("event emit panic event=%s: %v", event, r)
			}
		}()
		n.transport.Emit(event, userIDs, payload)
	}()
}

// GroupCreated welcomes all members and tells the invited ones to
// refetch their chat lists.
func (n *Notifier) GroupCreated(chatID int, name string, allMembers, invited []int) {
	n.Emit(EventAlert, allMembers, AlertPayload{ChatID: chatID, Message: fmt.Sprintf("Welcome to %s group", name)})
	n.Emit(EventRefetchChats, invited, struct{}{})
}

// MembersAdded announces the new members to the grown member set.
func (n *Notifier) MembersAdded(chatID int, addedNames []string, members []int) {
	n.Emit(EventAlert, members, AlertPayload{
		ChatID:  chatID,
		Message: fmt.Sprintf("%s has been added in the group", strings.Join(addedNames, ", ")),
	})
	n.Emit(EventRefetchChats, members, struct{}{})
}

// MemberRemoved alerts the remaining members and signals the
// pre-removal set (the removed member included) to refetch.
func (n *Notifier) MemberRemoved(chatID int, removedName string, remaining, priorMembers []int) {
	n.Emit(EventAlert, remaining, AlertPayload{
		ChatID:  chatID,
		Message: fmt.Sprintf("%s has been removed from the group", removedName),
	})
	n.Emit(EventRefetchChats, priorMembers, struct{}{})
}

// MemberLeft alerts the remaining members only; the departing member is
// not notified.
func (n *Notifier) MemberLeft(chatID int, name string, remaining []int) {
	n.Emit(EventAlert, remaining, AlertPayload{
		ChatID:  chatID,
		Message: fmt.Sprintf("%s has left the group", name),
	})
}

// ChatRenamed alerts the current members.
func (n *Notifier) ChatRenamed(chatID int, name string, members []int) {
	n.Emit(EventAlert, members, AlertPayload{
		ChatID:  chatID,
		Message: fmt.Sprintf("Group chat renamed to %s", name),
	})
}

// ChatDeleted signals the pre-deletion member list to refetch; the chat
// no longer exists so no Alert accompanies it.
func (n *Notifier) ChatDeleted(priorMembers []int) {
	n.Emit(EventRefetchChats, priorMembers, struct{}{})
}

// NewMessage delivers the full payload plus the lightweight companion
// alert to the current chat members.
func (n *Notifier) NewMessage(chatID int, members []int, view models.MessageView) {
	n.Emit(EventNewMessage, members, NewMessagePayload{ChatID: chatID, Message: view})
	n.Emit(EventNewMessageAlert, members, NewMessageAlertPayload{ChatID: chatID})
}
