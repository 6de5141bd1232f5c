// Package policy holds the pure membership rules for group chats: who
// may mutate a chat, size bounds, and creator succession. No I/O here.
package policy

import (
	"errors"
	"math/rand/v2"

	"github.com/samber/lo"

	"chatspace/internal/models"
)

const (
	// MinGroupMembers is the smallest group a mutation may leave behind.
	MinGroupMembers = 3
	// MaxGroupMembers caps the member set on AddMembers.
	MaxGroupMembers = 100
)

var (
	ErrNotGroupChat        = errors.New("this is not a group chat")
	ErrEmptyMemberList     = errors.New("please provide members to add")
	ErrMemberLimitExceeded = errors.New("group members limit reached")
	ErrBelowMinimumSize    = errors.New("group must have at least 3 members")
	ErrNotCreator          = errors.New("requester is not the group creator")
	ErrNotMember           = errors.New("requester is not a chat member")
)

// SuccessorPicker selects an index in [0, n). Injected so tests can make
// creator succession deterministic.
type SuccessorPicker func(n int) int

// RandomPicker is the production picker.
func RandomPicker(n int) int { return rand.IntN(n) }

// CanMutate reports whether requester may add/remove members, rename or
// delete the group.
func CanMutate(chat models.Chat, requester int) error {
	if !chat.IsGroup {
		return ErrNotGroupChat
	}
	if chat.CreatorID != requester {
		return ErrNotCreator
	}
	return nil
}

// NewUniqueMembers validates an add-members request and returns the
// candidate ids that are not already members.
func NewUniqueMembers(chat models.Chat, candidates []int) ([]int, error) {
	if !chat.IsGroup {
		return nil, ErrNotGroupChat
	}
	if len(candidates) == 0 {
		return nil, ErrEmptyMemberList
	}
	unique := lo.Filter(lo.Uniq(candidates), func(id int, _ int) bool {
		return !lo.Contains(chat.Members, id)
	})
	if len(chat.Members)+len(unique) > MaxGroupMembers {
		return nil, ErrMemberLimitExceeded
	}
	return unique, nil
}

// CanRemoveMember verifies a removal keeps the group above the minimum.
func CanRemoveMember(chat models.Chat) error {
	if !chat.IsGroup {
		return ErrNotGroupChat
	}
	if len(chat.Members)-1 < MinGroupMembers {
		return ErrBelowMinimumSize
	}
	return nil
}

// LeaveOutcome is the membership state after a member departs.
type LeaveOutcome struct {
	Members []int
	// CreatorID is the (possibly re-elected) creator after the departure.
	CreatorID int
}

// Leave computes the member set after requester departs. When the
// departing member is the creator, a successor is picked uniformly at
// random from the remaining members; that is a deliberate tie-break,
// not an error.
func Leave(chat models.Chat, requester int, pick SuccessorPicker) (LeaveOutcome, error) {
	if !chat.IsGroup {
		return LeaveOutcome{}, ErrNotGroupChat
	}
	remaining := lo.Filter(chat.Members, func(id int, _ int) bool { return id != requester })
	if len(remaining) < MinGroupMembers {
		return LeaveOutcome{}, ErrBelowMinimumSize
	}
	outcome := LeaveOutcome{Members: remaining, CreatorID: chat.CreatorID}
	if chat.CreatorID == requester {
		if pick == nil {
			pick = RandomPicker
		}
		outcome.CreatorID = remaining[pick(len(remaining))]
	}
	return outcome, nil
}

// CanDelete authorizes chat deletion: the creator for group chats, any
// member for direct chats.
func CanDelete(chat models.Chat, requester int) error {
	if chat.IsGroup {
		if chat.CreatorID != requester {
			return ErrNotCreator
		}
		return nil
	}
	if !chat.HasMember(requester) {
		return ErrNotMember
	}
	return nil
}
