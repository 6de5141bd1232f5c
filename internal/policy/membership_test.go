package policy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chatspace/internal/models"
)

func groupChat(creator int, members ...int) models.Chat {
	return models.Chat{ID: 1, Name: "team", IsGroup: true, CreatorID: creator, Members: members}
}

func TestCanMutate(t *testing.T) {
	chat := groupChat(1, 1, 2, 3)

	require.NoError(t, CanMutate(chat, 1))
	require.ErrorIs(t, CanMutate(chat, 2), ErrNotCreator)

	direct := models.Chat{ID: 2, Members: []int{1, 2}}
	require.ErrorIs(t, CanMutate(direct, 1), ErrNotGroupChat)
}

func TestNewUniqueMembers(t *testing.T) {
	chat := groupChat(1, 1, 2, 3)

	t.Run("filters existing members and duplicates", func(t *testing.T) {
		unique, err := NewUniqueMembers(chat, []int{2, 4, 4, 5})
		require.NoError(t, err)
		require.Equal(t, []int{4, 5}, unique)
	})

	t.Run("empty candidate list", func(t *testing.T) {
		_, err := NewUniqueMembers(chat, nil)
		require.ErrorIs(t, err, ErrEmptyMemberList)
	})

	t.Run("not a group chat", func(t *testing.T) {
		_, err := NewUniqueMembers(models.Chat{Members: []int{1, 2}}, []int{3})
		require.ErrorIs(t, err, ErrNotGroupChat)
	})

	t.Run("limit of 100 is enforced", func(t *testing.T) {
		members := make([]int, 0, 99)
		for id := 1; id <= 99; id++ {
			members = append(members, id)
		}
		big := groupChat(1, members...)

		unique, err := NewUniqueMembers(big, []int{200})
		require.NoError(t, err)
		require.Len(t, unique, 1)

		_, err = NewUniqueMembers(big, []int{200, 201})
		require.ErrorIs(t, err, ErrMemberLimitExceeded)
	})
}

func TestCanRemoveMember(t *testing.T) {
	require.NoError(t, CanRemoveMember(groupChat(1, 1, 2, 3, 4)))
	require.ErrorIs(t, CanRemoveMember(groupChat(1, 1, 2, 3)), ErrBelowMinimumSize)
	require.ErrorIs(t, CanRemoveMember(models.Chat{Members: []int{1, 2}}), ErrNotGroupChat)
}

func TestLeave(t *testing.T) {
	t.Run("regular member keeps the creator", func(t *testing.T) {
		out, err := Leave(groupChat(1, 1, 2, 3, 4), 3, nil)
		require.NoError(t, err)
		require.Equal(t, []int{1, 2, 4}, out.Members)
		require.Equal(t, 1, out.CreatorID)
	})

	t.Run("creator departure elects a successor from the remaining", func(t *testing.T) {
		chat := groupChat(1, 1, 2, 3, 4)
		out, err := Leave(chat, 1, func(n int) int { return n - 1 })
		require.NoError(t, err)
		require.Equal(t, []int{2, 3, 4}, out.Members)
		require.Equal(t, 4, out.CreatorID)
		require.NotEqual(t, 1, out.CreatorID)
	})

	t.Run("random successor is always a remaining member", func(t *testing.T) {
		chat := groupChat(1, 1, 2, 3, 4)
		for i := 0; i < 50; i++ {
			out, err := Leave(chat, 1, nil)
			require.NoError(t, err)
			require.Contains(t, out.Members, out.CreatorID)
		}
	})

	t.Run("minimum size holds", func(t *testing.T) {
		_, err := Leave(groupChat(1, 1, 2, 3), 2, nil)
		require.ErrorIs(t, err, ErrBelowMinimumSize)
	})

	t.Run("direct chats cannot be left", func(t *testing.T) {
		_, err := Leave(models.Chat{Members: []int{1, 2}}, 1, nil)
		require.ErrorIs(t, err, ErrNotGroupChat)
	})
}

func TestCanDelete(t *testing.T) {
	group := groupChat(1, 1, 2, 3)
	require.NoError(t, CanDelete(group, 1))
	require.ErrorIs(t, CanDelete(group, 2), ErrNotCreator)

	direct := models.Chat{Members: []int{5, 6}}
	require.NoError(t, CanDelete(direct, 5))
	require.NoError(t, CanDelete(direct, 6))
	require.ErrorIs(t, CanDelete(direct, 7), ErrNotMember)
}
