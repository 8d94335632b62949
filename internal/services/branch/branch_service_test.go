// File: internal/services/branch/branch_service_test.go
package branch_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-branchchat/internal/domain"
	chatrepo "github.com/iyunix/go-branchchat/internal/repository/chat"
	messagerepo "github.com/iyunix/go-branchchat/internal/repository/message"
	"github.com/iyunix/go-branchchat/internal/services"
	"github.com/iyunix/go-branchchat/internal/services/branch"
	"github.com/iyunix/go-branchchat/internal/services/conversation"
	"github.com/iyunix/go-branchchat/internal/store"
)

type fixture struct {
	store  *store.Store
	conv   *conversation.Service
	branch *branch.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "test.db")}, &services.NoOpLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	chatRepo := chatrepo.NewChatRepository(st)
	messageRepo := messagerepo.NewMessageRepository(st)
	return &fixture{
		store:  st,
		conv:   conversation.NewService(st, chatRepo, messageRepo, &services.NoOpLogger{}),
		branch: branch.NewService(st, chatRepo, messageRepo, &services.NoOpLogger{}),
	}
}

// seedChat creates a chat with alternating user/assistant messages.
func (f *fixture) seedChat(t *testing.T, title string, contents ...string) *domain.Chat {
	t.Helper()
	ctx := context.Background()
	c, err := f.conv.CreateChat(ctx, title, "")
	require.NoError(t, err)
	for i, content := range contents {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		_, err := f.conv.AddMessage(ctx, conversation.AddMessageParams{ChatID: c.ID, Role: role, Content: content})
		require.NoError(t, err)
	}
	return c
}

func TestBranchChatCopiesPrefix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := f.seedChat(t, "Original", "q1", "a1", "q2", "a2")

	result, err := f.branch.BranchChat(ctx, src.ID, 1, "")
	require.NoError(t, err)
	assert.Equal(t, 2, result.MessageCount)
	assert.Equal(t, "Branch from Original", result.NewChat.Title)
	assert.Equal(t, src.ID, result.NewChat.BranchedFromChatID)
	assert.Empty(t, result.Warnings)

	srcMessages, err := f.conv.GetChatMessages(ctx, src.ID)
	require.NoError(t, err)
	copied, err := f.conv.GetChatMessages(ctx, result.NewChat.ID)
	require.NoError(t, err)
	require.Len(t, copied, 2)

	for i, m := range copied {
		assert.Equal(t, srcMessages[i].Content, m.Content)
		assert.Equal(t, srcMessages[i].Role, m.Role)
		assert.NotEqual(t, srcMessages[i].ID, m.ID, "copies need fresh ids")
		assert.Equal(t, srcMessages[i].CreatedAt.UnixNano(), m.CreatedAt.UnixNano(), "timestamps are preserved")
		assert.False(t, m.IsPartial)
	}

	// Source untouched.
	assert.Len(t, srcMessages, 4)
}

func TestBranchChatFullCopy(t *testing.T) {
	f := newFixture(t)
	src := f.seedChat(t, "Original", "q1", "a1", "q2", "a2")

	result, err := f.branch.BranchChat(context.Background(), src.ID, 3, "custom title")
	require.NoError(t, err)
	assert.Equal(t, 4, result.MessageCount)
	assert.Equal(t, "custom title", result.NewChat.Title)
}

func TestBranchChatUntitledSource(t *testing.T) {
	f := newFixture(t)
	src := f.seedChat(t, "", "q1", "a1")

	result, err := f.branch.BranchChat(context.Background(), src.ID, 1, "")
	require.NoError(t, err)
	assert.Equal(t, "Branch from Untitled Chat", result.NewChat.Title)
}

func TestBranchChatEmptySource(t *testing.T) {
	f := newFixture(t)
	src := f.seedChat(t, "empty")

	_, err := f.branch.BranchChat(context.Background(), src.ID, 0, "")
	assert.True(t, domain.IsInvalidState(err))
}

func TestBranchChatIndexOutOfRange(t *testing.T) {
	f := newFixture(t)
	src := f.seedChat(t, "short", "q1", "a1")

	_, err := f.branch.BranchChat(context.Background(), src.ID, 2, "")
	assert.True(t, domain.IsInvalidArgument(err))

	_, err = f.branch.BranchChat(context.Background(), src.ID, -1, "")
	assert.True(t, domain.IsInvalidArgument(err))
}

func TestBranchChatMissingSource(t *testing.T) {
	f := newFixture(t)

	_, err := f.branch.BranchChat(context.Background(), "missing", 0, "")
	assert.True(t, domain.IsNotFound(err))
}

func TestBranchWarningsAreAdvisory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Branch point on a user message: mid-turn.
	src := f.seedChat(t, "warn", "q1", "a1", "q2")
	result, err := f.branch.BranchChat(ctx, src.ID, 2, "")
	require.NoError(t, err)
	assert.Contains(t, result.Warnings, branch.WarningBranchFromUserMessage)

	// Consecutive same-role messages in the prefix.
	odd, err := f.conv.CreateChat(ctx, "odd", "")
	require.NoError(t, err)
	for _, content := range []string{"u1", "u2"} {
		_, err := f.conv.AddMessage(ctx, conversation.AddMessageParams{
			ChatID: odd.ID, Role: domain.RoleUser, Content: content,
		})
		require.NoError(t, err)
	}
	result, err = f.branch.BranchChat(ctx, odd.ID, 1, "")
	require.NoError(t, err)
	assert.Contains(t, result.Warnings, branch.WarningConsecutiveSameRole)
	assert.Equal(t, 2, result.MessageCount)
}

func TestQuickBranchTitle(t *testing.T) {
	f := newFixture(t)
	src := f.seedChat(t, "Research notes", "q1", "a1")

	result, err := f.branch.QuickBranch(context.Background(), src.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Research notes", result.NewChat.Title)
}

func TestGetBranchedChats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := f.seedChat(t, "root", "q1", "a1")

	first, err := f.branch.BranchChat(ctx, src.ID, 0, "b1")
	require.NoError(t, err)
	second, err := f.branch.BranchChat(ctx, src.ID, 1, "b2")
	require.NoError(t, err)

	branches, err := f.branch.GetBranchedChats(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, branches, 2)
	ids := []string{branches[0].ID, branches[1].ID}
	assert.Contains(t, ids, first.NewChat.ID)
	assert.Contains(t, ids, second.NewChat.ID)
}

func TestGetOriginalChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := f.seedChat(t, "parent", "q1", "a1")

	result, err := f.branch.BranchChat(ctx, src.ID, 1, "")
	require.NoError(t, err)

	parent, err := f.branch.GetOriginalChat(ctx, result.NewChat.ID)
	require.NoError(t, err)
	require.NotNil(t, parent)
	assert.Equal(t, src.ID, parent.ID)

	// Not a branch at all.
	parent, err = f.branch.GetOriginalChat(ctx, src.ID)
	require.NoError(t, err)
	assert.Nil(t, parent)

	// Dangling parent reference after the original is deleted.
	require.NoError(t, f.conv.DeleteChat(ctx, src.ID))
	parent, err = f.branch.GetOriginalChat(ctx, result.NewChat.ID)
	require.NoError(t, err)
	assert.Nil(t, parent)

	_, err = f.branch.GetOriginalChat(ctx, "missing")
	assert.True(t, domain.IsNotFound(err))
}

func TestConcurrentBranchAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := f.seedChat(t, "contended", "q1", "a1", "q2", "a2")

	var wg sync.WaitGroup
	results := make([]*branch.Result, 4)
	branchErrs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], branchErrs[i] = f.branch.BranchChat(ctx, src.ID, 3, "")
		}(i)
	}
	wg.Add(1)
	var deleteErr error
	go func() {
		defer wg.Done()
		deleteErr = f.conv.DeleteChat(ctx, src.ID)
	}()
	wg.Wait()

	require.NoError(t, deleteErr)

	// Each branch either completed with its full prefix or failed cleanly.
	// A branch with zero or partial messages must never exist.
	for i := range results {
		if branchErrs[i] != nil {
			assert.True(t, domain.IsNotFound(branchErrs[i]))
			continue
		}
		messages, err := f.conv.GetChatMessages(ctx, results[i].NewChat.ID)
		require.NoError(t, err)
		assert.Len(t, messages, 4)
	}
}

func TestBranchOfBranch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := f.seedChat(t, "gen0", "q1", "a1", "q2", "a2")

	gen1, err := f.branch.BranchChat(ctx, src.ID, 3, "gen1")
	require.NoError(t, err)
	gen2, err := f.branch.BranchChat(ctx, gen1.NewChat.ID, 1, "gen2")
	require.NoError(t, err)

	assert.Equal(t, gen1.NewChat.ID, gen2.NewChat.BranchedFromChatID)
	messages, err := f.conv.GetChatMessages(ctx, gen2.NewChat.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "q1", messages[0].Content)
	assert.Equal(t, "a1", messages[1].Content)
}
