// File: internal/store/store_test.go
package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-branchchat/internal/domain"
	"github.com/iyunix/go-branchchat/internal/services"
	"github.com/iyunix/go-branchchat/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "test.db")}, &services.NoOpLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func createChat(t *testing.T, st *store.Store, id string) {
	t.Helper()
	err := st.Transaction(context.Background(), []store.Kind{store.KindChats}, func(tx *store.Tx) error {
		if err := tx.DB().Create(&domain.Chat{ID: id, Title: "chat " + id}).Error; err != nil {
			return err
		}
		tx.Touch(store.KindChats, id)
		return nil
	})
	require.NoError(t, err)
}

func TestTransactionRequiresKinds(t *testing.T) {
	st := openStore(t)

	err := st.Transaction(context.Background(), nil, func(tx *store.Tx) error { return nil })
	assert.True(t, domain.IsInvalidArgument(err))
}

func TestTransactionBodyErrorRollsBack(t *testing.T) {
	st := openStore(t)
	boom := errors.New("boom")

	err := st.Transaction(context.Background(), []store.Kind{store.KindChats}, func(tx *store.Tx) error {
		require.NoError(t, tx.DB().Create(&domain.Chat{ID: "c1", Title: "doomed"}).Error)
		tx.Touch(store.KindChats, "c1")
		return boom
	})
	assert.Same(t, boom, err)

	var count int64
	require.NoError(t, st.DB().Model(&domain.Chat{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestWatchDeliversAfterCommit(t *testing.T) {
	st := openStore(t)
	w := st.Watch(store.Selector{Kind: store.KindChats})
	defer w.Close()

	createChat(t, st, "c1")

	select {
	case changes := <-w.C:
		assert.True(t, changes.Has(store.KindChats, "c1"))
	case <-time.After(time.Second):
		t.Fatal("no delivery after commit")
	}
}

func TestWatchSilentOnRollback(t *testing.T) {
	st := openStore(t)
	w := st.Watch(store.Selector{Kind: store.KindChats})
	defer w.Close()

	_ = st.Transaction(context.Background(), []store.Kind{store.KindChats}, func(tx *store.Tx) error {
		tx.Touch(store.KindChats, "c1")
		return errors.New("boom")
	})

	select {
	case <-w.C:
		t.Fatal("rolled back transaction must not be published")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatchSelectorFiltering(t *testing.T) {
	st := openStore(t)
	w := st.Watch(store.Selector{Kind: store.KindMessages, Key: "chat-a"})
	defer w.Close()

	err := st.Transaction(context.Background(), []store.Kind{store.KindMessages}, func(tx *store.Tx) error {
		tx.Touch(store.KindMessages, "chat-b")
		return nil
	})
	require.NoError(t, err)

	select {
	case <-w.C:
		t.Fatal("non-overlapping commit must not be delivered")
	case <-time.After(100 * time.Millisecond):
	}

	err = st.Transaction(context.Background(), []store.Kind{store.KindMessages}, func(tx *store.Tx) error {
		tx.Touch(store.KindMessages, "chat-a")
		return nil
	})
	require.NoError(t, err)

	select {
	case changes := <-w.C:
		assert.True(t, changes.Has(store.KindMessages, "chat-a"))
	case <-time.After(time.Second):
		t.Fatal("overlapping commit not delivered")
	}
}

func TestWatchCoalescesWhenConsumerLags(t *testing.T) {
	st := openStore(t)
	w := st.Watch(store.Selector{Kind: store.KindChats})
	defer w.Close()

	createChat(t, st, "c1")
	createChat(t, st, "c2")

	select {
	case changes := <-w.C:
		assert.True(t, changes.Has(store.KindChats, "c1"))
		assert.True(t, changes.Has(store.KindChats, "c2"))
	case <-time.After(time.Second):
		t.Fatal("no coalesced delivery")
	}
}

func TestNextSeqMonotonic(t *testing.T) {
	st := openStore(t)

	var mu sync.Mutex
	seen := make(map[uint64]bool)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				seq := st.NextSeq()
				mu.Lock()
				assert.False(t, seen[seq], "duplicate sequence %d", seq)
				seen[seq] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
}

func TestSeqSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	st, err := store.Open(store.Config{Path: path}, &services.NoOpLogger{})
	require.NoError(t, err)
	err = st.Transaction(context.Background(), []store.Kind{store.KindMessages}, func(tx *store.Tx) error {
		return tx.DB().Create(&domain.Message{
			ID: "m1", ChatID: "c1", Role: domain.RoleUser, Content: "hi", Seq: tx.NextSeq(),
		}).Error
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = store.Open(store.Config{Path: path}, &services.NoOpLogger{})
	require.NoError(t, err)
	defer st.Close()
	assert.Greater(t, st.NextSeq(), uint64(1))
}

func TestOverlappingTransactionsSerialize(t *testing.T) {
	st := openStore(t)
	createChat(t, st, "counter")

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := st.Transaction(context.Background(), []store.Kind{store.KindChats}, func(tx *store.Tx) error {
				var c domain.Chat
				if err := tx.DB().First(&c, "id = ?", "counter").Error; err != nil {
					return err
				}
				return tx.DB().Model(&domain.Chat{}).Where("id = ?", "counter").
					Update("title", c.Title+"+").Error
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var c domain.Chat
	require.NoError(t, st.DB().First(&c, "id = ?", "counter").Error)
	// Every read-modify-write must have seen the previous one.
	assert.Equal(t, "chat counter"+"++++++++++", c.Title)
}
