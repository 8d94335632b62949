// File: internal/livequery/livequery_test.go
package livequery_test

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-branchchat/internal/domain"
	"github.com/iyunix/go-branchchat/internal/livequery"
	"github.com/iyunix/go-branchchat/internal/services"
	"github.com/iyunix/go-branchchat/internal/store"
)

func setup(t *testing.T) (*store.Store, *livequery.Queries) {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "test.db")}, &services.NoOpLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, livequery.New(st, &services.NoOpLogger{})
}

func commitChat(t *testing.T, st *store.Store, id string) {
	t.Helper()
	err := st.Transaction(context.Background(), []store.Kind{store.KindChats}, func(tx *store.Tx) error {
		if err := tx.DB().Create(&domain.Chat{ID: id, Title: id}).Error; err != nil {
			return err
		}
		tx.Touch(store.KindChats, id)
		return nil
	})
	require.NoError(t, err)
}

func TestSubscribeComputesInitialValue(t *testing.T) {
	st, q := setup(t)
	commitChat(t, st, "c1")

	sub := livequery.Subscribe(q,
		[]store.Selector{{Kind: store.KindChats}},
		func(ctx context.Context) (int64, error) {
			var n int64
			return n, st.DB().WithContext(ctx).Model(&domain.Chat{}).Count(&n).Error
		},
		livequery.Options{},
	)
	defer sub.Close()

	res := sub.Current()
	require.NoError(t, res.Err)
	assert.Equal(t, int64(1), res.Value)
}

func TestSubscribeRecomputesOnOverlap(t *testing.T) {
	st, q := setup(t)

	sub := livequery.Subscribe(q,
		[]store.Selector{{Kind: store.KindChats}},
		func(ctx context.Context) (int64, error) {
			var n int64
			return n, st.DB().WithContext(ctx).Model(&domain.Chat{}).Count(&n).Error
		},
		livequery.Options{},
	)
	defer sub.Close()

	commitChat(t, st, "c1")

	select {
	case res := <-sub.Updates():
		require.NoError(t, res.Err)
		assert.Equal(t, int64(1), res.Value)
	case <-time.After(time.Second):
		t.Fatal("no update after overlapping commit")
	}
	assert.Equal(t, int64(1), sub.Current().Value)
}

func TestSubscribeIgnoresNonOverlappingCommits(t *testing.T) {
	st, q := setup(t)

	var calls atomic.Int64
	sub := livequery.Subscribe(q,
		[]store.Selector{{Kind: store.KindMessages, Key: "chat-a"}},
		func(ctx context.Context) (int, error) {
			calls.Add(1)
			return 0, nil
		},
		livequery.Options{},
	)
	defer sub.Close()
	require.Equal(t, int64(1), calls.Load()) // initial compute only

	commitChat(t, st, "c1") // different kind entirely

	select {
	case <-sub.Updates():
		t.Fatal("unrelated commit must not trigger recomputation")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, int64(1), calls.Load())
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	st, q := setup(t)

	sub := livequery.Subscribe(q,
		[]store.Selector{{Kind: store.KindChats}},
		func(ctx context.Context) (int, error) { return 0, nil },
		livequery.Options{},
	)
	sub.Close()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Close")
	}

	commitChat(t, st, "c1")
	select {
	case <-sub.Updates():
		t.Fatal("closed subscription must not deliver")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUpdatesAreLatestWins(t *testing.T) {
	st, q := setup(t)

	sub := livequery.Subscribe(q,
		[]store.Selector{{Kind: store.KindChats}},
		func(ctx context.Context) (int64, error) {
			var n int64
			return n, st.DB().WithContext(ctx).Model(&domain.Chat{}).Count(&n).Error
		},
		livequery.Options{},
	)
	defer sub.Close()

	// Do not drain while several commits land.
	commitChat(t, st, "c1")
	commitChat(t, st, "c2")
	commitChat(t, st, "c3")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case res := <-sub.Updates():
			require.NoError(t, res.Err)
			if res.Value == 3 {
				return
			}
		case <-deadline:
			t.Fatalf("never observed the final value, current=%d", sub.Current().Value)
		}
	}
}
