package payments

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mountTime = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, ttl time.Duration, clock *time.Time) *MemoryPageStore {
	t.Helper()
	store := NewMemoryPageStore(0)
	store.ttl = ttl
	store.now = func() time.Time { return *clock }
	t.Cleanup(store.Close)
	return store
}

func TestMemoryPageStoreReturnsCopies(t *testing.T) {
	clock := mountTime
	store := newTestStore(t, 0, &clock)

	page := newPage("page-1", mountTime)
	page.applyIdentity(User{ID: "user-000001", FirstName: "Ada"})
	require.NoError(t, store.Create(page))

	page.User.FirstName = "changed"
	got, err := store.Get("page-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.User.FirstName, "store must not alias the created page")

	got.Card.CardNumber = "4111"
	again, _ := store.Get("page-1")
	assert.Empty(t, again.Card.CardNumber, "store must not alias returned pages")
}

func TestMemoryPageStoreCreateRejectsDuplicates(t *testing.T) {
	clock := mountTime
	store := newTestStore(t, 0, &clock)

	require.NoError(t, store.Create(newPage("page-1", mountTime)))
	assert.Error(t, store.Create(newPage("page-1", mountTime)))
	assert.Error(t, store.Create(&Page{}))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryPageStoreUpdateIsAllOrNothing(t *testing.T) {
	clock := mountTime
	store := newTestStore(t, 0, &clock)
	require.NoError(t, store.Create(newPage("page-1", mountTime)))

	boom := errors.New("boom")
	_, err := store.Update("page-1", func(p *Page) error {
		p.Cash.BankName = "First Bank"
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, _ := store.Get("page-1")
	assert.Empty(t, got.Cash.BankName)

	updated, err := store.Update("page-1", func(p *Page) error {
		p.Cash.BankName = "First Bank"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "First Bank", updated.Cash.BankName)
}

func TestMemoryPageStoreUnknownPage(t *testing.T) {
	clock := mountTime
	store := newTestStore(t, 0, &clock)

	_, err := store.Get("missing")
	assert.ErrorIs(t, err, ErrPageNotFound)
	_, err = store.Update("missing", func(*Page) error { return nil })
	assert.ErrorIs(t, err, ErrPageNotFound)
	assert.ErrorIs(t, store.Delete("missing"), ErrPageNotFound)
}

func TestMemoryPageStoreIdleExpiry(t *testing.T) {
	clock := mountTime
	store := newTestStore(t, 30*time.Minute, &clock)
	require.NoError(t, store.Create(newPage("page-1", mountTime)))
	require.NoError(t, store.Create(newPage("page-2", mountTime)))

	clock = clock.Add(20 * time.Minute)
	_, err := store.Get("page-1")
	require.NoError(t, err, "access refreshes the idle timer")

	clock = clock.Add(20 * time.Minute)
	assert.Equal(t, 1, store.evictExpired())
	assert.Equal(t, 1, store.Len())

	_, err = store.Get("page-2")
	assert.ErrorIs(t, err, ErrPageNotFound)
	_, err = store.Get("page-1")
	assert.NoError(t, err)

	clock = clock.Add(31 * time.Minute)
	_, err = store.Get("page-1")
	assert.ErrorIs(t, err, ErrPageNotFound, "lookup drops expired pages")
}

func TestEvictInterval(t *testing.T) {
	assert.Equal(t, time.Second, evictInterval(time.Second))
	assert.Equal(t, 5*time.Minute, evictInterval(time.Hour*24))
	assert.Equal(t, 2*time.Minute, evictInterval(8*time.Minute))
}
