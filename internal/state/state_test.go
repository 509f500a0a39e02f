package state

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"testing"

	"github.com/fairyhunter13/storefront-client/internal/model"
	"github.com/fairyhunter13/storefront-client/internal/session"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func product(id, price string) model.Product {
	return model.Product{ID: model.ID(id), Name: "P" + id, Price: decimal.RequireFromString(price)}
}

func newContainer(t *testing.T, opts Options) (*Container, *session.Store, *session.MemoryStorage) {
	t.Helper()
	mem := session.NewMemoryStorage()
	st := session.NewStore(mem)
	return New(context.Background(), st, opts), st, mem
}

func TestAddSameProductAccumulates(t *testing.T) {
	c, _, _ := newContainer(t, Options{})
	ctx := context.Background()
	p1 := product("P1", "10.00")

	c.AddToCart(ctx, p1, 1)
	c.AddToCart(ctx, p1, 2)

	cart := c.Cart()
	require.Len(t, cart, 1)
	assert.Equal(t, 3, cart[0].Quantity)
	assert.True(t, cart[0].Subtotal().Equal(decimal.RequireFromString("30.00")))
	assert.Equal(t, 3, c.ItemCount())
	assert.True(t, c.Total().Equal(decimal.NewFromInt(30)))
}

func TestAddDefaultsToOne(t *testing.T) {
	c, _, _ := newContainer(t, Options{})
	ctx := context.Background()
	c.AddToCart(ctx, product("a", "1"), 0)
	c.AddToCart(ctx, product("b", "1"), -4)
	assert.Equal(t, 2, c.ItemCount())
}

func TestAddKeepsFirstAddOrder(t *testing.T) {
	c, _, _ := newContainer(t, Options{})
	ctx := context.Background()
	c.AddToCart(ctx, product("b", "1"), 1)
	c.AddToCart(ctx, product("a", "1"), 1)
	c.AddToCart(ctx, product("b", "1"), 1)

	cart := c.Cart()
	require.Len(t, cart, 2)
	assert.Equal(t, model.ID("b"), cart[0].ID)
	assert.Equal(t, model.ID("a"), cart[1].ID)
}

func TestRandomAddsOneLinePerProduct(t *testing.T) {
	c, _, _ := newContainer(t, Options{})
	ctx := context.Background()
	r := rand.New(rand.NewSource(7))
	want := map[string]int{}
	for i := 0; i < 500; i++ {
		id := strconv.Itoa(r.Intn(12))
		q := 1 + r.Intn(5)
		want[id] += q
		c.AddToCart(ctx, product(id, "2.50"), q)
	}

	cart := c.Cart()
	assert.Len(t, cart, len(want))
	seen := map[model.ID]bool{}
	sum := 0
	for _, it := range cart {
		assert.False(t, seen[it.ID], "duplicate line for %s", it.ID)
		seen[it.ID] = true
		assert.Equal(t, want[string(it.ID)], it.Quantity)
		sum += it.Quantity
	}
	assert.Equal(t, sum, c.ItemCount())
	assert.True(t, c.Total().Equal(decimal.RequireFromString("2.50").Mul(decimal.NewFromInt(int64(sum)))))
}

func TestRemoveIsIdempotent(t *testing.T) {
	c, _, _ := newContainer(t, Options{})
	ctx := context.Background()
	c.AddToCart(ctx, product("a", "1"), 1)
	c.AddToCart(ctx, product("b", "1"), 2)

	c.RemoveFromCart(ctx, "a")
	after := c.Cart()
	c.RemoveFromCart(ctx, "a")
	assert.Equal(t, after, c.Cart())
	assert.Equal(t, 2, c.ItemCount())

	c.RemoveFromCart(ctx, "missing")
	assert.Equal(t, after, c.Cart())
}

func TestUpdateQuantityOverwrites(t *testing.T) {
	c, _, _ := newContainer(t, Options{})
	ctx := context.Background()
	c.AddToCart(ctx, product("a", "4"), 5)

	c.UpdateQuantity(ctx, "a", 2)
	assert.Equal(t, 2, c.ItemCount())
	c.UpdateQuantity(ctx, "a", 2)
	assert.Equal(t, 2, c.ItemCount())
	assert.True(t, c.Total().Equal(decimal.NewFromInt(8)))

	c.UpdateQuantity(ctx, "missing", 3)
	assert.Len(t, c.Cart(), 1)
}

func TestUpdateQuantityNonPositiveRemoves(t *testing.T) {
	c, _, _ := newContainer(t, Options{})
	ctx := context.Background()
	c.AddToCart(ctx, product("a", "1"), 3)
	c.AddToCart(ctx, product("b", "1"), 1)

	c.UpdateQuantity(ctx, "a", 0)
	c.UpdateQuantity(ctx, "b", -1)
	assert.Empty(t, c.Cart())
	assert.Zero(t, c.ItemCount())
	assert.True(t, c.Total().IsZero())
}

func TestClearCartKeepsUser(t *testing.T) {
	c, _, _ := newContainer(t, Options{})
	ctx := context.Background()
	c.SetUser(&model.User{ID: "u1"})
	c.AddToCart(ctx, product("a", "1"), 1)

	c.ClearCart(ctx)
	assert.Empty(t, c.Cart())
	require.NotNil(t, c.User())
	assert.Equal(t, model.ID("u1"), c.User().ID)
}

func TestCartReturnsCopy(t *testing.T) {
	c, _, _ := newContainer(t, Options{})
	ctx := context.Background()
	c.AddToCart(ctx, product("a", "1"), 1)

	cart := c.Cart()
	cart[0].Quantity = 99
	assert.Equal(t, 1, c.ItemCount())

	u := &model.User{ID: "u1"}
	c.SetUser(u)
	u.ID = "changed"
	assert.Equal(t, model.ID("u1"), c.User().ID)
}

func TestHydratesUserWhenTokenPresent(t *testing.T) {
	ctx := context.Background()
	st := session.NewStore(session.NewMemoryStorage())
	require.NoError(t, st.Save(ctx, "tok", model.User{ID: "u1", Username: "alice"}))

	c := New(ctx, st, Options{})
	require.NotNil(t, c.User())
	assert.Equal(t, "alice", c.User().Username)
	assert.True(t, c.IsAuthenticated())
	assert.Empty(t, c.Cart())
}

func TestNoTokenNoUser(t *testing.T) {
	ctx := context.Background()
	mem := session.NewMemoryStorage()
	require.NoError(t, mem.Set(ctx, session.KeyUser, `{"id":"u1"}`))

	c := New(ctx, session.NewStore(mem), Options{})
	assert.Nil(t, c.User())
}

func TestCorruptUserClearsSession(t *testing.T) {
	ctx := context.Background()
	mem := session.NewMemoryStorage()
	require.NoError(t, mem.Set(ctx, session.KeyToken, "tok"))
	require.NoError(t, mem.Set(ctx, session.KeyUser, "not json"))
	st := session.NewStore(mem)

	c := New(ctx, st, Options{})
	assert.Nil(t, c.User())
	assert.False(t, st.HasToken(ctx))
	assert.Zero(t, mem.Len())
}

func TestTokenWithoutUserClearsSession(t *testing.T) {
	ctx := context.Background()
	mem := session.NewMemoryStorage()
	require.NoError(t, mem.Set(ctx, session.KeyToken, "tok"))
	st := session.NewStore(mem)

	c := New(ctx, st, Options{})
	assert.Nil(t, c.User())
	assert.False(t, st.HasToken(ctx))
}

func TestLogoutClearsEverything(t *testing.T) {
	ctx := context.Background()
	c, st, mem := newContainer(t, Options{PersistCart: true})
	require.NoError(t, st.Save(ctx, "tok", model.User{ID: "u1"}))
	c.SetUser(&model.User{ID: "u1"})
	c.AddToCart(ctx, product("a", "3"), 2)

	c.Logout(ctx)
	assert.Nil(t, c.User())
	assert.Empty(t, c.Cart())
	assert.Zero(t, c.ItemCount())
	assert.False(t, st.HasToken(ctx))
	for _, k := range []string{session.KeyToken, session.KeyUser, session.KeyCart} {
		_, ok, err := mem.Get(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok, "key %s still present", k)
	}
}

func TestCartPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := session.NewMemoryStorage()
	st := session.NewStore(mem)

	c := New(ctx, st, Options{PersistCart: true})
	c.AddToCart(ctx, product("a", "1.10"), 2)
	c.AddToCart(ctx, product("b", "0.90"), 1)
	c.UpdateQuantity(ctx, "a", 3)

	restored := New(ctx, st, Options{PersistCart: true})
	cart := restored.Cart()
	require.Len(t, cart, 2)
	assert.Equal(t, model.ID("a"), cart[0].ID)
	assert.Equal(t, 3, cart[0].Quantity)
	assert.Equal(t, model.ID("b"), cart[1].ID)
	assert.Equal(t, 1, cart[1].Quantity)
	assert.True(t, restored.Total().Equal(decimal.RequireFromString("4.20")))

	fresh := New(ctx, st, Options{})
	assert.Empty(t, fresh.Cart())
}

func TestCorruptPersistedCartStartsEmpty(t *testing.T) {
	ctx := context.Background()
	mem := session.NewMemoryStorage()
	require.NoError(t, mem.Set(ctx, session.KeyCart, "[{"))

	c := New(ctx, session.NewStore(mem), Options{PersistCart: true})
	assert.Empty(t, c.Cart())
	_, ok, _ := mem.Get(ctx, session.KeyCart)
	assert.False(t, ok)
}

func TestRestoredCartIsNormalized(t *testing.T) {
	ctx := context.Background()
	mem := session.NewMemoryStorage()
	require.NoError(t, mem.Set(ctx, session.KeyCart,
		`[{"id":"a","price":"1","quantity":1},{"id":"b","price":"1","quantity":0},{"id":"a","price":"1","quantity":2}]`))

	c := New(ctx, session.NewStore(mem), Options{PersistCart: true})
	cart := c.Cart()
	require.Len(t, cart, 1)
	assert.Equal(t, 3, cart[0].Quantity)
}

type brokenStore struct{}

func (brokenStore) HasToken(context.Context) bool { return true }
func (brokenStore) LoadUser(context.Context) (*model.User, error) { return nil, errors.New("down") }
func (brokenStore) Clear(context.Context) error { return errors.New("down") }
func (brokenStore) SaveCart(context.Context, model.Cart) error { return errors.New("down") }
func (brokenStore) LoadCart(context.Context) (model.Cart, error) { return nil, errors.New("down") }
func (brokenStore) ClearCart(context.Context) error { return errors.New("down") }

func TestStorageFailuresNeverSurface(t *testing.T) {
	ctx := context.Background()
	c := New(ctx, brokenStore{}, Options{PersistCart: true})
	assert.Nil(t, c.User())

	c.AddToCart(ctx, product("a", "1"), 1)
	c.UpdateQuantity(ctx, "a", 4)
	assert.Equal(t, 4, c.ItemCount())
	c.Logout(ctx)
	assert.Empty(t, c.Cart())
}

func TestSubscribersSeeChangesInOrder(t *testing.T) {
	c, _, _ := newContainer(t, Options{})
	ctx := context.Background()
	var got []model.CartChange
	unsubscribe := c.Subscribe(func(ch model.CartChange) { got = append(got, ch) })

	c.AddToCart(ctx, product("a", "1"), 2)
	c.AddToCart(ctx, product("a", "1"), 1)
	c.UpdateQuantity(ctx, "a", 5)
	c.RemoveFromCart(ctx, "missing")
	c.RemoveFromCart(ctx, "a")
	c.ClearCart(ctx)
	c.Logout(ctx)

	assert.Equal(t, []model.CartChange{
		{Op: model.CartAdd, ProductID: "a", Quantity: 2},
		{Op: model.CartAdd, ProductID: "a", Quantity: 3},
		{Op: model.CartUpdate, ProductID: "a", Quantity: 5},
		{Op: model.CartRemove, ProductID: "a"},
		{Op: model.CartClear},
	}, got)

	unsubscribe()
	c.AddToCart(ctx, product("b", "1"), 1)
	assert.Len(t, got, 5)
}

func TestConcurrentTransitions(t *testing.T) {
	c, _, _ := newContainer(t, Options{})
	ctx := context.Background()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.AddToCart(ctx, product("shared", "1"), 1)
				_ = c.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	require.Len(t, snap.Cart, 1)
	assert.Equal(t, 800, snap.ItemCount)
	assert.True(t, snap.Total.Equal(decimal.NewFromInt(800)))
}
