package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"flower-storefront/internal/catalog"
	"flower-storefront/internal/models"
	"flower-storefront/internal/storage"
)

// Mode tells where the reconciler mirrors its state
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// Remote is the part of the backend client used for cart and favorites
type Remote interface {
	ListCart(ctx context.Context, userID string) ([]models.RemoteCartRow, error)
	AddCartLine(ctx context.Context, userID, productID string, quantity int) error
	UpdateCartQuantity(ctx context.Context, userID, productID string, quantity int) error
	RemoveCartLine(ctx context.Context, userID, productID string) error
	ClearCart(ctx context.Context, userID string) error
	ListFavorites(ctx context.Context, userID string) ([]models.Product, error)
	AddFavorite(ctx context.Context, userID, productID string) error
	RemoveFavorite(ctx context.Context, userID, productID string) error
}

// ProductLookup resolves the display fields copied onto new lines
type ProductLookup interface {
	Lookup(ctx context.Context, productID string) (models.Product, error)
}

// FailureRecorder is told about every swallowed write failure
type FailureRecorder interface {
	RecordWriteFailure(ctx context.Context, op string)
}

// SyncStatus reports the health of the write path
type SyncStatus struct {
	Mode          Mode      `json:"mode"`
	PendingWrites int64     `json:"pendingWrites"`
	FailedWrites  int64     `json:"failedWrites"`
	LastError     string    `json:"lastError,omitempty"`
	LastFailureAt time.Time `json:"lastFailureAt,omitempty"`
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithFailureRecorder reports swallowed write failures to rec
func WithFailureRecorder(rec FailureRecorder) Option {
	return func(r *Reconciler) { r.recorder = rec }
}

// WithLocalStore persists local-only state under namespace
func WithLocalStore(store storage.LocalStore, namespace string) Option {
	return func(r *Reconciler) {
		r.store = store
		r.namespace = namespace
	}
}

const (
	cartPrefix     = "cart:"
	favoritePrefix = "fav:"
)

// Reconciler owns the cart and favorites of one session. Every mutation is
// applied locally first. With an identity it is then flushed to the backend
// as one absolute call per product; without one it is saved to the local store.
//
// Flushes of the same product are serialized and coalesced: a flush that finds
// its state already shipped by a later flush sends nothing. Failed writes are
// logged and counted; the local state stands.
type Reconciler struct {
	remote    Remote
	lookup    ProductLookup
	store     storage.LocalStore
	namespace string
	recorder  FailureRecorder

	mu        sync.RWMutex
	identity  *models.UserIdentity
	cart      []models.CartLine
	favorites []models.FavoriteEntry

	// last acknowledged remote state
	remoteCart      map[string]int
	remoteFavorites map[string]bool

	versions map[string]uint64
	shipped  map[string]uint64

	locks   *ProductLockManager
	clearMu sync.RWMutex
	saveMu  sync.Mutex

	pending   atomic.Int64
	failed    atomic.Int64
	statusMu  sync.Mutex
	lastError string
	lastFail  time.Time
}

// New creates a reconciler in local-only mode
func New(remote Remote, lookup ProductLookup, opts ...Option) *Reconciler {
	r := &Reconciler{
		remote:          remote,
		lookup:          lookup,
		remoteCart:      make(map[string]int),
		remoteFavorites: make(map[string]bool),
		versions:        make(map[string]uint64),
		shipped:         make(map[string]uint64),
		locks:           NewProductLockManager(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mode returns the current mode
func (r *Reconciler) Mode() Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modeLocked()
}

func (r *Reconciler) modeLocked() Mode {
	if r.identity != nil {
		return ModeRemote
	}
	return ModeLocal
}

// Identity returns the backing identity, or nil in local-only mode
func (r *Reconciler) Identity() *models.UserIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.identity == nil {
		return nil
	}
	id := *r.identity
	return &id
}

// Namespace returns the local store namespace
func (r *Reconciler) Namespace() string {
	return r.namespace
}

// Load replaces the in-memory state with the persisted one: the local store in
// local-only mode, the backend collections otherwise
func (r *Reconciler) Load(ctx context.Context) error {
	r.mu.RLock()
	identity := r.identity
	r.mu.RUnlock()

	if identity == nil {
		cart, favorites := r.loadLocal(ctx)
		r.mu.Lock()
		r.cart = cart
		r.favorites = favorites
		r.mu.Unlock()
		slog.Debug("Local state loaded", "namespace", r.namespace, "cart_lines", len(cart), "favorites", len(favorites))
		return nil
	}

	cart, favorites, err := r.fetchRemote(ctx, identity.ID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.cart = cart
	r.favorites = favorites
	r.remoteCart = cartMirror(cart)
	r.remoteFavorites = favoriteMirror(favorites)
	r.mu.Unlock()

	slog.Debug("Remote state loaded", "user_id", identity.ID, "cart_lines", len(cart), "favorites", len(favorites))
	return nil
}

// Attach switches a local-only reconciler to remote-backed mode. The remote and
// local collections are merged (local quantity and snapshot win), the
// differences are pushed and the local record is cleared. If any push fails the
// merged state is written back to the local record so the next Attach retries it.
func (r *Reconciler) Attach(ctx context.Context, identity models.UserIdentity) error {
	r.mu.RLock()
	attached := r.identity != nil
	r.mu.RUnlock()
	if attached {
		return ErrAlreadyAttached
	}

	remoteCart, remoteFavorites, err := r.fetchRemote(ctx, identity.ID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	localCart, localFavorites := len(r.cart), len(r.favorites)
	r.identity = &identity
	r.remoteCart = cartMirror(remoteCart)
	r.remoteFavorites = favoriteMirror(remoteFavorites)
	r.cart = mergeCart(r.cart, remoteCart)
	r.favorites = mergeFavorites(r.favorites, remoteFavorites)

	var dirty []string
	for _, line := range r.cart {
		if r.remoteCart[line.ProductID] != line.Quantity {
			dirty = append(dirty, cartPrefix+line.ProductID)
		}
	}
	for _, fav := range r.favorites {
		if !r.remoteFavorites[fav.ProductID] {
			dirty = append(dirty, favoritePrefix+fav.ProductID)
		}
	}
	versions := make([]uint64, len(dirty))
	for i, key := range dirty {
		versions[i] = r.bumpLocked(key)
	}
	r.mu.Unlock()

	slog.Info("Attached local state to identity",
		"user_id", identity.ID,
		"namespace", r.namespace,
		"local_cart_lines", localCart,
		"local_favorites", localFavorites,
		"remote_cart_lines", len(remoteCart),
		"remote_favorites", len(remoteFavorites),
		"pushed", len(dirty))

	pushed := true
	for i, key := range dirty {
		if !r.flush(ctx, key, versions[i]) {
			pushed = false
		}
	}

	if r.store == nil {
		return nil
	}
	if !pushed {
		slog.Warn("Keeping local record, some writes failed during attach",
			"user_id", identity.ID,
			"namespace", r.namespace)
		r.saveLocal(ctx)
		return nil
	}
	for _, collection := range []string{storage.CollectionCart, storage.CollectionFavorites} {
		if err := r.store.Delete(ctx, r.namespace, collection); err != nil {
			slog.Warn("Failed to clear local record after attach",
				"namespace", r.namespace,
				"collection", collection,
				"error", err)
		}
	}
	return nil
}

// Add puts one more unit of productID in the cart. A new line copies the
// product's current name, price and images.
func (r *Reconciler) Add(ctx context.Context, productID string) error {
	if !r.InCart(productID) {
		product, err := r.lookup.Lookup(ctx, productID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				return fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
			}
			return err
		}

		r.mu.Lock()
		if idx := r.cartIndexLocked(productID); idx >= 0 {
			r.cart[idx].Quantity++
		} else {
			r.cart = append(r.cart, models.CartLine{
				ProductID: product.ID,
				Name:      product.Name,
				Price:     product.Price,
				Images:    slices.Clone(product.Images),
				Quantity:  1,
			})
		}
		version := r.bumpLocked(cartPrefix + productID)
		r.mu.Unlock()

		r.commit(ctx, cartPrefix+productID, version)
		return nil
	}

	r.mu.Lock()
	idx := r.cartIndexLocked(productID)
	if idx < 0 {
		// removed concurrently, start over
		r.mu.Unlock()
		return r.Add(ctx, productID)
	}
	r.cart[idx].Quantity++
	version := r.bumpLocked(cartPrefix + productID)
	r.mu.Unlock()

	r.commit(ctx, cartPrefix+productID, version)
	return nil
}

// SetQuantity sets the absolute quantity of an existing line. Quantities
// below 1 are rejected without touching state; use Remove instead.
func (r *Reconciler) SetQuantity(ctx context.Context, productID string, quantity int) error {
	if quantity < 1 {
		return &ValidationError{Field: "quantity", Value: quantity, Err: ErrQuantityFloor}
	}

	r.mu.Lock()
	idx := r.cartIndexLocked(productID)
	if idx < 0 {
		r.mu.Unlock()
		return ErrNotInCart
	}
	if r.cart[idx].Quantity == quantity {
		r.mu.Unlock()
		return nil
	}
	r.cart[idx].Quantity = quantity
	version := r.bumpLocked(cartPrefix + productID)
	r.mu.Unlock()

	r.commit(ctx, cartPrefix+productID, version)
	return nil
}

// Remove deletes the line of productID. Removing an absent line is a no-op.
func (r *Reconciler) Remove(ctx context.Context, productID string) error {
	r.mu.Lock()
	idx := r.cartIndexLocked(productID)
	if idx < 0 {
		r.mu.Unlock()
		return nil
	}
	r.cart = slices.Delete(r.cart, idx, idx+1)
	version := r.bumpLocked(cartPrefix + productID)
	r.mu.Unlock()

	r.commit(ctx, cartPrefix+productID, version)
	return nil
}

// Clear empties the cart with a single remote call
func (r *Reconciler) Clear(ctx context.Context) error {
	r.clearMu.Lock()
	defer r.clearMu.Unlock()

	r.mu.Lock()
	cleared := len(r.cart)
	for _, line := range r.cart {
		key := cartPrefix + line.ProductID
		// pending flushes for these lines have nothing left to send
		r.shipped[key] = r.bumpLocked(key)
	}
	r.cart = nil
	identity := r.identity
	r.mu.Unlock()

	if identity == nil {
		r.saveLocal(ctx)
		return nil
	}

	r.pending.Add(1)
	err := r.remote.ClearCart(ctx, identity.ID)
	r.pending.Add(-1)
	if err != nil {
		r.recordFailure(ctx, "clear cart", "", err)
		return nil
	}

	r.mu.Lock()
	clear(r.remoteCart)
	r.mu.Unlock()

	slog.Debug("Cart cleared", "user_id", identity.ID, "lines", cleared)
	return nil
}

// Toggle flips the favorite flag of productID and returns the new value
func (r *Reconciler) Toggle(ctx context.Context, productID string) (bool, error) {
	if r.IsFavorite(productID) {
		r.mu.Lock()
		if idx := r.favoriteIndexLocked(productID); idx >= 0 {
			r.favorites = slices.Delete(r.favorites, idx, idx+1)
		}
		version := r.bumpLocked(favoritePrefix + productID)
		r.mu.Unlock()

		r.commit(ctx, favoritePrefix+productID, version)
		return false, nil
	}

	product, err := r.lookup.Lookup(ctx, productID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return false, fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
		}
		return false, err
	}

	r.mu.Lock()
	if r.favoriteIndexLocked(productID) < 0 {
		r.favorites = append(r.favorites, models.FavoriteEntry{
			ProductID:  product.ID,
			Name:       product.Name,
			Price:      product.Price,
			Images:     slices.Clone(product.Images),
			IsFavorite: true,
		})
	}
	version := r.bumpLocked(favoritePrefix + productID)
	r.mu.Unlock()

	r.commit(ctx, favoritePrefix+productID, version)
	return true, nil
}

// ClearFavorites removes every favorite. The backend has no bulk call, so
// each product is flushed on its own.
func (r *Reconciler) ClearFavorites(ctx context.Context) error {
	r.mu.Lock()
	keys := make([]string, 0, len(r.favorites))
	versions := make([]uint64, 0, len(r.favorites))
	for _, fav := range r.favorites {
		key := favoritePrefix + fav.ProductID
		keys = append(keys, key)
		versions = append(versions, r.bumpLocked(key))
	}
	r.favorites = nil
	remote := r.identity != nil
	r.mu.Unlock()

	if !remote {
		r.saveLocal(ctx)
		return nil
	}
	for i, key := range keys {
		r.flush(ctx, key, versions[i])
	}
	return nil
}

// Cart returns a copy of the cart lines
func (r *Reconciler) Cart() []models.CartLine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.CartLine, len(r.cart))
	for i, line := range r.cart {
		line.Images = slices.Clone(line.Images)
		out[i] = line
	}
	return out
}

// Favorites returns a copy of the favorite entries
func (r *Reconciler) Favorites() []models.FavoriteEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.FavoriteEntry, len(r.favorites))
	for i, fav := range r.favorites {
		fav.Images = slices.Clone(fav.Images)
		out[i] = fav
	}
	return out
}

// CartCount returns the total number of units in the cart
func (r *Reconciler) CartCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, line := range r.cart {
		count += line.Quantity
	}
	return count
}

// CartTotal returns the sum of price times quantity
func (r *Reconciler) CartTotal() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	for _, line := range r.cart {
		total += line.Subtotal()
	}
	return total
}

// InCart reports whether the cart has a line for productID
func (r *Reconciler) InCart(productID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cartIndexLocked(productID) >= 0
}

// IsFavorite reports whether productID is in favorites
func (r *Reconciler) IsFavorite(productID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.favoriteIndexLocked(productID) >= 0
}

// Status returns write path counters
func (r *Reconciler) Status() SyncStatus {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	return SyncStatus{
		Mode:          r.Mode(),
		PendingWrites: r.pending.Load(),
		FailedWrites:  r.failed.Load(),
		LastError:     r.lastError,
		LastFailureAt: r.lastFail,
	}
}

func (r *Reconciler) cartIndexLocked(productID string) int {
	return slices.IndexFunc(r.cart, func(l models.CartLine) bool { return l.ProductID == productID })
}

func (r *Reconciler) favoriteIndexLocked(productID string) int {
	return slices.IndexFunc(r.favorites, func(f models.FavoriteEntry) bool { return f.ProductID == productID })
}

func (r *Reconciler) bumpLocked(key string) uint64 {
	r.versions[key]++
	return r.versions[key]
}

// commit makes a local mutation durable in the current mode
func (r *Reconciler) commit(ctx context.Context, key string, version uint64) {
	if r.Mode() == ModeLocal {
		r.saveLocal(ctx)
		return
	}
	r.flush(ctx, key, version)
}

// flush ships the current local state of one product, unless a later flush already did.
// It reports false only when the remote call failed.
func (r *Reconciler) flush(ctx context.Context, key string, version uint64) bool {
	r.clearMu.RLock()
	defer r.clearMu.RUnlock()

	ok := true
	r.locks.WithProductLock(key, func() {
		r.mu.Lock()
		if r.shipped[key] >= version || r.identity == nil {
			r.mu.Unlock()
			return
		}
		r.shipped[key] = r.versions[key]
		userID := r.identity.ID
		productID, isCart := splitKey(key)

		var desired, mirrored int
		if isCart {
			if idx := r.cartIndexLocked(productID); idx >= 0 {
				desired = r.cart[idx].Quantity
			}
			mirrored = r.remoteCart[productID]
		} else {
			if r.favoriteIndexLocked(productID) >= 0 {
				desired = 1
			}
			if r.remoteFavorites[productID] {
				mirrored = 1
			}
		}
		r.mu.Unlock()

		if desired == mirrored {
			return
		}

		r.pending.Add(1)
		op, err := r.send(ctx, userID, productID, isCart, desired, mirrored)
		r.pending.Add(-1)
		if err != nil {
			ok = false
			r.recordFailure(ctx, op, productID, err)
			return
		}

		r.mu.Lock()
		switch {
		case isCart && desired == 0:
			delete(r.remoteCart, productID)
		case isCart:
			r.remoteCart[productID] = desired
		case desired == 0:
			delete(r.remoteFavorites, productID)
		default:
			r.remoteFavorites[productID] = true
		}
		r.mu.Unlock()

		slog.Debug("Remote state updated", "op", op, "user_id", userID, "product_id", productID, "value", desired)
	})
	return ok
}

// send issues the single call that moves the remote from mirrored to desired
func (r *Reconciler) send(ctx context.Context, userID, productID string, isCart bool, desired, mirrored int) (string, error) {
	if !isCart {
		if desired > 0 {
			return "add favorite", r.remote.AddFavorite(ctx, userID, productID)
		}
		return "remove favorite", r.remote.RemoveFavorite(ctx, userID, productID)
	}

	switch {
	case desired == 0:
		return "remove cart line", r.remote.RemoveCartLine(ctx, userID, productID)
	case mirrored == 0:
		return "add cart line", r.remote.AddCartLine(ctx, userID, productID, desired)
	default:
		return "update cart quantity", r.remote.UpdateCartQuantity(ctx, userID, productID, desired)
	}
}

func (r *Reconciler) recordFailure(ctx context.Context, op, productID string, err error) {
	r.failed.Add(1)
	r.statusMu.Lock()
	r.lastError = fmt.Sprintf("%s: %v", op, err)
	r.lastFail = time.Now()
	r.statusMu.Unlock()

	slog.Error("Write failed, keeping local state",
		"op", op,
		"product_id", productID,
		"namespace", r.namespace,
		"error", err)

	if r.recorder != nil {
		r.recorder.RecordWriteFailure(ctx, op)
	}
}

func (r *Reconciler) fetchRemote(ctx context.Context, userID string) ([]models.CartLine, []models.FavoriteEntry, error) {
	rows, err := r.remote.ListCart(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list remote cart: %w", err)
	}
	products, err := r.remote.ListFavorites(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list remote favorites: %w", err)
	}

	cart := make([]models.CartLine, 0, len(rows))
	for _, row := range rows {
		if row.Quantity < 1 || slices.ContainsFunc(cart, func(l models.CartLine) bool { return l.ProductID == row.ID }) {
			continue
		}
		cart = append(cart, models.CartLine{
			ProductID: row.ID,
			Name:      row.Name,
			Price:     row.Price,
			Images:    row.Images,
			Quantity:  row.Quantity,
		})
	}

	favorites := make([]models.FavoriteEntry, 0, len(products))
	for _, p := range products {
		if slices.ContainsFunc(favorites, func(f models.FavoriteEntry) bool { return f.ProductID == p.ID }) {
			continue
		}
		favorites = append(favorites, models.FavoriteEntry{
			ProductID:  p.ID,
			Name:       p.Name,
			Price:      p.Price,
			Images:     p.Images,
			IsFavorite: true,
		})
	}
	return cart, favorites, nil
}

func (r *Reconciler) loadLocal(ctx context.Context) ([]models.CartLine, []models.FavoriteEntry) {
	var cart []models.CartLine
	var favorites []models.FavoriteEntry
	if r.store == nil {
		return cart, favorites
	}
	r.readLocal(ctx, storage.CollectionCart, &cart)
	r.readLocal(ctx, storage.CollectionFavorites, &favorites)
	return cart, favorites
}

func (r *Reconciler) readLocal(ctx context.Context, collection string, out any) {
	data, err := r.store.Load(ctx, r.namespace, collection)
	if err != nil {
		slog.Warn("Failed to read local record, starting empty", "namespace", r.namespace, "collection", collection, "error", err)
		return
	}
	if len(data) == 0 {
		return
	}
	if err := json.Unmarshal(data, out); err != nil {
		slog.Warn("Corrupt local record, starting empty", "namespace", r.namespace, "collection", collection, "error", err)
	}
}

// saveLocal writes both collections. Saves are serialized and each one
// snapshots the state it writes, so the last save always holds the latest state.
func (r *Reconciler) saveLocal(ctx context.Context) {
	if r.store == nil {
		return
	}
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	cart := r.Cart()
	favorites := r.Favorites()

	for collection, value := range map[string]any{
		storage.CollectionCart:      cart,
		storage.CollectionFavorites: favorites,
	} {
		data, err := json.Marshal(value)
		if err != nil {
			r.recordFailure(ctx, "encode "+collection, "", err)
			continue
		}
		if err := r.store.Save(ctx, r.namespace, collection, data); err != nil {
			r.recordFailure(ctx, "save "+collection, "", err)
		}
	}
}

func splitKey(key string) (productID string, isCart bool) {
	if id, ok := strings.CutPrefix(key, cartPrefix); ok {
		return id, true
	}
	return strings.TrimPrefix(key, favoritePrefix), false
}
