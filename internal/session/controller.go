// Package session is the storefront session state machine. A Controller owns
// the navigation mode, the loaded catalog, the cart, the order sheet and the
// submission protocol for one host session.
//
// Controller methods are safe for concurrent use. State lives under a single
// mutex that is never held across a backend call; operations that call the
// backend block only the calling goroutine.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/R3E-Network/miniapp_storefront/internal/cart"
	"github.com/R3E-Network/miniapp_storefront/internal/config"
	"github.com/R3E-Network/miniapp_storefront/internal/domain"
	sferrors "github.com/R3E-Network/miniapp_storefront/internal/errors"
	"github.com/R3E-Network/miniapp_storefront/internal/graphql"
	"github.com/R3E-Network/miniapp_storefront/internal/hostchrome"
	"github.com/R3E-Network/miniapp_storefront/internal/metrics"
	"github.com/R3E-Network/miniapp_storefront/internal/notify"
	"github.com/R3E-Network/miniapp_storefront/pkg/logger"
)

// Catalog is the backend the controller reads from and submits to.
// *catalog.Client implements it.
type Catalog interface {
	FetchStores(ctx context.Context) ([]domain.Store, error)
	FetchStoreCatalog(ctx context.Context, storeID string) (map[string]domain.Category, error)
	SubmitOrder(ctx context.Context, entries []domain.CartEntry, req domain.OrderRequest) (domain.OrderDraft, error)
}

// Notifier shows transient messages. *notify.Channel implements it.
type Notifier interface {
	Post(text string, kind notify.Kind, opts ...notify.Option) notify.Notification
}

// Config wires a Controller.
type Config struct {
	Catalog   Catalog
	Notifier  Notifier
	Navigator hostchrome.Navigator
	Host      hostchrome.InitData
	Messages  config.Messages

	BuyerEmailDomain string
	DefaultCurrency  string
	Logger           *logger.Logger
}

// Controller is one session.
type Controller struct {
	catalog   Catalog
	notifier  Notifier
	navigator hostchrome.Navigator
	host      hostchrome.InitData
	msgs      config.Messages
	buyer     domain.Buyer
	currency  string
	log       *logger.Logger

	mu             sync.Mutex
	mode           Mode
	stores         []domain.Store
	storesLoading  bool
	storesErr      string
	storesGen      uint64
	store          *domain.Store
	storeEpoch     uint64
	catalogGen     uint64
	catalogLoading bool
	catalogErr     string
	categories     map[string]domain.Category
	activeCategory string
	cart           *cart.Cart
	sheetOpen      bool
	submitting     bool
	theme          hostchrome.Theme
	version        uint64

	listenersMu sync.Mutex
	listeners   map[int]func(Snapshot)
	nextID      int
	dispatchMu  sync.Mutex
	dispatched  uint64
}

// New creates a session in ModeBrowsing.
func New(cfg Config) (*Controller, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("session")
	}
	msgs := cfg.Messages
	if msgs == (config.Messages{}) {
		msgs = config.DefaultMessages()
	}

	buyer := BuyerFor(cfg.Host, cfg.BuyerEmailDomain)
	return &Controller{
		catalog:   cfg.Catalog,
		notifier:  cfg.Notifier,
		navigator: cfg.Navigator,
		host:      cfg.Host,
		msgs:      msgs,
		buyer:     buyer,
		currency:  strings.ToUpper(strings.TrimSpace(cfg.DefaultCurrency)),
		log:       log.With("buyer_id", buyer.ID),
		mode:      ModeBrowsing,
		cart:      cart.New(),
		listeners: make(map[int]func(Snapshot)),
	}, nil
}

// Buyer returns the session's order identity.
func (c *Controller) Buyer() domain.Buyer {
	return c.buyer
}

// =============================================================================
// Observation
// =============================================================================

// Subscribe registers fn to receive a snapshot after every change. Snapshots
// are delivered in version order; a snapshot superseded before delivery is
// skipped. fn must not call back into the controller synchronously. The
// returned func unsubscribes.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

// Snapshot renders the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// ChromeState implements hostchrome.Session.
func (c *Controller) ChromeState() hostchrome.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.cart.Summarize()
	return hostchrome.State{
		Items:        s.Items,
		Total:        s.Total,
		ViewingStore: c.mode == ModeViewingStore,
		SheetOpen:    c.sheetOpen,
	}
}

// changedLocked bumps the version and captures the snapshot to publish once
// the lock is released.
func (c *Controller) changedLocked() Snapshot {
	c.version++
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	summary := c.cart.Summarize()
	snap := Snapshot{
		Version:          c.version,
		Mode:             c.mode,
		Stores:           append([]domain.Store(nil), c.stores...),
		StoresLoading:    c.storesLoading,
		StoresError:      c.storesErr,
		CatalogLoading:   c.catalogLoading,
		CatalogError:     c.catalogErr,
		Categories:       domain.SortedCategories(c.categories),
		ActiveCategoryID: c.activeCategory,
		Cart:             c.cart.Entries(),
		Summary:          summary,
		TotalLabel:       summary.Total.Format(c.currency),
		SheetOpen:        c.sheetOpen,
		Submitting:       c.submitting,
		Theme:            c.theme,
	}
	if c.store != nil {
		s := *c.store
		snap.Store = &s
	}
	return snap
}

func (c *Controller) publish(snap Snapshot) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	if snap.Version <= c.dispatched {
		return
	}
	c.dispatched = snap.Version

	c.listenersMu.Lock()
	fns := make([]func(Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenersMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// withHost attaches the host init data so backend calls are authenticated.
func (c *Controller) withHost(ctx context.Context) context.Context {
	if c.host.Raw == "" {
		return ctx
	}
	return graphql.WithInitData(ctx, c.host.Raw)
}

// =============================================================================
// Stores
// =============================================================================

// Start loads the store list. When the host launched the session with a
// start parameter naming a store (ID or slug), that store is opened.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.ReloadStores(ctx); err != nil {
		return err
	}
	if param := strings.TrimSpace(c.host.StartParam); param != "" {
		if store, ok := c.findStore(param); ok {
			return c.SelectStore(ctx, store)
		}
		c.log.WithField("start_param", param).Debug("start parameter names no store")
	}
	return nil
}

// ReloadStores fetches the store list. A failure replaces the list with a
// persistent retry state rather than a transient notification.
func (c *Controller) ReloadStores(ctx context.Context) error {
	c.mu.Lock()
	c.storesGen++
	gen := c.storesGen
	c.storesLoading = true
	c.storesErr = ""
	snap := c.changedLocked()
	c.mu.Unlock()
	c.publish(snap)

	stores, err := c.catalog.FetchStores(c.withHost(ctx))

	c.mu.Lock()
	if gen != c.storesGen {
		c.mu.Unlock()
		return err
	}
	c.storesLoading = false
	if err != nil {
		c.stores = nil
		c.storesErr = c.msgs.StoresUnavailable
	} else {
		c.stores = stores
	}
	snap = c.changedLocked()
	c.mu.Unlock()
	c.publish(snap)

	if err != nil {
		c.log.WithError(err).Warn("failed to load stores")
		return err
	}
	c.log.WithField("count", len(stores)).Debug("stores loaded")
	return nil
}

// LookupStore finds a loaded store by ID.
func (c *Controller) LookupStore(id string) (domain.Store, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.stores {
		if s.ID == id {
			return s, true
		}
	}
	return domain.Store{}, false
}

func (c *Controller) findStore(ref string) (domain.Store, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.stores {
		if s.ID == ref || (s.Slug != "" && s.Slug == ref) {
			return s, true
		}
	}
	return domain.Store{}, false
}

// =============================================================================
// Store navigation
// =============================================================================

// SelectStore enters the store, empties the cart and loads its catalog. The
// mode changes before the fetch starts; a failed fetch leaves the session in
// the store with an empty catalog and a retry message.
func (c *Controller) SelectStore(ctx context.Context, store domain.Store) error {
	if strings.TrimSpace(store.ID) == "" {
		return sferrors.Invariant("SelectStore", "a store must have an ID")
	}

	c.log.WithField("store_id", store.ID).Debug("store selected")
	return c.loadCatalog(ctx, "SelectStore", func() {
		s := store
		c.mode = ModeViewingStore
		c.store = &s
		c.storeEpoch++
		c.cart.Clear()
		c.sheetOpen = false
		c.categories = nil
		c.activeCategory = ""
	})
}

// RetryCatalog re-fetches the current store's catalog.
func (c *Controller) RetryCatalog(ctx context.Context) error {
	return c.loadCatalog(ctx, "RetryCatalog", nil)
}

// loadCatalog runs enter (if any) and issues the fetch under one lock
// acquisition, then applies the result only if no later load or exit has
// happened since.
func (c *Controller) loadCatalog(ctx context.Context, op string, enter func()) error {
	c.mu.Lock()
	if enter != nil {
		enter()
	}
	if c.mode != ModeViewingStore || c.store == nil {
		c.mu.Unlock()
		return sferrors.Invariant(op, "no store is selected")
	}
	c.catalogGen++
	gen := c.catalogGen
	storeID := c.store.ID
	c.catalogLoading = true
	c.catalogErr = ""
	snap := c.changedLocked()
	c.mu.Unlock()
	c.publish(snap)

	cats, err := c.catalog.FetchStoreCatalog(c.withHost(ctx), storeID)

	c.mu.Lock()
	if gen != c.catalogGen {
		c.mu.Unlock()
		c.log.WithField("store_id", storeID).Debug("discarding stale catalog result")
		return err
	}
	c.catalogLoading = false
	if err != nil {
		c.categories = map[string]domain.Category{}
		c.activeCategory = ""
		c.catalogErr = c.msgs.CatalogUnavailable
	} else {
		c.categories = cats
		c.activeCategory = domain.FirstCategoryID(cats)
	}
	snap = c.changedLocked()
	c.mu.Unlock()
	c.publish(snap)

	if err != nil {
		c.log.WithField("store_id", storeID).WithError(err).Warn("failed to load store catalog")
		c.notifier.Post(c.msgs.CatalogUnavailable, notify.KindError)
		return err
	}
	return nil
}

// SelectCategory changes the active category. Unknown IDs are ignored.
func (c *Controller) SelectCategory(id string) bool {
	c.mu.Lock()
	if c.mode != ModeViewingStore || c.activeCategory == id {
		c.mu.Unlock()
		return false
	}
	if _, ok := c.categories[id]; !ok {
		c.mu.Unlock()
		return false
	}
	c.activeCategory = id
	snap := c.changedLocked()
	c.mu.Unlock()
	c.publish(snap)
	return true
}

// LookupProduct finds a product in the loaded catalog.
func (c *Controller) LookupProduct(id string) (domain.Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cat := range c.categories {
		for _, p := range cat.Products {
			if p.ID == id {
				return p, true
			}
		}
	}
	return domain.Product{}, false
}

// Exit returns to the store list, dropping the cart, the catalog and the
// order sheet. An in-flight catalog load is discarded when it completes; an
// in-flight submission is not cancelled.
func (c *Controller) Exit() bool {
	c.mu.Lock()
	if c.mode == ModeBrowsing && !c.sheetOpen {
		c.mu.Unlock()
		return false
	}
	c.mode = ModeBrowsing
	c.store = nil
	c.storeEpoch++
	c.catalogGen++
	c.catalogLoading = false
	c.catalogErr = ""
	c.categories = nil
	c.activeCategory = ""
	c.cart.Clear()
	c.sheetOpen = false
	snap := c.changedLocked()
	c.mu.Unlock()
	c.publish(snap)
	return true
}

// SetTheme records the host theme for rendering.
func (c *Controller) SetTheme(theme hostchrome.Theme) {
	c.mu.Lock()
	c.theme = theme
	snap := c.changedLocked()
	c.mu.Unlock()
	c.publish(snap)
}

// =============================================================================
// Cart
// =============================================================================

// AddOrAdjust changes a product's quantity by delta.
func (c *Controller) AddOrAdjust(p domain.Product, delta int) error {
	return c.mutateCart("AddOrAdjust", p, func(current int) int { return current + delta })
}

// SetQuantity sets a product's quantity; zero or less removes it.
func (c *Controller) SetQuantity(p domain.Product, quantity int) error {
	return c.mutateCart("SetQuantity", p, func(int) int { return quantity })
}

func (c *Controller) mutateCart(op string, p domain.Product, next func(current int) int) error {
	c.mu.Lock()
	if c.mode != ModeViewingStore {
		c.mu.Unlock()
		metrics.RecordCartMutation("rejected")
		return sferrors.Invariant(op, "open a store before adding items")
	}
	if !p.Purchasable() {
		c.mu.Unlock()
		metrics.RecordCartMutation("rejected")
		return sferrors.Invariant(op, c.msgs.NotPurchasable)
	}

	current := c.cart.Quantity(p.ID)
	qty := next(current)
	c.cart.SetQuantity(p, qty)
	if c.cart.IsEmpty() {
		c.sheetOpen = false
	}
	snap := c.changedLocked()
	c.mu.Unlock()
	c.publish(snap)

	switch {
	case qty <= 0:
		metrics.RecordCartMutation("remove")
	case current == 0:
		metrics.RecordCartMutation("add")
	default:
		metrics.RecordCartMutation("update")
	}
	return nil
}

// =============================================================================
// Order sheet
// =============================================================================

// OpenOrderSheet shows the order sheet. It needs a non-empty cart.
func (c *Controller) OpenOrderSheet() bool {
	c.mu.Lock()
	if c.sheetOpen || c.cart.IsEmpty() {
		c.mu.Unlock()
		return false
	}
	c.sheetOpen = true
	snap := c.changedLocked()
	c.mu.Unlock()
	c.publish(snap)
	return true
}

// CloseOrderSheet hides the order sheet.
func (c *Controller) CloseOrderSheet() bool {
	c.mu.Lock()
	if !c.sheetOpen {
		c.mu.Unlock()
		return false
	}
	c.sheetOpen = false
	snap := c.changedLocked()
	c.mu.Unlock()
	c.publish(snap)
	return true
}

// =============================================================================
// Submission
// =============================================================================

// SubmitOrder sends the purchasable cart entries as an order draft.
//
// A second call while one is in flight does nothing. With nothing
// purchasable the buyer is told so and the backend is not called. On success
// the sheet closes and the cart empties, unless the buyer has since left the
// store; on failure both are kept and the error is shown.
func (c *Controller) SubmitOrder(ctx context.Context) error {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return nil
	}
	entries := c.cart.Purchasable()
	if len(entries) == 0 || c.store == nil {
		c.mu.Unlock()
		metrics.RecordOrder(metrics.OutcomeRejected)
		c.notifier.Post(c.msgs.NothingToSubmit, notify.KindInfo)
		return nil
	}
	c.submitting = true
	epoch := c.storeEpoch
	storeID := c.store.ID
	req := domain.OrderRequest{
		Buyer:   c.buyer,
		StoreID: storeID,
		Total:   totalOf(entries, c.cart.Currency()),
	}
	snap := c.changedLocked()
	c.mu.Unlock()
	c.publish(snap)

	log := c.log.WithField("store_id", storeID)
	draft, err := c.catalog.SubmitOrder(c.withHost(ctx), entries, req)

	c.mu.Lock()
	c.submitting = false
	if err == nil && epoch == c.storeEpoch {
		c.sheetOpen = false
		c.cart.Clear()
	}
	snap = c.changedLocked()
	c.mu.Unlock()
	c.publish(snap)

	if err != nil {
		metrics.RecordOrder(orderOutcome(err))
		log.WithError(err).Warn("order submission failed")
		c.notifier.Post(sferrors.UserMessage(err, c.msgs.SubmitFailed), notify.KindError)
		return err
	}

	metrics.RecordOrder(metrics.OutcomeSuccess)
	log.WithField("reference", draft.ConfirmationReference).Info("order submitted")
	c.notifier.Post(c.orderPlaced(draft.ConfirmationReference), notify.KindSuccess)

	if draft.FollowUpLink != "" && c.navigator != nil {
		if err := c.navigator.OpenLink(draft.FollowUpLink); err != nil {
			log.WithError(err).Warn("failed to open follow-up link")
		}
	}
	return nil
}

func (c *Controller) orderPlaced(ref string) string {
	if strings.Contains(c.msgs.OrderPlaced, "%s") {
		return fmt.Sprintf(c.msgs.OrderPlaced, ref)
	}
	return c.msgs.OrderPlaced
}

func totalOf(entries []domain.CartEntry, currency string) domain.Money {
	total := decimal.Zero
	for _, e := range entries {
		if sub := e.Subtotal(); sub != nil {
			total = total.Add(sub.Amount)
		}
	}
	return domain.Money{Amount: total, Currency: currency}
}

func orderOutcome(err error) string {
	switch {
	case sferrors.IsValidation(err):
		return metrics.OutcomeValidation
	case sferrors.IsBackend(err):
		return metrics.OutcomeBackend
	default:
		return metrics.OutcomeTransport
	}
}
