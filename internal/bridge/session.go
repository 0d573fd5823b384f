package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/R3E-Network/miniapp_storefront/internal/domain"
	sferrors "github.com/R3E-Network/miniapp_storefront/internal/errors"
	"github.com/R3E-Network/miniapp_storefront/internal/hostchrome"
	"github.com/R3E-Network/miniapp_storefront/internal/notify"
	"github.com/R3E-Network/miniapp_storefront/internal/session"
	"github.com/R3E-Network/miniapp_storefront/pkg/logger"
)

// hostSession binds one host connection to one session controller. Frames
// are handled in arrival order on the read loop; backend work runs in the
// background so clicks stay responsive while a load is in flight.
type hostSession struct {
	srv  *Server
	conn *hostConn
	log  *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	ctrl        *session.Controller
	notes       *notify.Channel
	unsubscribe func()
}

func newHostSession(srv *Server, conn *hostConn, log *logger.Logger) *hostSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &hostSession{srv: srv, conn: conn, log: log, ctx: ctx, cancel: cancel}
}

func (h *hostSession) shutdown() {
	h.cancel()
	h.wg.Wait()
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	if h.notes != nil {
		h.notes.Close()
	}
}

func (h *hostSession) handle(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		h.conn.sendError(CodeBadMessage, "malformed frame", "")
		return
	}

	if env.Type == MsgInit {
		if h.ctrl != nil {
			h.conn.sendError(CodeAlreadyInitialized, "session already initialized", env.Type)
			return
		}
		h.init(env)
		return
	}
	if h.ctrl == nil {
		h.conn.sendError(CodeNotInitialized, "send init first", env.Type)
		return
	}

	switch env.Type {
	case MsgTheme:
		var theme hostchrome.Theme
		if !h.decode(env, &theme) {
			return
		}
		h.ctrl.SetTheme(theme)

	case MsgPrimaryClick:
		h.conn.firePrimary()

	case MsgBackClick:
		h.conn.fireBack()

	case MsgReloadStores:
		h.async(h.ctx, env.Type, h.ctrl.ReloadStores)

	case MsgSelectStore:
		var p storePayload
		if !h.decode(env, &p) {
			return
		}
		store, ok := h.ctrl.LookupStore(p.StoreID)
		if !ok {
			h.conn.sendError(CodeUnknownStore, "unknown store "+p.StoreID, env.Type)
			return
		}
		h.async(h.ctx, env.Type, func(ctx context.Context) error {
			return h.ctrl.SelectStore(ctx, store)
		})

	case MsgRetryCatalog:
		h.async(h.ctx, env.Type, h.ctrl.RetryCatalog)

	case MsgSelectCategory:
		var p categoryPayload
		if !h.decode(env, &p) {
			return
		}
		if !h.ctrl.SelectCategory(p.CategoryID) && h.ctrl.Snapshot().ActiveCategoryID != p.CategoryID {
			h.conn.sendError(CodeUnknownCategory, "unknown category "+p.CategoryID, env.Type)
		}

	case MsgAdjust:
		var p adjustPayload
		if !h.decode(env, &p) {
			return
		}
		if product, ok := h.product(env.Type, p.ProductID); ok {
			h.reject(env.Type, h.ctrl.AddOrAdjust(product, p.Delta))
		}

	case MsgSetQuantity:
		var p quantityPayload
		if !h.decode(env, &p) {
			return
		}
		if product, ok := h.product(env.Type, p.ProductID); ok {
			h.reject(env.Type, h.ctrl.SetQuantity(product, p.Quantity))
		}

	case MsgOpenOrderSheet:
		h.ctrl.OpenOrderSheet()

	case MsgCloseOrderSheet:
		h.ctrl.CloseOrderSheet()

	case MsgSubmitOrder:
		// A draft that reached the backend must finish even if the host leaves.
		h.async(context.WithoutCancel(h.ctx), env.Type, h.ctrl.SubmitOrder)

	case MsgDismissNotification:
		h.notes.Dismiss()

	default:
		h.conn.sendError(CodeUnknownType, "unknown message type "+env.Type, env.Type)
	}
}

func (h *hostSession) init(env Envelope) {
	var p initPayload
	if !h.decode(env, &p) {
		return
	}

	host, err := hostchrome.ParseInitData(p.InitData)
	if err != nil {
		h.log.WithError(err).Warn("invalid init data, continuing anonymously")
		h.conn.sendError(CodeInvalidInitData, "init data could not be parsed", env.Type)
		host = hostchrome.InitData{}
	}

	cfg := h.srv.cfg
	notes := notify.New(cfg.NotificationTTL)
	ctrl, err := session.New(session.Config{
		Catalog:          h.srv.catalog,
		Notifier:         notes,
		Navigator:        h.conn,
		Host:             host,
		Messages:         cfg.Messages,
		BuyerEmailDomain: cfg.BuyerEmailDomain,
		DefaultCurrency:  cfg.DefaultCurrency,
		Logger:           h.log,
	})
	if err != nil {
		notes.Close()
		h.log.WithError(err).Error("failed to create session")
		h.conn.sendError(CodeRejected, "session could not be created", env.Type)
		return
	}

	chrome := hostchrome.New(h.conn, hostchrome.Config{
		ReviewLabel:     cfg.Messages.ReviewOrder,
		DefaultCurrency: cfg.DefaultCurrency,
	})
	chrome.Bind(h.conn, ctrl)

	notes.Subscribe(func(n notify.Notification) {
		h.conn.enqueue(MsgNotification, n)
	})

	snap := ctrl.Snapshot()
	h.conn.enqueue(MsgState, snap)
	chrome.Sync(snap.Chrome())
	h.unsubscribe = ctrl.Subscribe(func(s session.Snapshot) {
		h.conn.enqueue(MsgState, s)
		chrome.Sync(s.Chrome())
	})

	h.ctrl, h.notes = ctrl, notes
	if p.Theme != nil {
		ctrl.SetTheme(*p.Theme)
	}

	buyer := ctrl.Buyer()
	h.log.WithField("buyer_id", buyer.ID).WithField("anonymous", host.Anonymous()).Info("session started")
	h.async(h.ctx, "start", ctrl.Start)
}

func (h *hostSession) decode(env Envelope, dst interface{}) bool {
	if len(env.Payload) == 0 {
		return true
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		h.conn.sendError(CodeBadMessage, "malformed payload", env.Type)
		return false
	}
	return true
}

func (h *hostSession) product(request, id string) (domain.Product, bool) {
	p, ok := h.ctrl.LookupProduct(id)
	if !ok {
		h.conn.sendError(CodeUnknownProduct, "unknown product "+id, request)
	}
	return p, ok
}

// reject reports a refused command back to the host.
func (h *hostSession) reject(request string, err error) {
	if err == nil {
		return
	}
	if sferrors.IsInvariant(err) || sferrors.IsValidation(err) {
		h.conn.sendError(CodeRejected, sferrors.UserMessage(err, h.srv.cfg.Messages.NotPurchasable), request)
		return
	}
	h.log.WithField("request", request).WithError(err).Warn("command failed")
}

func (h *hostSession) async(ctx context.Context, op string, fn func(context.Context) error) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := fn(ctx); err != nil {
			h.log.WithField("operation", op).WithError(err).Debug("operation finished with error")
		}
	}()
}
