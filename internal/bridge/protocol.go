package bridge

import (
	"encoding/json"

	"github.com/R3E-Network/miniapp_storefront/internal/hostchrome"
)

// Inbound message types.
const (
	MsgInit                = "init"
	MsgTheme               = "theme"
	MsgPrimaryClick        = "primary_click"
	MsgBackClick           = "back_click"
	MsgReloadStores        = "reload_stores"
	MsgSelectStore         = "select_store"
	MsgRetryCatalog        = "retry_catalog"
	MsgSelectCategory      = "select_category"
	MsgAdjust              = "adjust"
	MsgSetQuantity         = "set_quantity"
	MsgOpenOrderSheet      = "open_order_sheet"
	MsgCloseOrderSheet     = "close_order_sheet"
	MsgSubmitOrder         = "submit_order"
	MsgDismissNotification = "dismiss_notification"
)

// Outbound message types.
const (
	MsgPrimary      = "primary"
	MsgBack         = "back"
	MsgOpenLink     = "open_link"
	MsgNotification = "notification"
	MsgState        = "state"
	MsgError        = "error"
)

// Error codes carried by error frames.
const (
	CodeBadMessage         = "bad_message"
	CodeNotInitialized     = "not_initialized"
	CodeAlreadyInitialized = "already_initialized"
	CodeInvalidInitData    = "invalid_init_data"
	CodeUnknownType        = "unknown_type"
	CodeUnknownStore       = "unknown_store"
	CodeUnknownCategory    = "unknown_category"
	CodeUnknownProduct     = "unknown_product"
	CodeRejected           = "rejected"
)

// Envelope wraps every frame in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type initPayload struct {
	InitData string            `json:"init_data"`
	Theme    *hostchrome.Theme `json:"theme,omitempty"`
}

type storePayload struct {
	StoreID string `json:"store_id"`
}

type categoryPayload struct {
	CategoryID string `json:"category_id"`
}

type adjustPayload struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
}

type quantityPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type primaryFrame struct {
	Visible bool   `json:"visible"`
	Label   string `json:"label,omitempty"`
	Enabled bool   `json:"enabled"`
}

type backFrame struct {
	Visible bool `json:"visible"`
}

type linkFrame struct {
	URL string `json:"url"`
}

type errorFrame struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Request string `json:"request,omitempty"`
}

func encodeFrame(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
