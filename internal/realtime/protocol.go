package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/bonosa/MarsLife/internal/design"
)

// Inbound events.
const (
	EventIdentify      = "identify"
	EventGetTemplates  = "get_templates"
	EventGetWeather    = "get_weather"
	EventDesignRequest = "design_request"
	EventPurchase      = "purchase"
)

// Outbound events.
const (
	EventBalanceUpdate   = "balance_update"
	EventTemplates       = "templates"
	EventWeather         = "weather"
	EventDesignResult    = "design_result"
	EventPurchaseSuccess = "purchase_success"
	EventError           = "error"
)

// Older clients use these names. Once a session sends a legacy name, all
// replies on it use the legacy outbound names.
var (
	legacyInbound = map[string]string{
		"user_connect":     EventIdentify,
		"get_mars_weather": EventGetWeather,
		"design_habitat":   EventDesignRequest,
		"purchase_credits": EventPurchase,
	}
	legacyOutbound = map[string]string{
		EventBalanceUpdate: "credit_update",
		EventTemplates:     "templates_data",
		EventWeather:       "mars_weather",
		EventDesignResult:  "habitat_design",
	}
)

// Envelope is one WebSocket frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// canonical resolves legacy aliases and reports whether one was used.
func canonical(event string) (string, bool) {
	if name, ok := legacyInbound[event]; ok {
		return name, true
	}
	return event, false
}

type IdentifyPayload struct {
	UserID   string `json:"userId"`
	Language string `json:"language,omitempty"`
}

// Capacity accepts a JSON number or string.
type Capacity string

func (c *Capacity) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Capacity(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("capacity must be a number or string: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*c = Capacity(strconv.FormatInt(i, 10))
		return nil
	}
	*c = Capacity(n.String())
	return nil
}

type designFields struct {
	Style    string   `json:"style"`
	Capacity Capacity `json:"capacity"`
	Budget   string   `json:"budget"`
}

// DesignPayload is either flat or nested under "preferences".
type DesignPayload struct {
	designFields
	Preferences *designFields `json:"preferences,omitempty"`
}

func (p DesignPayload) Request() design.Request {
	f := p.designFields
	if p.Preferences != nil {
		f = *p.Preferences
	}
	return design.Request{Style: f.Style, Capacity: string(f.Capacity), Budget: f.Budget}
}

type PurchasePayload struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

type BalancePayload struct {
	Credits int64 `json:"credits"`
}

type PurchaseSuccessPayload struct {
	CreditsAdded int64 `json:"creditsAdded"`
	NewBalance   int64 `json:"newBalance"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func decode(data json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		data = json.RawMessage("{}")
	}
	return json.Unmarshal(data, dst)
}
