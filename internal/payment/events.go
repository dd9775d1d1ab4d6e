package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Event names the gateway sends that change payment state.
const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

// ErrMalformedEvent is returned when a webhook body is not a JSON event.
var ErrMalformedEvent = errors.New("malformed event")

// Event is one of ChargeSuccess, ChargeFailed or OtherEvent.
type Event interface {
	EventName() string
	EventReference() string
}

// ChargeSuccess reports a charge the gateway considers settled when Status
// is "success".
type ChargeSuccess struct {
	Reference   string
	Status      string
	AmountMinor int64
	Currency    string
}

// ChargeFailed reports a declined or abandoned charge.
type ChargeFailed struct {
	Reference string
	Status    string
}

// OtherEvent carries any event the service does not act on. Payload is the
// event's data exactly as received.
type OtherEvent struct {
	Name      string
	Reference string
	Payload   json.RawMessage
}

func (ChargeSuccess) EventName() string        { return EventChargeSuccess }
func (e ChargeSuccess) EventReference() string { return e.Reference }
func (ChargeFailed) EventName() string         { return EventChargeFailed }
func (e ChargeFailed) EventReference() string  { return e.Reference }
func (e OtherEvent) EventName() string         { return e.Name }
func (e OtherEvent) EventReference() string    { return e.Reference }

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type chargeData struct {
	Reference string      `json:"reference"`
	Status    string      `json:"status"`
	Amount    minorAmount `json:"amount"`
	Currency  string      `json:"currency"`
}

// minorAmount accepts an amount sent as a JSON number or a numeric string.
// Fractions are truncated.
type minorAmount int64

func (a *minorAmount) UnmarshalJSON(b []byte) error {
	text := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if text == "" || text == "null" {
		*a = 0
		return nil
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return fmt.Errorf("amount %q: %w", text, err)
	}
	*a = minorAmount(d.IntPart())
	return nil
}

// ParseEvent decodes a webhook body into its tagged variant. Only charge
// events need a data object of the expected shape.
func ParseEvent(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}
	switch env.Event {
	case EventChargeSuccess, EventChargeFailed:
	default:
		return OtherEvent{Name: env.Event, Reference: looseReference(env.Data), Payload: env.Data}, nil
	}

	var data chargeData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, errors.Join(ErrMalformedEvent, err)
		}
	}
	ref := strings.TrimSpace(data.Reference)
	status := strings.ToLower(strings.TrimSpace(data.Status))
	if env.Event == EventChargeFailed {
		return ChargeFailed{Reference: ref, Status: status}, nil
	}
	return ChargeSuccess{
		Reference:   ref,
		Status:      status,
		AmountMinor: int64(data.Amount),
		Currency:    strings.ToUpper(data.Currency),
	}, nil
}

// looseReference returns data.reference when data is an object holding a
// string reference, and "" otherwise.
func looseReference(data json.RawMessage) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return ""
	}
	var ref string
	if err := json.Unmarshal(obj["reference"], &ref); err != nil {
		return ""
	}
	return strings.TrimSpace(ref)
}
