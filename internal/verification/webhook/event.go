// Package webhook authenticates Mono Prove callbacks and turns their payloads
// into typed lifecycle events.
package webhook

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/Khrees2412/provepoc/internal/verification/models"
)

// Event names sent by Mono Prove.
const (
	EventInitiated  = "mono.prove.data_verification_initiated"
	EventSuccessful = "mono.prove.data_verification_successful"
	EventCancelled  = "mono.prove.data_verification_cancelled"
	EventExpired    = "mono.prove.data_verification_expired"
)

// Event is the closed set of normalized webhook outcomes. Only types in this
// package implement it.
type Event interface {
	Name() string
	event()
}

// TerminalEvent is an event that moves a record into a terminal status.
type TerminalEvent interface {
	Event
	MonoReference() string
	Target() models.Status
	Payload() json.RawMessage
	// CustomerID is the provider customer the event names, or "".
	CustomerID() string
}

// Customer is the provider's view of the verified person.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ErrorLog is one failed attempt reported on expiry.
type ErrorLog struct {
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

type Initiated struct {
	Reference string
	Raw       json.RawMessage
}

type Successful struct {
	Reference    string
	Customer     Customer
	KYCLevel     string
	BankAccounts bool
	Raw          json.RawMessage
}

type Cancelled struct {
	Reference string
	Raw       json.RawMessage
}

type Expired struct {
	Reference string
	Attempts  int
	ErrorLogs []ErrorLog
	Raw       json.RawMessage
}

// Unrecognized is an event name outside the supported set.
type Unrecognized struct {
	EventName string
}

// Malformed is a supported event whose data does not have the required shape.
type Malformed struct {
	EventName string
	Reason    string
}

func (Initiated) Name() string      { return EventInitiated }
func (Successful) Name() string     { return EventSuccessful }
func (Cancelled) Name() string      { return EventCancelled }
func (Expired) Name() string        { return EventExpired }
func (e Unrecognized) Name() string { return e.EventName }
func (e Malformed) Name() string    { return e.EventName }

func (Initiated) event()    {}
func (Successful) event()   {}
func (Cancelled) event()    {}
func (Expired) event()      {}
func (Unrecognized) event() {}
func (Malformed) event()    {}

func (e Successful) MonoReference() string    { return e.Reference }
func (e Successful) Target() models.Status    { return models.StatusVerified }
func (e Successful) Payload() json.RawMessage { return e.Raw }
func (e Successful) CustomerID() string       { return e.Customer.ID }

func (e Cancelled) MonoReference() string    { return e.Reference }
func (e Cancelled) Target() models.Status    { return models.StatusCancelled }
func (e Cancelled) Payload() json.RawMessage { return e.Raw }
func (Cancelled) CustomerID() string         { return "" }

func (e Expired) MonoReference() string    { return e.Reference }
func (e Expired) Target() models.Status    { return models.StatusExpired }
func (e Expired) Payload() json.RawMessage { return e.Raw }
func (Expired) CustomerID() string         { return "" }

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Parse decodes the {event, data} envelope from an authenticated body.
func Parse(body []byte) Event {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Malformed{Reason: "body is not a json object"}
	}
	return Normalize(env.Event, env.Data)
}

// Normalize maps an event name and its data to a typed Event. It never
// returns nil.
func Normalize(name string, data json.RawMessage) Event {
	switch name {
	case EventInitiated, EventSuccessful, EventCancelled, EventExpired:
	default:
		return Unrecognized{EventName: name}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Malformed{EventName: name, Reason: "data must be an object"}
	}

	var payload struct {
		Reference    string     `json:"reference"`
		Customer     *Customer  `json:"customer"`
		KYCLevel     string     `json:"kyc_level"`
		BankAccounts bool       `json:"bank_accounts"`
		Attempts     int        `json:"attempts"`
		ErrorLogs    []ErrorLog `json:"error_logs"`
	}
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return Malformed{EventName: name, Reason: "data has unexpected field types"}
	}
	reference := strings.TrimSpace(payload.Reference)
	if reference == "" {
		return Malformed{EventName: name, Reason: "reference is required"}
	}
	raw := json.RawMessage(append([]byte(nil), trimmed...))

	switch name {
	case EventInitiated:
		return Initiated{Reference: reference, Raw: raw}
	case EventSuccessful:
		if payload.Customer == nil || strings.TrimSpace(payload.Customer.ID) == "" {
			return Malformed{EventName: name, Reason: "customer.id is required"}
		}
		return Successful{
			Reference:    reference,
			Customer:     *payload.Customer,
			KYCLevel:     payload.KYCLevel,
			BankAccounts: payload.BankAccounts,
			Raw:          raw,
		}
	case EventCancelled:
		return Cancelled{Reference: reference, Raw: raw}
	default:
		return Expired{
			Reference: reference,
			Attempts:  payload.Attempts,
			ErrorLogs: payload.ErrorLogs,
			Raw:       raw,
		}
	}
}
