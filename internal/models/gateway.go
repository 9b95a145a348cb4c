package models

import "encoding/json"

// GatewayEventType identifies the known gateway event shapes. Provider
// payloads outside these shapes travel in the Extra bag untouched.
type GatewayEventType string

const (
	GatewayEventAuthorized GatewayEventType = "AUTHORIZED"
	GatewayEventCaptured   GatewayEventType = "CAPTURED"
	GatewayEventFailed     GatewayEventType = "FAILED"
	GatewayEventRefunded   GatewayEventType = "REFUNDED"
)

// GatewayEvent is the outcome a payment gateway reported for a transaction.
// It is merged additively into the transaction's stored gateway response;
// earlier fields survive unless the event carries a replacement.
type GatewayEvent struct {
	Type           GatewayEventType `json:"type"`
	AuthCode       string           `json:"auth_code,omitempty"`
	ReceiptURL     string           `json:"receipt_url,omitempty"`
	FailureCode    string           `json:"failure_code,omitempty"`
	FailureMessage string           `json:"failure_message,omitempty"`
	RefundID       string           `json:"refund_id,omitempty"`
	Extra          map[string]any   `json:"extra,omitempty"`
}

// Fields flattens the event into the key/value form stored on the transaction
func (e *GatewayEvent) Fields() map[string]any {
	fields := map[string]any{"type": string(e.Type)}
	if e.AuthCode != "" {
		fields["auth_code"] = e.AuthCode
	}
	if e.ReceiptURL != "" {
		fields["receipt_url"] = e.ReceiptURL
	}
	if e.FailureCode != "" {
		fields["failure_code"] = e.FailureCode
	}
	if e.FailureMessage != "" {
		fields["failure_message"] = e.FailureMessage
	}
	if e.RefundID != "" {
		fields["refund_id"] = e.RefundID
	}
	for k, v := range e.Extra {
		fields[k] = v
	}
	return fields
}

// JSON marshals the flattened event fields. Marshalling a map of JSON
// scalars cannot fail, so errors are swallowed into an empty object.
func (e *GatewayEvent) JSON() []byte {
	b, err := json.Marshal(e.Fields())
	if err != nil {
		return []byte("{}")
	}
	return b
}

// StatusFor maps a gateway event type to the transaction status it implies
func (e *GatewayEvent) StatusFor() (TransactionStatus, bool) {
	switch e.Type {
	case GatewayEventAuthorized:
		return TransactionStatusProcessing, true
	case GatewayEventCaptured:
		return TransactionStatusCompleted, true
	case GatewayEventFailed:
		return TransactionStatusFailed, true
	case GatewayEventRefunded:
		return TransactionStatusRefunded, true
	}
	return "", false
}
