// Package envelope decodes the bus push-subscription body (spec §6): a
// base64 payload plus delivery metadata, as delivered to every stage host.
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// PushBody is the outer JSON object the bus posts to a stage's push
// endpoint.
type PushBody struct {
	Message      Message `json:"message"`
	Subscription string  `json:"subscription"`
}

// Message is the inner envelope carrying the actual event payload.
type Message struct {
	Data            string            `json:"data"`
	MessageID       string            `json:"messageId"`
	PublishTime     string            `json:"publishTime"`
	Attributes      map[string]string `json:"attributes"`
	DeliveryAttempt *int              `json:"deliveryAttempt"`
}

// Envelope is the decoded, ready-to-use form a stage handler receives: the
// base64 layer already removed, delivery attempt defaulted.
type Envelope struct {
	Body            []byte
	MessageID       string
	PublishTime     string
	Attributes      map[string]string
	DeliveryAttempt int
	// DeliveryAttemptPresent records whether the bus supplied the field at
	// all, per the Open Question in spec §9: implementers must default to
	// 1 when absent but log when present.
	DeliveryAttemptPresent bool
}

// Decode parses raw, the exact bytes received on the push HTTP request, into
// an Envelope. A parse failure here is always Poison: the envelope itself
// could not be understood, so there is no message to classify further.
func Decode(raw []byte) (Envelope, error) {
	var pb PushBody
	if err := json.Unmarshal(raw, &pb); err != nil {
		return Envelope{}, fmt.Errorf("envelope: invalid push body JSON: %w", err)
	}
	if pb.Message.Data == "" {
		return Envelope{}, fmt.Errorf("envelope: message.data is empty")
	}
	data, err := base64.StdEncoding.DecodeString(pb.Message.Data)
	if err != nil {
		return Envelope{}, fmt.Errorf("envelope: message.data is not valid base64: %w", err)
	}
	attempt := 1
	present := pb.Message.DeliveryAttempt != nil
	if present {
		attempt = *pb.Message.DeliveryAttempt
	}
	return Envelope{
		Body:                   data,
		MessageID:              pb.Message.MessageID,
		PublishTime:            pb.Message.PublishTime,
		Attributes:             pb.Message.Attributes,
		DeliveryAttempt:        attempt,
		DeliveryAttemptPresent: present,
	}, nil
}
