package ports

import "context"

// Bus abstracts publishing to a topic. Push-subscription delivery is not
// abstracted here — the stage runtime receives pushes directly over HTTP
// (spec §4.1), so only the producer side needs an interface.
type Bus interface {
	// Publish serializes body to the given topic with the supplied string
	// attributes and returns the bus-assigned message id.
	Publish(ctx context.Context, topic string, body []byte, attrs map[string]string) (string, error)
}
