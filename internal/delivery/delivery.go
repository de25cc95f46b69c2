// Package delivery hands finished greetings to the messaging transport.
// The bot transport itself lives outside this service; what ships here is
// the interface the dispatcher depends on and a logging implementation for
// dry runs and tests.
package delivery

import (
	"context"
	"log"
)

// Deliverer sends one greeting to a bound chat. Implementations must not
// retry internally; a failed delivery is reported once and dropped.
type Deliverer interface {
	Deliver(ctx context.Context, chatID, text string, image []byte) error
}

// LogDeliverer writes deliveries to the log instead of a transport.
type LogDeliverer struct{}

// Deliver logs the would-be message.
func (LogDeliverer) Deliver(_ context.Context, chatID, text string, image []byte) error {
	log.Printf("[Delivery] chat=%s image=%dB text=%q", chatID, len(image), text)
	return nil
}
