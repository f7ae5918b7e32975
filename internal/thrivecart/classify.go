package thrivecart

// Kind is what the sync engine does with an event.
type Kind int

const (
	Ignored Kind = iota
	Refund
	Cancellation
)

func (k Kind) String() string {
	switch k {
	case Refund:
		return "refund"
	case Cancellation:
		return "cancellation"
	default:
		return "ignored"
	}
}

// Classify maps a webhook event type to a Kind. Unknown types are Ignored.
func Classify(eventType string) Kind {
	switch eventType {
	case "order.refund", "order.refunded":
		return Refund
	case "order.subscription_cancelled", "order.rebill_cancelled":
		return Cancellation
	default:
		return Ignored
	}
}
