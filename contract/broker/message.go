package broker

// Publishing is an outbound wire message. Body is always a string on the wire;
// ContentType is a hint carried by transports that support headers.
type Publishing struct {
	Body        string
	ContentType string
}

// Delivery is an inbound wire message handed to a Handler.
type Delivery struct {
	Data        string
	ContentType string
	RoutingKey  string
}

// Handler receives deliveries for a subscription.
// Implementations must be safe for concurrent use by multiple goroutines.
type Handler func(d Delivery)
