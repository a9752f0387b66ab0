package outbox

// Event is the domain event envelope written to the outbox table inside the
// booking transaction. The Kafka topic name equals EventType. The notification
// service is informed through these events only; scheduling never blocks on it.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
