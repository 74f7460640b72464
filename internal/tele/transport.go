// Package tele delivers built messages to the broker and owns the
// publish-with-backoff retry policy. Inbound command traffic is observed
// and logged only.
package tele

// Transporter is the secured session boundary. Implementations hold the
// session; the retry controller decides when to connect and when to give up.
type Transporter interface {
	// Connect establishes the session; idempotent when already connected.
	// Failure is reported, never fatal — the caller decides whether to retry.
	Connect() error
	// Publish delivers one message to the data topic, blocking until the
	// broker acknowledges or the network timeout fires.
	Publish(payload []byte) error
	// Service lets the transport process keep-alive and inbound traffic
	// while the device is otherwise idle.
	Service()
	IsConnected() bool
	Close()
}
