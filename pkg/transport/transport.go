// Package transport provides the byte channels a UICC session runs over: a serial
// line driven through go.bug.st/serial, and a scripted Mock for tests.
//
// A Transport is exclusively owned by one session. Reads never block indefinitely:
// when the card stays silent past the read timeout, Read returns what it has, possibly
// nothing, without error.
package transport

// Transport is a half-duplex byte channel to a card.
type Transport interface {
	// Read returns up to max bytes. A short or empty result means the read timed out.
	Read(max int) ([]byte, error)
	// Write sends all of p.
	Write(p []byte) error
	// Close releases the underlying device. Further calls fail with ErrClosed.
	Close() error
}
