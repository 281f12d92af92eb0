package sim

import (
	"sync"
	"time"
)

// readTimeoutError satisfies net.Error so the live-capture loop treats
// an idle simulator exactly like an idle socket.
type readTimeoutError struct{}

func (readTimeoutError) Error() string   { return "sim: read timeout" }
func (readTimeoutError) Timeout() bool   { return true }
func (readTimeoutError) Temporary() bool { return true }

// pipeTransport is the simulator's raw transport: delivered packets
// queue on a channel, reads drain it one packet at a time.
type pipeTransport struct {
	mu      sync.Mutex
	timeout time.Duration

	packets chan []byte
}

func newPipeTransport() *pipeTransport {
	return &pipeTransport{packets: make(chan []byte, 64)}
}

// deliver queues one packet, dropping it when the reader has fallen a
// full buffer behind. Real datagram sockets drop under pressure too.
func (t *pipeTransport) deliver(packet []byte) {
	select {
	case t.packets <- packet:
	default:
	}
}

func (t *pipeTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	timeout := t.timeout
	t.mu.Unlock()

	if timeout <= 0 {
		packet := <-t.packets
		return copy(p, packet), nil
	}

	select {
	case packet := <-t.packets:
		return copy(p, packet), nil
	case <-time.After(timeout):
		return 0, readTimeoutError{}
	}
}

func (t *pipeTransport) SetReadTimeout(d time.Duration) error {
	t.mu.Lock()
	t.timeout = d
	t.mu.Unlock()
	return nil
}
