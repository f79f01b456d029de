//go:build !linux

package ws

import (
	"net"
	"sync"
)

// poller on non-Linux platforms approximates epoll with one monitor
// goroutine per connection reporting readiness on a shared channel. The
// probe consumes one byte of the frame, which the Linux path never does;
// this build exists for development on macOS/Windows, production deploys
// on Linux.
type poller struct {
	mu       sync.Mutex
	monitors map[net.Conn]chan struct{}
	ready    chan net.Conn
	done     chan struct{}
}

func newPoller() (*poller, error) {
	return &poller{
		monitors: make(map[net.Conn]chan struct{}),
		ready:    make(chan net.Conn, 128),
		done:     make(chan struct{}),
	}, nil
}

func (p *poller) add(conn net.Conn) error {
	stop := make(chan struct{})

	p.mu.Lock()
	p.monitors[conn] = stop
	p.mu.Unlock()

	go p.monitor(conn, stop)
	return nil
}

func (p *poller) remove(conn net.Conn) error {
	p.mu.Lock()
	stop, ok := p.monitors[conn]
	if ok {
		delete(p.monitors, conn)
	}
	p.mu.Unlock()

	if ok {
		close(stop)
	}
	return nil
}

// wait blocks until at least one connection signals readiness, then drains
// whatever else is already pending without blocking.
func (p *poller) wait() ([]net.Conn, error) {
	var conns []net.Conn
	select {
	case conn := <-p.ready:
		conns = append(conns, conn)
	case <-p.done:
		return nil, net.ErrClosed
	}

	for {
		select {
		case conn := <-p.ready:
			conns = append(conns, conn)
		default:
			return conns, nil
		}
	}
}

func (p *poller) close() error {
	p.mu.Lock()
	for conn, stop := range p.monitors {
		close(stop)
		delete(p.monitors, conn)
	}
	p.mu.Unlock()

	close(p.done)
	return nil
}

// socketFD has no meaning without epoll; connections are tracked by value.
func socketFD(conn net.Conn) int { return -1 }

// monitor blocks on a one-byte read until data arrives or the connection
// errors, then signals readiness. A read error is surfaced as readiness too,
// so the read path observes the closure and cleans up.
func (p *poller) monitor(conn net.Conn, stop chan struct{}) {
	buf := make([]byte, 1)
	for {
		select {
		case <-stop:
			return
		default:
		}

		_, err := conn.Read(buf)
		select {
		case p.ready <- conn:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
}
