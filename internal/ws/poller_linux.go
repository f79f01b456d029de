//go:build linux

package ws

import (
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// poller multiplexes read readiness over Linux epoll. Rather than a read
// goroutine per connection, file descriptors are registered with the kernel
// and readers run only when data is actually pending.
type poller struct {
	fd     int
	mu     sync.RWMutex
	byFd   map[int]net.Conn
	events []unix.EpollEvent // reusable buffer for wait
}

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &poller{
		fd:     fd,
		byFd:   make(map[int]net.Conn),
		events: make([]unix.EpollEvent, 128),
	}, nil
}

// add registers conn for read readiness. EPOLLRDHUP is included so a peer
// half-close surfaces as a readable event and the reader tears the connection
// down instead of waiting on the heartbeat.
func (p *poller) add(conn net.Conn) error {
	fd := socketFD(conn)
	err := unix.EpollCtl(p.fd, syscall.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLHUP | unix.EPOLLRDHUP,
		Fd:     int32(fd),
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.byFd[fd] = conn
	p.mu.Unlock()
	return nil
}

func (p *poller) remove(conn net.Conn) error {
	fd := socketFD(conn)
	if err := unix.EpollCtl(p.fd, syscall.EPOLL_CTL_DEL, fd, nil); err != nil {
		return err
	}

	p.mu.Lock()
	delete(p.byFd, fd)
	p.mu.Unlock()
	return nil
}

// wait blocks until at least one registered connection is readable.
// Descriptors removed between epoll_wait returning and the lookup are
// skipped.
func (p *poller) wait() ([]net.Conn, error) {
	n, err := unix.EpollWait(p.fd, p.events, -1)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	conns := make([]net.Conn, 0, n)
	for i := 0; i < n; i++ {
		if conn, ok := p.byFd[int(p.events[i].Fd)]; ok {
			conns = append(conns, conn)
		}
	}
	p.mu.RUnlock()
	return conns, nil
}

func (p *poller) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byFd = nil
	return unix.Close(p.fd)
}

// socketFD extracts the descriptor via SyscallConn; File() would dup the fd
// and leave the copy registered with epoll.
func socketFD(conn net.Conn) int {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1
	}
	fd := -1
	_ = raw.Control(func(sfd uintptr) { fd = int(sfd) })
	return fd
}
