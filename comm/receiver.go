package comm

import (
	"bufio"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Interfaces

// Handler consumes successfully parsed incoming sync
// messages. It is implemented by the replica in package
// node.
type Handler interface {
	Incoming(m *Msg)
}

// Structs

// Receiver bundles all information needed to accept and
// dispatch incoming sync messages from peers.
type Receiver struct {
	lock     sync.Mutex
	logger   log.Logger
	name     string
	socket   net.Listener
	handler  Handler
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	shutdown chan struct{}
}

// Functions

// InitReceiver initializes above struct and starts the
// accepting routine in the background.
func InitReceiver(logger log.Logger, name string, socket net.Listener, handler Handler) *Receiver {

	recv := &Receiver{
		logger:   logger,
		name:     name,
		socket:   socket,
		handler:  handler,
		conns:    make(map[net.Conn]struct{}),
		shutdown: make(chan struct{}),
	}

	// Accept incoming messages in background.
	recv.wg.Add(1)
	go recv.AcceptIncMsgs()

	return recv
}

// AcceptIncMsgs runs in background and waits for incoming
// connections from peers. As soon as one is established,
// it dispatches into the per-connection read loop.
func (recv *Receiver) AcceptIncMsgs() {

	defer recv.wg.Done()

	for {

		conn, err := recv.socket.Accept()
		if err != nil {

			select {

			case <-recv.shutdown:
				// Socket was closed as part of shutdown.
				return

			default:
				level.Error(recv.logger).Log(
					"msg", "failed to accept incoming sync connection",
					"err", err,
				)
				return
			}
		}

		recv.wg.Add(1)
		go recv.HandleConn(conn)
	}
}

// HandleConn reads newline-framed messages from supplied
// connection until it is closed. Malformed messages are
// dropped and logged; the periodic resync of the protocol
// layer re-drives convergence regardless.
func (recv *Receiver) HandleConn(conn net.Conn) {

	defer recv.wg.Done()
	defer conn.Close()

	recv.lock.Lock()
	recv.conns[conn] = struct{}{}
	recv.lock.Unlock()

	defer func() {
		recv.lock.Lock()
		delete(recv.conns, conn)
		recv.lock.Unlock()
	}()

	r := bufio.NewReader(conn)

	for {

		msgRaw, err := r.ReadString('\n')
		if err != nil {

			if (err != io.EOF) && !strings.Contains(err.Error(), "use of closed network connection") {
				level.Debug(recv.logger).Log(
					"msg", "reading from sync connection failed",
					"err", err,
				)
			}

			return
		}

		msgRaw = strings.TrimRight(msgRaw, "\r\n")

		// Skip over keepalive probes of freshly opened
		// connections.
		if (msgRaw == "> ping <") || (msgRaw == "") {
			continue
		}

		msg, err := Parse(msgRaw)
		if err != nil {
			level.Warn(recv.logger).Log(
				"msg", "dropping malformed sync message",
				"err", err,
			)
			continue
		}

		recv.handler.Incoming(msg)
	}
}

// Shutdown closes the receiving socket and waits for all
// involved goroutines to finish.
func (recv *Receiver) Shutdown() {

	close(recv.shutdown)

	recv.lock.Lock()
	recv.socket.Close()
	for conn := range recv.conns {
		conn.Close()
	}
	recv.lock.Unlock()

	recv.wg.Wait()
}
