package comm

import (
	"sync"
	"time"

	"crypto/tls"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
)

// Structs

// Sender bundles information needed for sending out sync
// messages to peers. It keeps one long-lived connection
// per peer and transparently re-establishes broken ones.
type Sender struct {
	lock      sync.Mutex
	logger    log.Logger
	name      string
	tlsConfig *tls.Config
	conns     map[string]*tls.Conn
	nodes     map[string]string
	attempts  int
	retry     time.Duration
}

// Functions

// InitSender initializes above struct and sets default
// values for most involved elements to start with. The
// nodes map assigns the sync address to each peer name.
func InitSender(logger log.Logger, name string, tlsConfig *tls.Config, nodes map[string]string) *Sender {

	return &Sender{
		logger:    logger,
		name:      name,
		tlsConfig: tlsConfig,
		conns:     make(map[string]*tls.Conn),
		nodes:     nodes,
		attempts:  3,
		retry:     (500 * time.Millisecond),
	}
}

// Send marshalls supplied message, stamps this replica as
// its sender and delivers it to supplied peer. A delivery
// failure is returned to the caller but requires no
// handling beyond dropping the message: the resync timer
// of the protocol layer retries with an unchanged cursor.
func (sender *Sender) Send(peer string, msg *Msg) error {

	sender.lock.Lock()
	defer sender.lock.Unlock()

	addr, exists := sender.nodes[peer]
	if !exists {
		return errors.Errorf("unknown peer '%s'", peer)
	}

	msg.Sender = sender.name

	conn, exists := sender.conns[peer]
	if !exists {

		freshConn, err := ReliableConnect(peer, addr, sender.tlsConfig, sender.attempts, sender.retry)
		if err != nil {
			return err
		}

		conn = freshConn
		sender.conns[peer] = conn
	}

	usedConn, err := ReliableSend(conn, msg.String(), peer, addr, sender.tlsConfig, sender.attempts, sender.retry)
	if err != nil {

		delete(sender.conns, peer)

		level.Debug(sender.logger).Log(
			"msg", "could not deliver sync message",
			"peer", peer,
			"err", err,
		)

		return err
	}

	sender.conns[peer] = usedConn

	return nil
}

// Close tears down all long-lived peer connections.
func (sender *Sender) Close() {

	sender.lock.Lock()
	defer sender.lock.Unlock()

	for peer, conn := range sender.conns {
		conn.Close()
		delete(sender.conns, peer)
	}
}
