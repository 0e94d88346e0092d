package node

import (
	"time"

	"github.com/go-kit/kit/log/level"
)

// Structs

// session drives anti-entropy against one connected peer.
// It owns nothing but its resync timer, all shared replica
// state stays behind the replica's lock.
type session struct {
	repl     *Replica
	peer     string
	extend   chan struct{}
	shutdown chan struct{}
}

// Functions

// Connect registers peer and starts synchronizing with it:
// one replication round immediately, then another one each
// time the resync timer fires without progress in between.
func (repl *Replica) Connect(peer string) {

	repl.lock.Lock()

	if _, connected := repl.sessions[peer]; connected {
		repl.lock.Unlock()
		return
	}

	sess := &session{
		repl:     repl,
		peer:     peer,
		extend:   make(chan struct{}, 1),
		shutdown: make(chan struct{}),
	}

	repl.sessions[peer] = sess

	repl.lock.Unlock()

	level.Info(repl.logger).Log(
		"msg", "connected to peer",
		"peer", peer,
	)

	go sess.run()

	repl.sendReplicate(peer)
}

// Disconnect deregisters peer and stops its session. Late
// replies of the peer are dropped from then on.
func (repl *Replica) Disconnect(peer string) {

	repl.lock.Lock()

	sess, connected := repl.sessions[peer]
	if connected {
		delete(repl.sessions, peer)
	}

	repl.lock.Unlock()

	if connected {
		close(sess.shutdown)
	}
}

// Shutdown stops all sessions and closes the event log.
func (repl *Replica) Shutdown() error {

	repl.lock.Lock()

	sessions := repl.sessions
	repl.sessions = make(map[string]*session)

	repl.lock.Unlock()

	for _, sess := range sessions {
		close(sess.shutdown)
	}

	return repl.store.Close()
}

// run is the session's timer loop. Whenever the resync
// timeout elapses without being extended, a fresh
// replication round is opened against the peer. This timer
// is the sole ongoing driver of the protocol and recovers
// rounds whose messages were lost in transit.
func (sess *session) run() {

	timer := time.NewTimer(sess.repl.resyncTimeout)
	defer timer.Stop()

	for {

		select {

		case <-timer.C:
			sess.repl.sendReplicate(sess.peer)
			timer.Reset(sess.repl.resyncTimeout)

		case <-sess.extend:

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}

			timer.Reset(sess.repl.resyncTimeout)

		case <-sess.shutdown:
			return
		}
	}
}

// extendTimer pushes the session's next resync back by one
// full timeout. Called whenever a round makes progress so
// the timer only fires when the exchange has stalled.
func (sess *session) extendTimer() {

	select {
	case sess.extend <- struct{}{}:
	default:
	}
}
