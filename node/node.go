package node

import (
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-pluto/convergent/comm"
	"github.com/go-pluto/convergent/crdt"
	"github.com/pkg/errors"
)

// Structs

// MsgSender is the part of the transport a replica needs:
// best-effort delivery of one framed message to one peer.
type MsgSender interface {
	Send(peer string, msg *comm.Msg) error
}

// Metrics bundles the counters a replica maintains.
type Metrics struct {
	EventsApplied   metrics.Counter
	EntriesShipped  metrics.Counter
	RoundsCompleted metrics.Counter
	MsgsDropped     metrics.Counter
}

// Replica bundles the full state of one participant: the
// event log, the vector clock of applied events, the map
// rebuilt from the log, the per-peer cursors and the
// sessions driving anti-entropy against connected peers.
type Replica struct {
	lock          sync.Mutex
	logger        log.Logger
	metrics       *Metrics
	name          string
	seq           uint64
	vclock        crdt.VClock
	state         *crdt.AWORMap[string, string]
	store         Store
	sender        MsgSender
	observed      map[string]uint64
	sessions      map[string]*session
	batchLimit    uint32
	resyncTimeout time.Duration
}

// Functions

// InitMetrics returns a metrics bundle that discards all
// observations. Callers wire real backends where needed.
func InitMetrics() *Metrics {

	return &Metrics{
		EventsApplied:   discard.NewCounter(),
		EntriesShipped:  discard.NewCounter(),
		RoundsCompleted: discard.NewCounter(),
		MsgsDropped:     discard.NewCounter(),
	}
}

// InitReplica constructs a replica on top of the supplied
// event log and transport and replays the log so that the
// map, sequence number and vector clock reflect every
// event persisted before a restart.
func InitReplica(logger log.Logger, mets *Metrics, name string, store Store, sender MsgSender, batchLimit uint32, resyncTimeout time.Duration) (*Replica, error) {

	if mets == nil {
		mets = InitMetrics()
	}

	repl := &Replica{
		logger:        logger,
		metrics:       mets,
		name:          name,
		vclock:        crdt.InitVClock(),
		state:         crdt.InitAWORMap[string, string](),
		store:         store,
		sender:        sender,
		observed:      make(map[string]uint64),
		sessions:      make(map[string]*session),
		batchLimit:    batchLimit,
		resyncTimeout: resyncTimeout,
	}

	// Fold the persisted log back into memory. Cursors
	// into peers' logs are not recovered, the next round
	// against each peer starts from the beginning and
	// deduplicates on originating dots.
	err := store.Scan(1, func(entry *comm.Entry) error {

		repl.seq = entry.LocalSeq

		if entry.Dot.Counter > repl.vclock[entry.Dot.Replica] {
			repl.vclock[entry.Dot.Replica] = entry.Dot.Counter
		}

		repl.state.MergeDeltas(entry.Delta)

		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to replay event log")
	}

	if repl.seq > 0 {
		level.Info(logger).Log(
			"msg", "recovered replica state from event log",
			"entries", repl.seq,
		)
	}

	return repl, nil
}

// Name returns the replica's identity.
func (repl *Replica) Name() string {

	return repl.name
}

// Set writes value under key into the replicated map and
// records the mutation as a new event at the log's tail.
func (repl *Replica) Set(key string, value string) error {

	repl.lock.Lock()
	defer repl.lock.Unlock()

	repl.state.Set(repl.name, key, value)

	return repl.appendLocal(comm.OpSetValue)
}

// Delete removes key from the replicated map and records
// the mutation as a new event at the log's tail.
func (repl *Replica) Delete(key string) error {

	repl.lock.Lock()
	defer repl.lock.Unlock()

	repl.state.Delete(key)

	return repl.appendLocal(comm.OpRemove)
}

// appendLocal drains the delta of the mutation just
// performed and appends it as an event originating here.
// Caller must hold the lock.
func (repl *Replica) appendLocal(op string) error {

	repl.seq++
	counter := repl.vclock.Inc(repl.name)

	entry := &comm.Entry{
		LocalSeq:  repl.seq,
		Dot:       crdt.Dot{Replica: repl.name, Counter: counter},
		VClock:    repl.vclock.Copy(),
		Operation: op,
		Delta:     repl.state.Deltas(),
	}

	err := repl.store.Append(entry)
	if err != nil {
		return errors.Wrap(err, "failed to append local event")
	}

	repl.metrics.EventsApplied.Add(1)

	return nil
}

// Get returns the value under key and whether the key is
// present in the replicated map.
func (repl *Replica) Get(key string) (string, bool) {

	repl.lock.Lock()
	defer repl.lock.Unlock()

	return repl.state.Lookup(key)
}

// Elements returns a snapshot of the replicated map.
func (repl *Replica) Elements() map[string]string {

	repl.lock.Lock()
	defer repl.lock.Unlock()

	return repl.state.Get()
}

// Seq returns the sequence number of the log's tail.
func (repl *Replica) Seq() uint64 {

	repl.lock.Lock()
	defer repl.lock.Unlock()

	return repl.seq
}

// Observed returns the cursor into peer's log, the highest
// sequence number this replica knows it has fully examined.
func (repl *Replica) Observed(peer string) uint64 {

	repl.lock.Lock()
	defer repl.lock.Unlock()

	return repl.observed[peer]
}

// Incoming dispatches one received message. It implements
// the transport's handler interface.
func (repl *Replica) Incoming(msg *comm.Msg) {

	switch msg.Kind {

	case comm.KindReplicate:
		repl.handleReplicate(msg)

	case comm.KindReplicated:
		repl.handleReplicated(msg)

	default:
		repl.metrics.MsgsDropped.Add(1)
	}
}

// handleReplicate answers a peer's request for log entries
// past its cursor. Entries whose vector clock snapshot the
// requester already dominates are filtered out, but still
// advance the returned cursor.
func (repl *Replica) handleReplicate(msg *comm.Msg) {

	req := msg.Replicate

	repl.lock.Lock()

	lastSeq := req.FromSeq - 1
	batch := make([]*comm.Entry, 0, int(req.Limit))

	err := repl.store.Scan(req.FromSeq, func(entry *comm.Entry) error {

		lastSeq = entry.LocalSeq

		if !entry.VClock.DominatedBy(req.VClock) {
			batch = append(batch, entry)
		}

		if uint32(len(batch)) >= req.Limit {
			return ErrStopScan
		}

		return nil
	})

	repl.lock.Unlock()

	if err != nil {
		level.Error(repl.logger).Log(
			"msg", "failed to scan event log for replication request",
			"peer", msg.Sender,
			"err", err,
		)
		return
	}

	reply := comm.InitMsg()
	reply.Kind = comm.KindReplicated
	reply.Replicated = &comm.ReplicatedMsg{
		LastSeq: lastSeq,
		Batch:   batch,
	}

	err = repl.sender.Send(msg.Sender, reply)
	if err != nil {
		level.Debug(repl.logger).Log(
			"msg", "failed to answer replication request",
			"peer", msg.Sender,
			"err", err,
		)
		return
	}

	repl.metrics.EntriesShipped.Add(float64(len(batch)))
}

// handleReplicated folds a peer's reply into local state.
// A non-empty batch is applied and immediately followed by
// the next request, an empty batch completes the round and
// persists the cursor for the peer.
func (repl *Replica) handleReplicated(msg *comm.Msg) {

	rep := msg.Replicated

	repl.lock.Lock()

	sess, connected := repl.sessions[msg.Sender]
	if !connected {

		// Late reply of a disconnected peer.
		repl.lock.Unlock()
		repl.metrics.MsgsDropped.Add(1)
		return
	}

	if len(rep.Batch) == 0 {

		// Round complete. Only now is the examined prefix
		// of the peer's log recorded, so a crashed round
		// is re-examined from the previous cursor.
		if rep.LastSeq > repl.observed[msg.Sender] {
			repl.observed[msg.Sender] = rep.LastSeq
		}

		repl.lock.Unlock()

		repl.metrics.RoundsCompleted.Add(1)
		sess.extendTimer()
		return
	}

	for _, entry := range rep.Batch {

		// An entry is new iff its originating dot is past
		// our clock. Everything else is a duplicate that a
		// retried or overlapping round shipped again.
		if entry.Dot.Counter <= repl.vclock[entry.Dot.Replica] {
			continue
		}

		repl.seq++

		local := &comm.Entry{
			LocalSeq:  repl.seq,
			Dot:       entry.Dot,
			VClock:    entry.VClock,
			Operation: entry.Operation,
			Delta:     entry.Delta,
		}

		err := repl.store.Append(local)
		if err != nil {

			// Keep log and map consistent: do not apply
			// what could not be persisted.
			repl.seq--
			repl.lock.Unlock()

			level.Error(repl.logger).Log(
				"msg", "failed to persist replicated event",
				"peer", msg.Sender,
				"err", err,
			)
			return
		}

		repl.vclock[entry.Dot.Replica] = entry.Dot.Counter
		repl.state.MergeDeltas(entry.Delta)

		repl.metrics.EventsApplied.Add(1)
	}

	next := &comm.Msg{
		Kind: comm.KindReplicate,
		Replicate: &comm.ReplicateMsg{
			FromSeq: rep.LastSeq + 1,
			VClock:  repl.vclock.Copy(),
			Limit:   repl.batchLimit,
		},
	}

	repl.lock.Unlock()

	sess.extendTimer()

	err := repl.sender.Send(msg.Sender, next)
	if err != nil {
		level.Debug(repl.logger).Log(
			"msg", "failed to continue replication round",
			"peer", msg.Sender,
			"err", err,
		)
	}
}

// sendReplicate opens a replication round against peer,
// asking for entries past the persisted cursor.
func (repl *Replica) sendReplicate(peer string) {

	repl.lock.Lock()

	msg := &comm.Msg{
		Kind: comm.KindReplicate,
		Replicate: &comm.ReplicateMsg{
			FromSeq: repl.observed[peer] + 1,
			VClock:  repl.vclock.Copy(),
			Limit:   repl.batchLimit,
		},
	}

	repl.lock.Unlock()

	err := repl.sender.Send(peer, msg)
	if err != nil {
		level.Debug(repl.logger).Log(
			"msg", "failed to open replication round",
			"peer", peer,
			"err", err,
		)
	}
}
