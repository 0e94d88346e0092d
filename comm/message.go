package comm

import (
	"fmt"
	"strconv"
	"strings"

	"encoding/base64"

	"github.com/go-pluto/convergent/crdt"
)

// Constants

// Message kinds exchanged between replicas.
const (
	KindReplicate  = "replicate"
	KindReplicated = "replicated"
)

// Operations a log entry can describe.
const (
	OpAdd      = "add"
	OpRemove   = "remove"
	OpSetValue = "setvalue"
)

// Structs

// Delta is the concrete kernel type shipped between
// replicas: key-value pairs of the replicated map.
type Delta = crdt.DotKernel[crdt.KeyVal[string, string]]

// Entry is one element of a replica's append-only event
// log, both in its persisted and its wire form. The delta
// kernel is the payload of exactly the one mutation this
// entry records; applying the entry amounts to merging
// that kernel.
type Entry struct {
	LocalSeq  uint64
	Dot       crdt.Dot
	VClock    crdt.VClock
	Operation string
	Delta     *Delta
}

// ReplicateMsg asks a peer for all log entries starting
// at FromSeq whose causal timestamp is not yet covered by
// VClock, at most Limit of them.
type ReplicateMsg struct {
	FromSeq uint64
	VClock  crdt.VClock
	Limit   uint32
}

// ReplicatedMsg answers a ReplicateMsg with the filtered
// batch and the cursor of the last examined log position.
// An empty batch signals the end of a replication round.
type ReplicatedMsg struct {
	LastSeq uint64
	Batch   []*Entry
}

// Msg represents one framed synchronization message
// between replicas. Exactly one of the payload fields is
// set, according to Kind.
type Msg struct {
	Sender     string
	Kind       string
	Replicate  *ReplicateMsg
	Replicated *ReplicatedMsg
}

// Variables

// b64 encodes user-supplied keys and values so that they
// can never collide with the frame delimiters.
var b64 = base64.RawURLEncoding

// Functions

// marshalDelta turns a delta kernel into its wire form
// 'clock~cloud~entries' with comma-separated cloud dots
// and entries of shape 'dot=key.value'.
func marshalDelta(delta *Delta) string {

	cloud := make([]string, 0, len(delta.Ctx.Cloud))
	for dot := range delta.Ctx.Cloud {
		cloud = append(cloud, dot.String())
	}

	entries := make([]string, 0, len(delta.Entries))
	for dot, pair := range delta.Entries {
		entries = append(entries, fmt.Sprintf("%s=%s.%s",
			dot.String(),
			b64.EncodeToString([]byte(pair.Key)),
			b64.EncodeToString([]byte(pair.Val)),
		))
	}

	return fmt.Sprintf("%s~%s~%s", delta.Ctx.Clock.String(), strings.Join(cloud, ","), strings.Join(entries, ","))
}

// parseDelta takes in the marshalled version of a delta
// kernel, turns it back into the structured form and
// validates the kernel invariant.
func parseDelta(raw string) (*Delta, error) {

	parts := strings.Split(raw, "~")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid delta kernel: incorrect amount of tilde symbols")
	}

	delta := crdt.InitDotKernel[crdt.KeyVal[string, string]]()

	clock, err := crdt.ParseVClock(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid clock in delta kernel: %v", err)
	}
	delta.Ctx.Clock = clock

	if parts[1] != "" {

		for _, rawDot := range strings.Split(parts[1], ",") {

			dot, err := crdt.ParseDot(rawDot)
			if err != nil {
				return nil, fmt.Errorf("invalid cloud dot in delta kernel: %v", err)
			}

			delta.Ctx.Insert(dot)
		}
	}

	if parts[2] != "" {

		for _, rawEntry := range strings.Split(parts[2], ",") {

			dotAndPair := strings.SplitN(rawEntry, "=", 2)
			if len(dotAndPair) != 2 {
				return nil, fmt.Errorf("invalid entry in delta kernel: missing equals symbol")
			}

			dot, err := crdt.ParseDot(dotAndPair[0])
			if err != nil {
				return nil, fmt.Errorf("invalid entry dot in delta kernel: %v", err)
			}

			pair := strings.SplitN(dotAndPair[1], ".", 2)
			if len(pair) != 2 {
				return nil, fmt.Errorf("invalid entry in delta kernel: missing dot symbol")
			}

			key, err := b64.DecodeString(pair[0])
			if err != nil {
				return nil, fmt.Errorf("decoding base64 key of delta entry failed: %v", err)
			}

			val, err := b64.DecodeString(pair[1])
			if err != nil {
				return nil, fmt.Errorf("decoding base64 value of delta entry failed: %v", err)
			}

			delta.Entries[dot] = crdt.KeyVal[string, string]{
				Key: string(key),
				Val: string(val),
			}
		}
	}

	// Entries carrying dots the context has not seen mean
	// a corrupted or forged kernel.
	if err := delta.Check(); err != nil {
		return nil, fmt.Errorf("invalid delta kernel: %v", err)
	}

	return delta, nil
}

// String marshalls this log entry into its wire and
// persisted representation.
func (e *Entry) String() string {

	return fmt.Sprintf("%d|%s|%s|%s|%s", e.LocalSeq, e.Dot.String(), e.VClock.String(), e.Operation, marshalDelta(e.Delta))
}

// ParseEntry takes in the marshalled version of a log
// entry and turns it back into the structured form.
func ParseEntry(raw string) (*Entry, error) {

	parts := strings.SplitN(raw, "|", 5)
	if len(parts) != 5 {
		return nil, fmt.Errorf("invalid log entry: incorrect amount of pipe symbols")
	}

	localSeq, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid sequence number in log entry: %v", err)
	}

	dot, err := crdt.ParseDot(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid dot in log entry: %v", err)
	}

	vclock, err := crdt.ParseVClock(parts[2])
	if err != nil {
		return nil, fmt.Errorf("invalid vector clock in log entry: %v", err)
	}

	if (parts[3] != OpAdd) && (parts[3] != OpRemove) && (parts[3] != OpSetValue) {
		return nil, fmt.Errorf("unsupported operation '%s' in log entry", parts[3])
	}

	delta, err := parseDelta(parts[4])
	if err != nil {
		return nil, err
	}

	return &Entry{
		LocalSeq:  localSeq,
		Dot:       dot,
		VClock:    vclock,
		Operation: parts[3],
		Delta:     delta,
	}, nil
}

// InitMsg returns a fresh Msg variable.
func InitMsg() *Msg {

	return &Msg{}
}

// String marshalls given Msg m into its string
// representation so that it can be sent out as one frame
// on the connection to a peer.
func (m *Msg) String() string {

	switch m.Kind {

	case KindReplicate:
		return fmt.Sprintf("%s|%s|%d|%s|%d", m.Sender, m.Kind, m.Replicate.FromSeq, m.Replicate.VClock.String(), m.Replicate.Limit)

	case KindReplicated:

		batch := make([]string, 0, len(m.Replicated.Batch))
		for _, entry := range m.Replicated.Batch {
			batch = append(batch, entry.String())
		}

		return fmt.Sprintf("%s|%s|%d|%d|%s", m.Sender, m.Kind, m.Replicated.LastSeq, len(m.Replicated.Batch), strings.Join(batch, "^"))

	default:
		return fmt.Sprintf("%s|%s|", m.Sender, m.Kind)
	}
}

// Parse takes in supplied string representing a received
// message and parses it back into Msg struct form.
func Parse(raw string) (*Msg, error) {

	// Remove attached newline symbols.
	raw = strings.TrimRight(raw, "\r\n")

	// Split message at pipe symbol at maximum three times.
	parts := strings.SplitN(raw, "|", 3)
	if len(parts) < 3 {
		return nil, fmt.Errorf("invalid sync message")
	}

	if len(parts[0]) < 1 {
		return nil, fmt.Errorf("invalid sync message because sender name is missing")
	}

	m := InitMsg()
	m.Sender = parts[0]
	m.Kind = parts[1]

	switch m.Kind {

	case KindReplicate:
		replicate, err := parseReplicate(parts[2])
		if err != nil {
			return nil, err
		}
		m.Replicate = replicate

	case KindReplicated:
		replicated, err := parseReplicated(parts[2])
		if err != nil {
			return nil, err
		}
		m.Replicated = replicated

	default:
		return nil, fmt.Errorf("unsupported sync message kind '%s'", m.Kind)
	}

	return m, nil
}

// parseReplicate parses the payload of a Replicate
// message: 'fromSeq|vclock|limit'.
func parseReplicate(payload string) (*ReplicateMsg, error) {

	parts := strings.SplitN(payload, "|", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid REPLICATE message: incorrect amount of pipe symbols")
	}

	fromSeq, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid sequence number in REPLICATE message: %v", err)
	}

	vclock, err := crdt.ParseVClock(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid vector clock in REPLICATE message: %v", err)
	}

	limit, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid limit in REPLICATE message: %v", err)
	}

	return &ReplicateMsg{
		FromSeq: fromSeq,
		VClock:  vclock,
		Limit:   uint32(limit),
	}, nil
}

// parseReplicated parses the payload of a Replicated
// message: 'lastSeq|count|entry^entry^...'.
func parseReplicated(payload string) (*ReplicatedMsg, error) {

	parts := strings.SplitN(payload, "|", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid REPLICATED message: incorrect amount of pipe symbols")
	}

	lastSeq, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid sequence number in REPLICATED message: %v", err)
	}

	// The announced count is attacker-controlled input and
	// must never size an allocation. It is only compared
	// against the number of entries actually carried.
	count, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid batch count in REPLICATED message: %v", err)
	}

	batch := make([]*Entry, 0)

	if parts[2] != "" {

		for _, rawEntry := range strings.Split(parts[2], "^") {

			entry, err := ParseEntry(rawEntry)
			if err != nil {
				return nil, err
			}

			batch = append(batch, entry)
		}
	}

	if uint64(len(batch)) != count {
		return nil, fmt.Errorf("invalid REPLICATED message: announced %d entries but carried %d", count, len(batch))
	}

	return &ReplicatedMsg{
		LastSeq: lastSeq,
		Batch:   batch,
	}, nil
}
