package comm_test

import (
	"fmt"
	"testing"

	"github.com/go-pluto/convergent/comm"
	"github.com/go-pluto/convergent/crdt"
)

// Functions

// buildEntry constructs a realistic log entry by driving
// a map through its sanctioned operations.
func buildEntry(localSeq uint64, replica string, key string, val string) *comm.Entry {

	m := crdt.InitAWORMap[string, string]()
	m.Set(replica, key, val)

	return &comm.Entry{
		LocalSeq:  localSeq,
		Dot:       crdt.Dot{Replica: replica, Counter: 1},
		VClock:    crdt.VClock{replica: 1},
		Operation: comm.OpSetValue,
		Delta:     m.Deltas(),
	}
}

// TestParseReplicate executes a black-box unit test on
// marshalling and parsing of Replicate messages.
func TestParseReplicate(t *testing.T) {

	msg := comm.InitMsg()
	msg.Sender = "alpha"
	msg.Kind = comm.KindReplicate
	msg.Replicate = &comm.ReplicateMsg{
		FromSeq: 42,
		VClock:  crdt.VClock{"alpha": 7, "beta": 3},
		Limit:   100,
	}

	parsed, err := comm.Parse(msg.String())
	if err != nil {
		t.Fatalf("[comm.TestParseReplicate] Expected parsing marshalled message not to fail but: %v\n", err)
	}

	if (parsed.Sender != "alpha") || (parsed.Kind != comm.KindReplicate) {
		t.Fatalf("[comm.TestParseReplicate] Expected sender 'alpha' and kind replicate but got '%s' and '%s'\n", parsed.Sender, parsed.Kind)
	}

	if (parsed.Replicate.FromSeq != 42) || (parsed.Replicate.Limit != 100) {
		t.Fatalf("[comm.TestParseReplicate] Expected fromSeq 42 and limit 100 but got %d and %d\n", parsed.Replicate.FromSeq, parsed.Replicate.Limit)
	}

	if parsed.Replicate.VClock.Compare(msg.Replicate.VClock) != crdt.Equal {
		t.Fatalf("[comm.TestParseReplicate] Expected round-tripped vector clock to equal original but got %v\n", parsed.Replicate.VClock)
	}
}

// TestParseReplicated executes a black-box unit test on
// marshalling and parsing of Replicated messages.
func TestParseReplicated(t *testing.T) {

	msg := comm.InitMsg()
	msg.Sender = "beta"
	msg.Kind = comm.KindReplicated
	msg.Replicated = &comm.ReplicatedMsg{
		LastSeq: 17,
		Batch: []*comm.Entry{
			buildEntry(16, "beta", "mailbox", "INBOX"),
			buildEntry(17, "beta", "k2", "payload with spaces and | pipes ; everywhere"),
		},
	}

	parsed, err := comm.Parse(msg.String())
	if err != nil {
		t.Fatalf("[comm.TestParseReplicated] Expected parsing marshalled message not to fail but: %v\n", err)
	}

	if parsed.Replicated.LastSeq != 17 {
		t.Fatalf("[comm.TestParseReplicated] Expected lastSeq 17 but got %d\n", parsed.Replicated.LastSeq)
	}

	if len(parsed.Replicated.Batch) != 2 {
		t.Fatalf("[comm.TestParseReplicated] Expected two batch entries but got %d\n", len(parsed.Replicated.Batch))
	}

	entry := parsed.Replicated.Batch[1]

	if (entry.LocalSeq != 17) || (entry.Operation != comm.OpSetValue) {
		t.Fatalf("[comm.TestParseReplicated] Expected entry seq 17 op setvalue but got %d and '%s'\n", entry.LocalSeq, entry.Operation)
	}

	// The delta payload survives the round trip including
	// characters that collide with frame delimiters.
	applied := crdt.InitAWORMap[string, string]()
	applied.MergeDeltas(entry.Delta)

	if value, found := applied.Lookup("k2"); !found || (value != "payload with spaces and | pipes ; everywhere") {
		t.Fatalf("[comm.TestParseReplicated] Expected delta payload to survive round trip but got '%s' (found: %v)\n", value, found)
	}
}

// TestParseReplicatedEmpty executes a black-box unit test
// on the empty batch that terminates a replication round.
func TestParseReplicatedEmpty(t *testing.T) {

	msg := comm.InitMsg()
	msg.Sender = "beta"
	msg.Kind = comm.KindReplicated
	msg.Replicated = &comm.ReplicatedMsg{
		LastSeq: 9,
		Batch:   []*comm.Entry{},
	}

	parsed, err := comm.Parse(msg.String())
	if err != nil {
		t.Fatalf("[comm.TestParseReplicatedEmpty] Expected parsing marshalled message not to fail but: %v\n", err)
	}

	if (parsed.Replicated.LastSeq != 9) || (len(parsed.Replicated.Batch) != 0) {
		t.Fatalf("[comm.TestParseReplicatedEmpty] Expected empty batch with lastSeq 9 but got %v\n", parsed.Replicated)
	}
}

// TestParseMalformed executes a black-box unit test on
// the rejection of malformed messages.
func TestParseMalformed(t *testing.T) {

	malformed := []string{
		"",
		"no pipes at all",
		"|replicate|1||100",
		"alpha|unknown-kind|payload",
		"alpha|replicate|not-a-number||100",
		"alpha|replicate|1|broken-clock|100",
		"alpha|replicated|1|2|only-one^",
		"alpha|replicated|1|1|1|alpha:1||setvalue|no-tildes",
		"alpha|replicated|5|-1|",
		"alpha|replicated|5|18446744073709551616|",
		"alpha|replicated|5|4294967295|",
	}

	for _, raw := range malformed {

		if _, err := comm.Parse(raw); err == nil {
			t.Fatalf("[comm.TestParseMalformed] Expected parsing '%s' to fail\n", raw)
		}
	}
}

// TestParseHostileCount executes a black-box unit test on
// batch counts that do not match the carried entries. A
// hostile count must produce an error, never influence an
// allocation.
func TestParseHostileCount(t *testing.T) {

	entry := buildEntry(3, "alpha", "k1", "red")

	hostile := []string{
		fmt.Sprintf("alpha|replicated|3|2|%s", entry.String()),
		fmt.Sprintf("alpha|replicated|3|0|%s", entry.String()),
		"alpha|replicated|3|7|",
	}

	for _, raw := range hostile {

		if _, err := comm.Parse(raw); err == nil {
			t.Fatalf("[comm.TestParseHostileCount] Expected parsing '%s' to fail\n", raw)
		}
	}
}

// TestParseEntryForged executes a black-box unit test on
// the rejection of a delta kernel whose entry carries a
// dot its context never saw.
func TestParseEntryForged(t *testing.T) {

	entry := buildEntry(3, "alpha", "k1", "red")

	// Forge an additional entry behind the context.
	entry.Delta.Entries[crdt.Dot{Replica: "ghost", Counter: 9}] = crdt.KeyVal[string, string]{Key: "x", Val: "y"}

	if _, err := comm.ParseEntry(entry.String()); err == nil {
		t.Fatalf("[comm.TestParseEntryForged] Expected forged delta kernel to be rejected\n")
	}
}
