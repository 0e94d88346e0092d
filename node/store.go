package node

import (
	"sync"

	"encoding/binary"

	"github.com/go-pluto/convergent/comm"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// Constants

// ErrStopScan can be returned from a scan callback to
// end the scan early without reporting an error.
var ErrStopScan = errors.New("stop scan")

// Variables

// eventsBucket is the bolt bucket all log entries live in.
var eventsBucket = []byte("events")

// Structs

// Store is the durable event log of one replica. Entries
// carry contiguous local sequence numbers starting at 1
// and are never rewritten once appended.
type Store interface {

	// Append adds entries at the tail of the log.
	Append(entries ...*comm.Entry) error

	// Scan walks all entries with sequence number of at
	// least fromSeq in log order and hands each one to fn.
	// Returning ErrStopScan from fn ends the walk early.
	Scan(fromSeq uint64, fn func(*comm.Entry) error) error

	// Close releases underlying resources.
	Close() error
}

// MemoryStore keeps the event log in a plain slice. It is
// used in tests and mirrors the durability of a replica
// that accepts log loss on restart.
type MemoryStore struct {
	lock    sync.Mutex
	entries []*comm.Entry
}

// BoltStore keeps the event log in a bolt database so a
// replica can rebuild its map by folding the log on boot.
type BoltStore struct {
	db *bolt.DB
}

// Functions

// InitMemoryStore returns an empty in-memory event log.
func InitMemoryStore() *MemoryStore {

	return &MemoryStore{
		entries: make([]*comm.Entry, 0, 64),
	}
}

// Append adds entries at the tail of the in-memory log.
func (store *MemoryStore) Append(entries ...*comm.Entry) error {

	store.lock.Lock()
	defer store.lock.Unlock()

	for _, entry := range entries {

		if entry.LocalSeq != uint64(len(store.entries)+1) {
			return errors.Errorf("appended entry carries sequence number %d but log tail is at %d", entry.LocalSeq, len(store.entries))
		}

		store.entries = append(store.entries, entry)
	}

	return nil
}

// Scan walks in-memory entries starting at fromSeq.
func (store *MemoryStore) Scan(fromSeq uint64, fn func(*comm.Entry) error) error {

	store.lock.Lock()
	defer store.lock.Unlock()

	if fromSeq < 1 {
		fromSeq = 1
	}

	for i := int(fromSeq - 1); i < len(store.entries); i++ {

		err := fn(store.entries[i])
		if err == ErrStopScan {
			return nil
		}
		if err != nil {
			return err
		}
	}

	return nil
}

// Close is a no-op for the in-memory log.
func (store *MemoryStore) Close() error {

	return nil
}

// InitBoltStore opens or creates the bolt-backed event
// log at the supplied path.
func InitBoltStore(path string) (*BoltStore, error) {

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open event log database")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(eventsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create events bucket")
	}

	return &BoltStore{db: db}, nil
}

// seqKey encodes a sequence number as big-endian bytes so
// that bolt's key order equals log order.
func seqKey(seq uint64) []byte {

	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)

	return key
}

// Append adds entries at the tail of the bolt-backed log.
func (store *BoltStore) Append(entries ...*comm.Entry) error {

	return store.db.Update(func(tx *bolt.Tx) error {

		bucket := tx.Bucket(eventsBucket)

		for _, entry := range entries {

			err := bucket.Put(seqKey(entry.LocalSeq), []byte(entry.String()))
			if err != nil {
				return errors.Wrap(err, "failed to append entry to event log")
			}
		}

		return nil
	})
}

// Scan walks persisted entries starting at fromSeq.
func (store *BoltStore) Scan(fromSeq uint64, fn func(*comm.Entry) error) error {

	if fromSeq < 1 {
		fromSeq = 1
	}

	err := store.db.View(func(tx *bolt.Tx) error {

		cursor := tx.Bucket(eventsBucket).Cursor()

		for key, value := cursor.Seek(seqKey(fromSeq)); key != nil; key, value = cursor.Next() {

			entry, err := comm.ParseEntry(string(value))
			if err != nil {
				return errors.Wrapf(err, "corrupt log entry at sequence number %d", binary.BigEndian.Uint64(key))
			}

			err = fn(entry)
			if err != nil {
				return err
			}
		}

		return nil
	})

	if err == ErrStopScan {
		return nil
	}

	return err
}

// Close closes the underlying bolt database.
func (store *BoltStore) Close() error {

	return store.db.Close()
}
