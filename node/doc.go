/*
Package node implements a replica: a durable event log of map mutations, an add-wins
observed-remove map rebuilt from that log, and the anti-entropy protocol that ships
log entries between replicas until their maps converge.

Replication is pull-based. A replica asks a peer for entries past a cursor, applies
the entries it has not seen yet, and keeps asking until the peer answers with an
empty batch. A per-peer timer restarts this exchange periodically, which makes the
protocol tolerate lost, duplicated and reordered messages without any transport
guarantees beyond whole-message framing.
*/
package node
