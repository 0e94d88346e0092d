/*
Package comm implements the network plumbing of the anti-entropy protocol
between convergent replicas: the wire format of Replicate and Replicated
messages including the log entries they carry, a receiver accepting framed
messages from peers over mutually authenticated TLS, and a sender keeping
long-lived connections to all configured peers. The transport only promises
whole-message framing; loss, duplication and reordering of messages are
tolerated by the protocol layer in package node.
*/
package comm
