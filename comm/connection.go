package comm

import (
	"time"

	"crypto/tls"

	"github.com/pkg/errors"
)

// Functions

// ReliableConnect attempts to connect to defined remote
// node, retrying a bounded number of times with supplied
// pause in between. An unreachable peer is not an error
// condition of the protocol, so callers are expected to
// drop the message and let the next resync cycle retry.
func ReliableConnect(remoteName string, remoteAddr string, tlsConfig *tls.Config, attempts int, retry time.Duration) (*tls.Conn, error) {

	var lastErr error

	for i := 0; i < attempts; i++ {

		conn, err := tls.Dial("tcp", remoteAddr, tlsConfig)
		if err == nil {

			// Test long-lived connection.
			if _, err := conn.Write([]byte("> ping <\r\n")); err != nil {
				conn.Close()
				lastErr = err
				continue
			}

			return conn, nil
		}

		lastErr = err
		time.Sleep(retry)
	}

	return nil, errors.Wrapf(lastErr, "could not connect to node '%s'", remoteName)
}

// ReliableSend writes one framed message to supplied
// connection and reconnects once on a broken connection.
// It returns the connection the message was delivered on
// so that callers can keep it for the next send.
func ReliableSend(conn *tls.Conn, text string, remoteName string, remoteAddr string, tlsConfig *tls.Config, attempts int, retry time.Duration) (*tls.Conn, error) {

	_, err := conn.Write([]byte(text + "\r\n"))
	if err == nil {
		return conn, nil
	}

	// Connection was lost in the meantime. Reconnect
	// and retry the transfer once.
	conn.Close()

	replacedConn, err := ReliableConnect(remoteName, remoteAddr, tlsConfig, attempts, retry)
	if err != nil {
		return nil, err
	}

	_, err = replacedConn.Write([]byte(text + "\r\n"))
	if err != nil {
		replacedConn.Close()
		return nil, errors.Wrapf(err, "could not resend message to node '%s'", remoteName)
	}

	return replacedConn, nil
}
