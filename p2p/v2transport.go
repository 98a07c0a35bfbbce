package p2p

import (
	"context"
	"fmt"
	"net"

	"github.com/btcsuite/btcd/v2transport"
)

// negotiateV2 attempts a BIP 324 encrypted transport handshake over conn.
// On success it returns a net.Conn that transparently encrypts and
// decrypts every message; on failure it returns an error and leaves conn
// for the caller to close, with no retry over plaintext V1. Nothing in this
// module calls it: every connection the coordinator opens uses V1 framing.
func negotiateV2(ctx context.Context, conn net.Conn, initiator bool) (net.Conn, error) {
	sess, err := v2transport.Negotiate(ctx, conn, v2transport.Config{
		Initiator: initiator,
	})
	if err != nil {
		return nil, fmt.Errorf("p2p: v2 handshake failed: %w", err)
	}
	return sess, nil
}
