package p2p

import (
	"fmt"
	"net"
	"time"

	"github.com/btcsuite/btcd/wire"
)

const HandshakeTimeout = 10 * time.Second

// HandshakeResult carries what the rest of the peer actor needs from the
// version exchange.
type HandshakeResult struct {
	PeerVersion *wire.MsgVersion
	SendHeaders bool
	WantsAddrV2 bool
}

// Handshake performs the version/verack exchange over conn: send our
// version, wait for the peer's version and validate it, exchange verack,
// sendaddrv2 and wtxidrelay, and — if needMorePeers is true — getaddr.
// The caller owns conn's lifecycle and is responsible for closing it.
func Handshake(conn net.Conn, net_ wire.BitcoinNet, ours *wire.MsgVersion, needMorePeers bool) (*HandshakeResult, error) {
	if conn == nil {
		return nil, fmt.Errorf("p2p: handshake: nil conn")
	}
	if err := WriteMessage(conn, net_, ours); err != nil {
		return nil, fmt.Errorf("p2p: handshake: send version: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))

	var peerVersion *wire.MsgVersion
	gotVerack := false
	for peerVersion == nil || !gotVerack {
		msg, rerr := ReadMessage(conn, net_)
		if rerr != nil {
			if rerr.Disconnect {
				return nil, rerr
			}
			continue
		}
		switch m := msg.(type) {
		case *wire.MsgVersion:
			if peerVersion != nil {
				return nil, fmt.Errorf("p2p: handshake: duplicate version message")
			}
			if m.ProtocolVersion < int32(wire.AddrV2Version) {
				return nil, fmt.Errorf("p2p: handshake: peer protocol version %d too old", m.ProtocolVersion)
			}
			peerVersion = m
			if err := WriteMessage(conn, net_, wire.NewMsgVerAck()); err != nil {
				return nil, fmt.Errorf("p2p: handshake: send verack: %w", err)
			}
			if err := WriteMessage(conn, net_, wire.NewMsgSendAddrV2()); err != nil {
				return nil, fmt.Errorf("p2p: handshake: send sendaddrv2: %w", err)
			}
			if err := WriteMessage(conn, net_, wire.NewMsgWtxIdRelay()); err != nil {
				return nil, fmt.Errorf("p2p: handshake: send wtxidrelay: %w", err)
			}
			if needMorePeers {
				if err := WriteMessage(conn, net_, wire.NewMsgGetAddr()); err != nil {
					return nil, fmt.Errorf("p2p: handshake: send getaddr: %w", err)
				}
			}
		case *wire.MsgVerAck:
			gotVerack = true
		case *wire.MsgReject:
			return nil, fmt.Errorf("p2p: handshake: rejected: %s (%s)", m.Reason, m.Code)
		default:
			// Anything else this early is ignored; the peer actor's main
			// loop applies ban-score policy to repeat offenders once the
			// handshake has completed.
		}
		_ = conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
	}

	return &HandshakeResult{
		PeerVersion: peerVersion,
		SendHeaders: peerVersion.ProtocolVersion >= int32(wire.SendHeadersVersion),
		WantsAddrV2: peerVersion.ProtocolVersion >= int32(wire.AddrV2Version),
	}, nil
}
