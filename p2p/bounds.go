package p2p

import "github.com/btcsuite/btcd/wire"

// maxPayloadBytes bounds a message's declared payload length by command,
// checked against the wire header before a single byte of the body is
// read. A peer that declares a payload larger than its command could ever
// legitimately need is lying about the length field, truncation, or both
// — either way the connection is not worth the allocation.
var maxPayloadBytes = map[string]uint32{
	wire.CmdVersion:     1_000,
	wire.CmdVerAck:      0,
	wire.CmdPing:        8,
	wire.CmdPong:        8,
	wire.CmdGetHeaders:  4 + 32*101 + 32, // version + up to ~101 locator hashes + stop hash
	wire.CmdHeaders:     3 + 2000*(81+1),
	wire.CmdInv:         9 + 50_000*36,
	wire.CmdGetData:     9 + 50_000*36,
	wire.CmdNotFound:    9 + 50_000*36,
	wire.CmdGetCFilters: 1 + 4 + 32,
	wire.CmdCFilter:     1 + 32 + 9 + 2_000_000,
	wire.CmdGetCFHeaders: 1 + 4 + 32,
	wire.CmdCFHeaders:   1 + 32 + 32 + 9 + 2000*32,
	wire.CmdCFCheckpt:   1 + 32 + 9 + 2000*32,
	wire.CmdFeeFilter:   8,
	wire.CmdReject:      12 + 1 + 1000 + 32,
	wire.CmdSendHeaders: 0,
	wire.CmdSendAddrV2:  0,
	wire.CmdWtxIdRelay:  0,
	wire.CmdGetAddr:     0,
	wire.CmdAddrV2:      9 + 1000*(4+8+2+1+1+1+38),
	wire.CmdBlock:       4_000_000,
}

// defaultMaxPayload bounds any command not listed above (e.g. tx, which
// this client never requests but must still tolerate an unsolicited
// announcement of).
const defaultMaxPayload = 4_000_000

// boundFor returns the maximum tolerated payload length for command.
func boundFor(command string) uint32 {
	if b, ok := maxPayloadBytes[command]; ok {
		return b
	}
	return defaultMaxPayload
}
