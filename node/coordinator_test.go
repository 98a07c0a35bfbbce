package node

import (
	"io"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"lumen.dev/node/chain"
	"lumen.dev/node/internal/bitcoinmath"
)

// mkCoordinatorHeader builds a regtest header on prev, advancing the nonce
// from its starting value until the hash meets the regtest target so the
// header chain's proof-of-work check accepts it.
func mkCoordinatorHeader(prev chainhash.Hash, nonce uint32) chain.Header {
	h := chain.Header{
		Version:   1,
		PrevBlock: prev,
		Timestamp: time.Unix(1700000000+int64(nonce), 0),
		Bits:      chain.RegTestParams.PowLimitBits,
		Nonce:     nonce,
	}
	target := bitcoinmath.CompactToBig(h.Bits)
	for !bitcoinmath.HashMeetsTarget(chain.HeaderHash(&h), target) {
		h.Nonce++
	}
	return h
}

func wireMsgHeaders(hdrs ...chain.Header) *wire.MsgHeaders {
	m := wire.NewMsgHeaders()
	for i := range hdrs {
		h := hdrs[i]
		_ = m.AddBlockHeader(&h)
	}
	return m
}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Params = chain.RegTestParams
	cfg.HeaderCheckpoint = chain.HeaderCheckpoint{} // height 0, zero hash
	cfg.RequiredPeers = 1
	coord, _ := NewCoordinator(cfg, nil, nil, nil, io.Discard)
	return coord
}

func TestCoordinatorHeadersExtendAndSetState(t *testing.T) {
	coord := newTestCoordinator(t)
	require.Equal(t, StateBehind, coord.State())

	h1 := mkCoordinatorHeader(chainhash.Hash{}, 1)
	h2 := mkCoordinatorHeader(chain.HeaderHash(&h1), 2)

	coord.onHeaders(nil, 1, wireMsgHeaders(h1, h2))
	require.Equal(t, StateHeadersSynced, coord.State())

	_, tipHeight, _ := coord.headers.Tip()
	require.EqualValues(t, 2, tipHeight)
}

func TestCoordinatorRejectsBadHeaderBatch(t *testing.T) {
	coord := newTestCoordinator(t)
	bad := mkCoordinatorHeader(chainhash.Hash{1, 2, 3}, 1) // not connected to checkpoint

	coord.onHeaders(nil, 1, wireMsgHeaders(bad))
	require.Equal(t, StateBehind, coord.State())
}

func TestCoordinatorWatchListCommandsApply(t *testing.T) {
	coord := newTestCoordinator(t)
	script := []byte{0, 1, 2, 3}
	coord.handleCommand(nil, CommandAddScript{Script: script})
	require.True(t, coord.watch.Contains(script))

	coord.handleCommand(nil, CommandRescan{FromHeight: 5})
	height, ok := coord.watch.TakeRescan()
	require.True(t, ok)
	require.EqualValues(t, 5, height)
}

func TestCoordinatorGetHeaderUnknownHeight(t *testing.T) {
	coord := newTestCoordinator(t)
	reply := make(chan GetHeaderResult, 1)
	coord.handleCommand(nil, CommandGetHeader{Height: 42, Reply: reply})
	result := <-reply
	require.Error(t, result.Err)
	var fhErr *FetchHeaderError
	require.ErrorAs(t, result.Err, &fhErr)
	require.Equal(t, FetchUnknownHeight, fhErr.Kind)
}
