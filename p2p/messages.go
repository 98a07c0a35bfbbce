package p2p

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// NewGetHeaders builds a getheaders request from a locator and stop hash
// (zero hash meaning "as many as you have, up to the protocol limit").
func NewGetHeaders(locator []chainhash.Hash, stop chainhash.Hash) *wire.MsgGetHeaders {
	msg := wire.NewMsgGetHeaders()
	msg.ProtocolVersion = wire.ProtocolVersion
	msg.HashStop = stop
	for i := range locator {
		_ = msg.AddBlockLocatorHash(&locator[i])
	}
	return msg
}

// NewGetCFHeaders requests filter headers for [startHeight, stop].
func NewGetCFHeaders(filterType wire.FilterType, startHeight int32, stop chainhash.Hash) *wire.MsgGetCFHeaders {
	return &wire.MsgGetCFHeaders{
		FilterType:  filterType,
		StartHeight: uint32(startHeight),
		StopHash:    stop,
	}
}

// NewGetCFilters requests raw filters for [startHeight, stop].
func NewGetCFilters(filterType wire.FilterType, startHeight int32, stop chainhash.Hash) *wire.MsgGetCFilters {
	return &wire.MsgGetCFilters{
		FilterType:  filterType,
		StartHeight: uint32(startHeight),
		StopHash:    stop,
	}
}

// NewGetData builds a getdata request for the given inventory vectors
// (used to fetch full blocks once a filter match is found).
func NewGetData(vectors []*wire.InvVect) *wire.MsgGetData {
	msg := wire.NewMsgGetDataSizeHint(uint(len(vectors)))
	for _, v := range vectors {
		_ = msg.AddInvVect(v)
	}
	return msg
}

// BlockInv builds an inventory vector requesting a full block by hash.
func BlockInv(hash chainhash.Hash) *wire.InvVect {
	return wire.NewInvVect(wire.InvTypeWitnessBlock, &hash)
}
