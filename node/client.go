package node

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"lumen.dev/node/chain"
)

// Command is the closed set of requests a Client can make of the
// coordinator. Each variant embeds its own reply channel where a reply is
// expected; a Client method never blocks waiting on a reply itself: send
// hands the command to the coordinator's select loop and returns
// immediately, dropping the command if the command channel is full.
type Command interface{ isCommand() }

type CommandShutdown struct{}

type CommandBroadcast struct {
	Tx *wire.MsgTx
}

type CommandAddScript struct {
	Script []byte
}

type CommandRescan struct {
	FromHeight int32
}

type CommandGetBlock struct {
	Hash  chainhash.Hash
	Reply chan<- GetBlockResult
}

type CommandGetHeader struct {
	Height int32
	Reply  chan<- GetHeaderResult
}

type CommandGetHeaderBatch struct {
	FromHeight int32
	ToHeight   int32
	Reply      chan<- GetHeaderBatchResult
}

type CommandGetBroadcastMinFeeRate struct {
	Reply chan<- int64
}

type CommandSetDuration struct {
	ResponseTimeout int64 // nanoseconds, to keep the Command set free of time.Duration-specific plumbing
}

type CommandAddPeer struct {
	Addr string
}

type CommandNoOp struct{}

func (CommandShutdown) isCommand()              {}
func (CommandBroadcast) isCommand()              {}
func (CommandAddScript) isCommand()              {}
func (CommandRescan) isCommand()                 {}
func (CommandGetBlock) isCommand()                {}
func (CommandGetHeader) isCommand()               {}
func (CommandGetHeaderBatch) isCommand()          {}
func (CommandGetBroadcastMinFeeRate) isCommand() {}
func (CommandSetDuration) isCommand()             {}
func (CommandAddPeer) isCommand()                 {}
func (CommandNoOp) isCommand()                    {}

type GetBlockResult struct {
	Block *wire.MsgBlock
	Err   error
}

type GetHeaderResult struct {
	Header chain.Header
	Err    error
}

type GetHeaderBatchResult struct {
	Headers []chain.Header
	Err     error
}

// EventKind classifies a node.Event delivered on the Client's Events
// stream.
type EventKind int

const (
	EventBlockConnected EventKind = iota
	EventBlockDisconnected
	EventSynced
	EventStateChanged
)

// Event is the tagged-union shape application code consumes: a new block
// matched the watch list and connected to the tip, one was reorged away,
// the node reached TransactionsSynced, or the coordinator's NodeState
// changed.
type Event struct {
	Kind   EventKind
	Block  *wire.MsgBlock
	Height int32
	State  NodeState
}

// Client is the handle application code holds: a command channel in, and
// event/info/warning/log streams out. The coordinator owns the other end
// of every channel.
type Client struct {
	commands chan<- Command

	Events   <-chan Event
	Info     <-chan string
	Warnings <-chan string
	Log      <-chan string
}

// Shutdown asks the coordinator to stop; it does not wait for shutdown to
// complete.
func (c *Client) Shutdown() {
	c.send(CommandShutdown{})
}

// Broadcast asks the coordinator to send tx to every connected peer.
func (c *Client) Broadcast(tx *wire.MsgTx) {
	c.send(CommandBroadcast{Tx: tx})
}

// AddScript registers script on the watch list. It schedules no rescan;
// Rescan re-checks earlier filters against the watch list.
func (c *Client) AddScript(script []byte) {
	c.send(CommandAddScript{Script: script})
}

// Rescan asks the coordinator to re-check filters from fromHeight onward
// against the current watch list.
func (c *Client) Rescan(fromHeight int32) {
	c.send(CommandRescan{FromHeight: fromHeight})
}

// GetBlock requests a full block by hash, delivered on the returned
// channel once the coordinator has fetched it.
func (c *Client) GetBlock(hash chainhash.Hash) <-chan GetBlockResult {
	reply := make(chan GetBlockResult, 1)
	c.send(CommandGetBlock{Hash: hash, Reply: reply})
	return reply
}

// GetHeader requests the header at height.
func (c *Client) GetHeader(height int32) <-chan GetHeaderResult {
	reply := make(chan GetHeaderResult, 1)
	c.send(CommandGetHeader{Height: height, Reply: reply})
	return reply
}

// GetHeaderBatch requests headers in [fromHeight, toHeight].
func (c *Client) GetHeaderBatch(fromHeight, toHeight int32) <-chan GetHeaderBatchResult {
	reply := make(chan GetHeaderBatchResult, 1)
	c.send(CommandGetHeaderBatch{FromHeight: fromHeight, ToHeight: toHeight, Reply: reply})
	return reply
}

// GetBroadcastMinFeeRate requests the minimum fee rate (sat/kvB) a
// connected peer will relay, per the most restrictive feefilter seen.
func (c *Client) GetBroadcastMinFeeRate() <-chan int64 {
	reply := make(chan int64, 1)
	c.send(CommandGetBroadcastMinFeeRate{Reply: reply})
	return reply
}

// AddPeer asks the coordinator to dial addr. The coordinator has no other
// peer discovery: this is the only way it opens a connection.
func (c *Client) AddPeer(addr string) {
	c.send(CommandAddPeer{Addr: addr})
}

func (c *Client) send(cmd Command) {
	select {
	case c.commands <- cmd:
	default:
	}
}
