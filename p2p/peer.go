package p2p

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/btcsuite/btcd/wire"
)

// EventKind classifies what a peer actor reported to the coordinator.
type EventKind int

const (
	EventConnected EventKind = iota
	EventReceived
	EventFault
	EventDisconnected
)

// Event is the only shape a peer actor uses to talk back to the
// coordinator; the coordinator never reaches into a peer's state directly.
type Event struct {
	Peer    PeerID
	Kind    EventKind
	Message wire.Message
	Err     error
}

// OutboundQueueDepth bounds how many messages may be queued to a peer
// before Send blocks; a peer that can't keep up applies backpressure to
// its sender instead of growing memory without limit.
const OutboundQueueDepth = 32

// Peer is one connection's actor: it owns the net.Conn and a read/write
// goroutine pair, and communicates with the coordinator purely through
// channels.
type Peer struct {
	ID   PeerID
	Conn net.Conn
	Net  wire.BitcoinNet

	Version     *wire.MsgVersion
	Ban         BanScore
	IdleTimeout time.Duration

	outbound chan wire.Message
	events   chan<- Event
}

// NewPeer wraps an already-connected conn. The handshake must already have
// been performed by the caller (see Handshake) before Run is started,
// since the coordinator needs the peer's version/services before deciding
// whether to keep the connection at all.
func NewPeer(id PeerID, conn net.Conn, network wire.BitcoinNet, version *wire.MsgVersion, events chan<- Event) *Peer {
	return &Peer{
		ID:       id,
		Conn:     conn,
		Net:      network,
		Version:  version,
		outbound: make(chan wire.Message, OutboundQueueDepth),
		events:   events,
	}
}

// Send queues msg for delivery to this peer. It blocks if the outbound
// queue is full — a slow peer's backpressure should stall its own sender,
// not drop messages silently.
func (p *Peer) Send(ctx context.Context, msg wire.Message) error {
	select {
	case p.outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the peer's write loop (draining outbound) and read loop
// (emitting Events) until ctx is cancelled or the connection fails.
// Run blocks until both loops exit, so callers should invoke it in its own
// goroutine.
func (p *Peer) Run(ctx context.Context) {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case msg, ok := <-p.outbound:
				if !ok {
					return
				}
				if err := WriteMessage(p.Conn, p.Net, msg); err != nil {
					p.emit(Event{Peer: p.ID, Kind: EventFault, Err: fmt.Errorf("p2p: write: %w", err)})
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		_ = p.Conn.Close()
	}()

	p.emit(Event{Peer: p.ID, Kind: EventConnected, Message: p.Version})

	for {
		if p.IdleTimeout > 0 {
			_ = p.Conn.SetReadDeadline(time.Now().Add(p.IdleTimeout))
		}
		msg, rerr := ReadMessage(p.Conn, p.Net)
		if rerr != nil {
			now := time.Now()
			p.Ban.Add(now, rerr.BanScoreDelta)
			if p.Ban.ShouldBan(now) || rerr.Disconnect {
				p.emit(Event{Peer: p.ID, Kind: EventFault, Err: rerr})
				break
			}
			continue
		}
		if p.Ban.ShouldThrottle(time.Now()) {
			time.Sleep(ThrottleDelay)
		}
		p.emit(Event{Peer: p.ID, Kind: EventReceived, Message: msg})

		select {
		case <-ctx.Done():
			break
		default:
		}
	}

	p.emit(Event{Peer: p.ID, Kind: EventDisconnected})
	<-writerDone
}

// emit delivers ev to the coordinator, never blocking forever: a
// cancelled context (coordinator shutting down) must not wedge a peer
// goroutine that has nowhere left to report to.
func (p *Peer) emit(ev Event) {
	select {
	case p.events <- ev:
	case <-time.After(5 * time.Second):
	}
}
