package node

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"lumen.dev/node/chain"
	"lumen.dev/node/p2p"
	"lumen.dev/node/peers"
	"lumen.dev/node/queue"
	"lumen.dev/node/storage"
)

// loopTick is how often the coordinator's select loop wakes up on its own,
// independent of peer activity, to sweep timeouts, check staleness and
// drive the sync phases forward.
const loopTick = 1 * time.Second

// Coordinator is the single cooperative sync loop: it owns every piece of
// mutable sync state and is the only goroutine that touches it, reachable
// from the outside only through a Client's Command channel and from peers
// only through p2p.Event.
type Coordinator struct {
	cfg Config

	headers   *chain.HeaderChain
	cfheaders *chain.CFHeaderChain
	watch     *chain.WatchedScripts
	queue     *queue.Queue

	peerMap  *peers.Map
	timeouts *TimeoutTracker
	monitor  *LastBlockMonitor

	headerStore storage.HeaderStore
	peerStore   storage.PeerStore

	log     *loggers
	metrics *Metrics

	version *wire.MsgVersion
	net     wire.BitcoinNet

	stateMu sync.RWMutex
	state   NodeState

	events   chan p2p.Event
	commands chan Command

	outEvents chan Event
	outInfo   chan string
	outWarn   chan string
	outLog    chan string

	minFeeRateMu sync.Mutex
	minFeeRate   int64

	headersWindowInFlight  bool
	cfheaderWindowInFlight bool
	filterWindowInFlight   bool
}

// NewCoordinator wires up a coordinator and the Client handle application
// code uses to talk to it. logWriter receives every structured log line in
// addition to the Client's own Log stream (pass io.Discard if you only
// want the Log channel).
func NewCoordinator(cfg Config, headerStore storage.HeaderStore, peerStore storage.PeerStore, metrics *Metrics, logWriter io.Writer) (*Coordinator, *Client) {
	commands := make(chan Command, 64)
	outEvents := make(chan Event, 256)
	outInfo := make(chan string, 256)
	outWarn := make(chan string, 256)
	outLog := make(chan string, 256)

	if logWriter == nil {
		logWriter = io.Discard
	}
	mw := io.MultiWriter(logWriter, logLineWriter{lines: outLog})

	headers := chain.NewHeaderChain(cfg.Params, cfg.HeaderCheckpoint)
	_, tipHeight, _ := headers.Tip()

	c := &Coordinator{
		cfg:         cfg,
		headers:     headers,
		cfheaders:   chain.NewCFHeaderChain(0, cfg.HeaderCheckpoint.Height+1, cfg.RequiredPeers),
		watch:       chain.NewWatchedScripts(),
		queue:       queue.New(),
		peerMap:     peers.NewMap(cfg.TargetPeerSize, 1024),
		timeouts:    NewTimeoutTracker(),
		monitor:     NewLastBlockMonitor(10 * time.Minute),
		headerStore: headerStore,
		peerStore:   peerStore,
		log:         newLoggers(mw, cfg.LogLevel),
		metrics:     metrics,
		version:     wire.NewMsgVersion(nil, rand.Uint64(), tipHeight),
		net:         wire.MainNet,
		state:       StateBehind,
		events:      make(chan p2p.Event, 256),
		commands:    commands,
		outEvents:   outEvents,
		outInfo:     outInfo,
		outWarn:     outWarn,
		outLog:      outLog,
	}
	client := &Client{
		commands: commands,
		Events:   outEvents,
		Info:     outInfo,
		Warnings: outWarn,
		Log:      outLog,
	}
	return c, client
}

// State returns the coordinator's current sync phase.
func (c *Coordinator) State() NodeState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Coordinator) setState(s NodeState) {
	c.stateMu.Lock()
	changed := c.state != s
	c.state = s
	c.stateMu.Unlock()
	if changed {
		c.log.Sync.Infof("state -> %s", s)
		c.emitEvent(Event{Kind: EventStateChanged, State: s})
	}
}

// PeerEvents returns the channel peer actors should be constructed to
// report into (see p2p.NewPeer's events parameter).
func (c *Coordinator) PeerEvents() chan<- p2p.Event { return c.events }

// Run drives the coordinator's select loop until ctx is cancelled or a
// CommandShutdown arrives.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(loopTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-c.events:
			c.dispatch(ctx, ev)
			c.advanceState(ctx)

		case cmd := <-c.commands:
			if _, shutdown := cmd.(CommandShutdown); shutdown {
				c.log.Sync.Infof("shutdown requested")
				return nil
			}
			c.handleCommand(ctx, cmd)
			c.advanceState(ctx)

		case now := <-ticker.C:
			c.onTick(ctx, now)
			c.advanceState(ctx)
		}
	}
}

// onTick sweeps timed-out requests, checks for a stalled tip, and drives
// outstanding work forward — everything the loop does on its own, not in
// response to a specific event.
func (c *Coordinator) onTick(ctx context.Context, now time.Time) {
	for _, timedOut := range c.timeouts.Sweep(now) {
		c.log.Sync.Warnf("request %d (kind=%d) to peer %d timed out", timedOut.ID, timedOut.Kind, timedOut.Peer)
		if info, ok := c.peerMap.Get(p2p.PeerID(timedOut.Peer)); ok {
			info.Peer.Ban.Add(now, 20)
		}
	}
	if c.monitor.IsStale(now) {
		c.log.Sync.Warnf("chain tip stale, re-requesting headers from a peer")
		c.requestHeadersFromAll(ctx)
	}
	c.getBlocks(ctx)
	c.metrics.setConnectedPeers(c.peerMap.Count())
	_, tipHeight, _ := c.headers.Tip()
	c.metrics.setHeaderTip(tipHeight)
	cfTipHeight, _ := c.cfheaders.Tip()
	c.metrics.setCFHeaderTip(cfTipHeight)
	c.metrics.setBlockQueueDepth(c.queue.Len())
}

// dispatch routes one peer actor's Event to the right handler.
func (c *Coordinator) dispatch(ctx context.Context, ev p2p.Event) {
	switch ev.Kind {
	case p2p.EventConnected:
		c.handlePeerConnected(ctx, ev)
	case p2p.EventReceived:
		c.handleMessage(ctx, ev.Peer, ev.Message)
	case p2p.EventFault:
		c.log.Peer.Warnf("peer %d fault: %v", ev.Peer, ev.Err)
		c.disconnectPeer(ev.Peer)
	case p2p.EventDisconnected:
		c.disconnectPeer(ev.Peer)
	}
}

func (c *Coordinator) handlePeerConnected(ctx context.Context, ev p2p.Event) {
	if v, ok := ev.Message.(*wire.MsgVersion); ok {
		c.peerMap.SetServices(ev.Peer, v.Services)
		c.peerMap.SetHeight(ev.Peer, v.LastBlock)
	}
	c.log.Peer.Infof("peer %d connected", ev.Peer)
	c.requestHeaders(ctx, ev.Peer)
}

func (c *Coordinator) disconnectPeer(id p2p.PeerID) {
	c.log.Peer.Infof("peer %d disconnected", id)
	c.peerMap.Remove(id)
	for _, req := range c.timeouts.ForPeer(uint64(id)) {
		_ = req // the peer's tracked requests are dropped, not re-sent to another peer
	}
}

// handleMessage applies one decoded wire message from peer to the
// relevant chain/queue/feerate state.
func (c *Coordinator) handleMessage(ctx context.Context, peer p2p.PeerID, msg wire.Message) {
	switch m := msg.(type) {
	case *wire.MsgHeaders:
		c.onHeaders(ctx, peer, m)
	case *wire.MsgCFHeaders:
		c.onCFHeaders(ctx, peer, m)
	case *wire.MsgCFilter:
		c.onCFilter(ctx, peer, m)
	case *wire.MsgInv:
		c.onInv(ctx, peer, m)
	case *wire.MsgBlock:
		c.onBlock(peer, m)
	case *wire.MsgNotFound:
		c.log.Sync.Warnf("peer %d: notfound for %d items", peer, len(m.InvList))
	case *wire.MsgPing:
		_ = c.peerMap.SendMessage(ctx, peer, wire.NewMsgPong(m.Nonce))
	case *wire.MsgPong:
		// Pongs are not tracked; the only liveness check is each peer
		// actor's read deadline (p2p.Peer.IdleTimeout, set from
		// Config.MaxConnectionTime, where zero means no deadline).
	case *wire.MsgFeeFilter:
		c.peerMap.SetBroadcastMinFeeRate(peer, m.MinFee)
		c.recomputeMinFeeRate()
	case *wire.MsgReject:
		c.log.Peer.Warnf("peer %d rejected %s: %s", peer, m.Cmd, m.Reason)
	default:
		// unrecognized but successfully decoded message; nothing to do
	}
}

func (c *Coordinator) onHeaders(ctx context.Context, peer p2p.PeerID, m *wire.MsgHeaders) {
	c.headersWindowInFlight = false
	// The reply settles this peer's outstanding getheaders, the only
	// request kind the coordinator registers with the timeout tracker.
	c.timeouts.ForPeer(uint64(peer))
	headers := make([]chain.Header, len(m.Headers))
	for i, h := range m.Headers {
		headers[i] = *h
	}
	result, err := c.headers.ProcessHeaders(headers)
	if err != nil {
		c.log.Chain.Warnf("peer %d: header batch rejected: %v", peer, err)
		if chain.IsBanWorthy(err) {
			if info, ok := c.peerMap.Get(peer); ok {
				info.Peer.Ban.Add(time.Now(), 50)
				if info.Peer.Ban.ShouldBan(time.Now()) {
					c.peerMap.Ban(peer, 24*time.Hour)
				}
			}
		}
		return
	}
	switch result.Outcome {
	case chain.OutcomeExtended, chain.OutcomeReorg:
		c.monitor.Tip()
		if result.Outcome == chain.OutcomeReorg {
			c.log.Chain.Infof("reorg at height %d, %d blocks orphaned, new tip %d", result.ForkHeight, len(result.OrphanedHashes), result.NewTipHeight)
			c.queue.Remove(result.OrphanedHashes)
			c.emitEvent(Event{Kind: EventBlockDisconnected, Height: result.ForkHeight})
		}
		if c.headerStore != nil {
			for i, h := range headers {
				_ = c.headerStore.SaveHeader(result.NewTipHeight-int32(len(headers))+int32(i)+1, h)
			}
		}
		if len(headers) == 2000 {
			// more headers likely follow immediately
			c.requestHeaders(ctx, peer)
		} else {
			c.setState(StateHeadersSynced)
		}
	case chain.OutcomeForkAdded:
		c.log.Chain.Infof("peer %d: fork candidate recorded, not enough work to reorg yet", peer)
	case chain.OutcomeDuplicate:
		// nothing to do
	case chain.OutcomeEmpty:
		_, tipHeight, _ := c.headers.Tip()
		info, ok := c.peerMap.Get(peer)
		if !ok || info.Height <= tipHeight {
			c.setState(StateHeadersSynced)
			return
		}
		c.log.Chain.Warnf("peer %d: empty header batch but advertised height %d exceeds our tip %d", peer, info.Height, tipHeight)
		c.peerMap.Ban(peer, 24*time.Hour)
	}
}

func (c *Coordinator) onCFHeaders(ctx context.Context, peer p2p.PeerID, m *wire.MsgCFHeaders) {
	c.cfheaderWindowInFlight = false
	hashes := make([]chainhash.Hash, len(m.FilterHashes))
	for i, h := range m.FilterHashes {
		hashes[i] = *h
	}
	startHeight, ok := c.heightForCFStop(m.StopHash, len(hashes))
	if !ok {
		c.log.Chain.Warnf("peer %d: cfheaders stop hash unknown to our header chain", peer)
		return
	}
	result, err := c.cfheaders.ProcessCFHeaders(uint64(peer), startHeight, m.PrevFilterHeader, hashes)
	if err != nil && result.Outcome != chain.CFConflict {
		c.log.Chain.Warnf("peer %d: cfheaders batch rejected: %v", peer, err)
		return
	}
	for _, banned := range result.BannedPeers {
		c.peerMap.Ban(p2p.PeerID(banned), 24*time.Hour)
	}
	switch result.Outcome {
	case chain.CFCommitted, chain.CFConflict:
		c.requestCFHeaders(ctx)
	case chain.CFPendingQuorum:
		c.requestCFHeaders(ctx)
	case chain.CFTieNeedsAdjudication:
		c.log.Chain.Warnf("filter-header window at an unresolved tie; falling back to local adjudication")
		c.adjudicateCFTie(ctx, startHeight, len(hashes))
	}
}

// heightForCFStop maps a cfheaders StopHash back to its start height using
// the already-validated header chain; count is the number of headers in
// the batch.
func (c *Coordinator) heightForCFStop(stop chainhash.Hash, count int) (int32, bool) {
	_, tipHeight, _ := c.headers.Tip()
	for h := tipHeight; h >= 0; h-- {
		hash, ok := c.headers.HashAtHeight(h)
		if ok && hash == stop {
			return h - int32(count) + 1, true
		}
	}
	return 0, false
}

func (c *Coordinator) adjudicateCFTie(ctx context.Context, startHeight int32, count int) {
	// Enqueues every block of the disputed range for download. The blocks
	// are discarded on arrival: no filter is built from them and
	// CFHeaderChain.ResolveWindow is not called, so the window stays
	// pending and no peer is banned for it.
	for h := startHeight; h < startHeight+int32(count); h++ {
		hash, ok := c.headers.HashAtHeight(h)
		if !ok {
			continue
		}
		c.queue.Add(hash, queue.Recipient{Sink: func(*wire.MsgBlock) {}})
	}
	c.getBlocks(ctx)
}

func (c *Coordinator) onCFilter(ctx context.Context, peer p2p.PeerID, m *wire.MsgCFilter) {
	filter, err := chain.ParseFilter(m.Data)
	if err != nil {
		c.log.Chain.Warnf("peer %d: undecodable cfilter: %v", peer, err)
		return
	}
	height, ok := c.heightForHash(m.BlockHash)
	if !ok {
		return
	}
	check, err := chain.CheckFilter(filter, m.BlockHash, height, c.watch.Snapshot(), false)
	if err != nil {
		c.log.Chain.Warnf("peer %d: filter match error: %v", peer, err)
		return
	}
	if check.NeedsRequest {
		c.queue.Add(check.BlockHash, queue.Recipient{Sink: func(blk *wire.MsgBlock) {
			c.emitEvent(Event{Kind: EventBlockConnected, Block: blk, Height: height})
		}})
	}
	cfTip, _ := c.cfheaders.Tip()
	if height >= cfTip {
		c.setState(StateFiltersSynced)
	}
}

func (c *Coordinator) heightForHash(hash chainhash.Hash) (int32, bool) {
	_, tipHeight, _ := c.headers.Tip()
	for h := tipHeight; h >= 0; h-- {
		hh, ok := c.headers.HashAtHeight(h)
		if ok && hh == hash {
			return h, true
		}
	}
	return 0, false
}

func (c *Coordinator) onInv(ctx context.Context, peer p2p.PeerID, m *wire.MsgInv) {
	for _, inv := range m.InvList {
		if inv.Type != wire.InvTypeBlock && inv.Type != wire.InvTypeWitnessBlock {
			continue
		}
		if _, ok := c.heightForHash(inv.Hash); ok {
			continue
		}
		c.log.Sync.Infof("peer %d announced unknown block %s, regressing to Behind", peer, inv.Hash)
		c.setState(regressTo(c.State()))
		c.requestHeaders(ctx, peer)
	}
}

func (c *Coordinator) onBlock(peer p2p.PeerID, m *wire.MsgBlock) {
	hash := m.BlockHash()
	result := c.queue.ProcessBlock(hash, m)
	if result.Outcome == queue.OutcomeUnknownHash {
		return
	}
	if c.queue.Complete() && c.State() == StateFiltersSynced {
		c.setState(StateTransactionsSynced)
		c.emitEvent(Event{Kind: EventSynced})
	}
}

func (c *Coordinator) recomputeMinFeeRate() {
	var best int64 = -1
	for _, info := range c.peerMap.Snapshot() {
		if info.BroadcastMinFeeRate <= 0 {
			continue
		}
		if best < 0 || info.BroadcastMinFeeRate > best {
			best = info.BroadcastMinFeeRate
		}
	}
	c.minFeeRateMu.Lock()
	if best >= 0 {
		c.minFeeRate = best
	}
	c.minFeeRateMu.Unlock()
}

// advanceState re-checks the sync phase transitions that depend on global
// progress rather than a single incoming message (e.g. the queue draining
// to empty because of a late delivery, not a fresh one).
func (c *Coordinator) advanceState(ctx context.Context) {
	switch c.State() {
	case StateHeadersSynced:
		c.requestCFHeaders(ctx)
	case StateFilterHeadersSynced:
		c.requestFilters(ctx)
	case StateFiltersSynced:
		if c.queue.Complete() {
			c.setState(StateTransactionsSynced)
			c.emitEvent(Event{Kind: EventSynced})
		}
	}
	cfTip, _ := c.cfheaders.Tip()
	_, headerTip, _ := c.headers.Tip()
	if c.State() == StateHeadersSynced && cfTip >= headerTip {
		c.setState(StateFilterHeadersSynced)
	}
}

// requestHeaders sends a getheaders request to peer using the current
// chain locator.
func (c *Coordinator) requestHeaders(ctx context.Context, peer p2p.PeerID) {
	if c.headersWindowInFlight {
		return
	}
	c.headersWindowInFlight = true
	locator := c.headers.Locator()
	msg := p2p.NewGetHeaders(locator, chainhash.Hash{})
	if err := c.peerMap.SendMessage(ctx, peer, msg); err != nil {
		c.headersWindowInFlight = false
		return
	}
	c.timeouts.Start(RequestHeaders, uint64(peer), time.Now().Add(c.cfg.ResponseTimeout))
}

// requestHeadersFromAll clears the in-flight header flag and sends a
// getheaders request to one connected peer, not to every peer.
func (c *Coordinator) requestHeadersFromAll(ctx context.Context) {
	c.headersWindowInFlight = false
	for _, info := range c.peerMap.Snapshot() {
		c.requestHeaders(ctx, info.ID)
		break // one peer is enough to break a stall; avoid a thundering herd
	}
}

func (c *Coordinator) requestCFHeaders(ctx context.Context) {
	if c.cfheaderWindowInFlight {
		return
	}
	cfTip, _ := c.cfheaders.Tip()
	_, headerTip, _ := c.headers.Tip()
	if cfTip >= headerTip {
		return
	}
	stopHeight := cfTip + 2000
	if stopHeight > headerTip {
		stopHeight = headerTip
	}
	stopHash, ok := c.headers.HashAtHeight(stopHeight)
	if !ok {
		return
	}
	c.cfheaderWindowInFlight = true
	msg := p2p.NewGetCFHeaders(wire.GCSFilterRegular, cfTip+1, stopHash)
	if !c.peerMap.SendRandom(ctx, msg) {
		c.cfheaderWindowInFlight = false
	}
}

func (c *Coordinator) requestFilters(ctx context.Context) {
	if c.filterWindowInFlight {
		return
	}
	cfTip, _ := c.cfheaders.Tip()
	_, headerTip, _ := c.headers.Tip()
	if cfTip == 0 && headerTip == 0 {
		return
	}
	stopHash, ok := c.headers.HashAtHeight(cfTip)
	if !ok {
		return
	}
	c.filterWindowInFlight = true
	msg := p2p.NewGetCFilters(wire.GCSFilterRegular, 0, stopHash)
	if !c.peerMap.SendRandom(ctx, msg) {
		c.filterWindowInFlight = false
	}
}

// getBlocks pops every not-yet-requested block hash off the queue and sends
// each getdata to a randomly chosen connected peer; when no peer takes a
// request, that hash is requeued and the round stops.
func (c *Coordinator) getBlocks(ctx context.Context) {
	for {
		hash, ok := c.queue.Pop()
		if !ok {
			return
		}
		height, _ := c.heightForHash(hash)
		msg := p2p.NewGetData([]*wire.InvVect{p2p.BlockInv(hash)})
		if !c.peerMap.SendRandom(ctx, msg) {
			c.queue.Requeue(hash)
			return
		}
		c.log.Sync.Debugf("requested block %s (height %d)", hash, height)
	}
}

// broadcastTransactions relays tx to every connected peer, honoring
// whatever the caller supplied via CommandBroadcast.
func (c *Coordinator) broadcastTransactions(ctx context.Context, tx *wire.MsgTx) {
	c.peerMap.Broadcast(ctx, tx)
}

func (c *Coordinator) handleCommand(ctx context.Context, cmd Command) {
	switch v := cmd.(type) {
	case CommandBroadcast:
		c.broadcastTransactions(ctx, v.Tx)
	case CommandAddScript:
		c.watch.Add(v.Script)
	case CommandRescan:
		c.watch.RequestRescan(v.FromHeight)
		c.setState(StateFilterHeadersSynced)
	case CommandGetBlock:
		hash := v.Hash
		c.queue.Add(hash, queue.Recipient{Sink: func(blk *wire.MsgBlock) {
			v.Reply <- GetBlockResult{Block: blk}
		}})
		c.getBlocks(ctx)
	case CommandGetHeader:
		hdr, ok := c.headers.HeaderAt(v.Height)
		if !ok {
			v.Reply <- GetHeaderResult{Err: &FetchHeaderError{Kind: FetchUnknownHeight, Height: v.Height}}
			return
		}
		v.Reply <- GetHeaderResult{Header: hdr}
	case CommandGetHeaderBatch:
		var out []chain.Header
		for h := v.FromHeight; h <= v.ToHeight; h++ {
			hdr, ok := c.headers.HeaderAt(h)
			if !ok {
				break
			}
			out = append(out, hdr)
		}
		v.Reply <- GetHeaderBatchResult{Headers: out}
	case CommandGetBroadcastMinFeeRate:
		c.minFeeRateMu.Lock()
		rate := c.minFeeRate
		c.minFeeRateMu.Unlock()
		v.Reply <- rate
	case CommandSetDuration:
		c.cfg.ResponseTimeout = time.Duration(v.ResponseTimeout)
	case CommandAddPeer:
		c.emitInfo(fmt.Sprintf("manual peer add requested: %s", v.Addr))
		go c.connectPeer(ctx, v.Addr, false)
	case CommandNoOp:
	}
}

// connectPeer dials addr, performs the version handshake and registers the
// resulting peer actor. It does its own blocking I/O, so it must run in its
// own goroutine rather than the coordinator's select loop; the peer map's
// internal mutex makes the registration itself safe to call from here.
func (c *Coordinator) connectPeer(ctx context.Context, addr string, inbound bool) {
	if c.peerMap.IsBanned(addr) {
		c.log.Peer.Debugf("skipping banned address %s", addr)
		return
	}
	dialer := net.Dialer{Timeout: p2p.HandshakeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.emitWarning(fmt.Sprintf("dial %s: %v", addr, err))
		return
	}

	result, err := p2p.Handshake(conn, c.net, c.version, c.peerMap.NeedsMorePeers())
	if err != nil {
		_ = conn.Close()
		c.emitWarning(fmt.Sprintf("handshake with %s: %v", addr, err))
		return
	}

	id := p2p.NewPeerID()
	peerCtx, cancel := context.WithCancel(ctx)
	peer := p2p.NewPeer(id, conn, c.net, result.PeerVersion, c.events)
	peer.IdleTimeout = c.cfg.MaxConnectionTime

	info := &peers.Info{
		ID:       id,
		Addr:     addr,
		Peer:     peer,
		Cancel:   cancel,
		Inbound:  inbound,
		Services: result.PeerVersion.Services,
		Height:   result.PeerVersion.LastBlock,
	}
	for _, trusted := range c.cfg.WhiteList {
		if trusted == addr {
			info.Whitelisted = true
			break
		}
	}
	c.peerMap.Add(info)
	peer.Run(peerCtx)
}

func (c *Coordinator) emitEvent(ev Event) {
	select {
	case c.outEvents <- ev:
	default:
	}
}

func (c *Coordinator) emitInfo(s string) {
	select {
	case c.outInfo <- s:
	default:
	}
}

func (c *Coordinator) emitWarning(s string) {
	select {
	case c.outWarn <- s:
	default:
	}
}
