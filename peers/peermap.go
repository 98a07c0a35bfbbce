// Package peers holds the peer map (connected peer actors plus their
// negotiated state) and the address book used to pick the next peer to
// dial.
package peers

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/lru"

	"lumen.dev/node/p2p"
)

// Info is everything the map knows about one connected peer beyond the
// actor itself.
type Info struct {
	ID      p2p.PeerID
	Addr    string
	Peer    *p2p.Peer
	Cancel  context.CancelFunc
	Inbound bool

	Services            wire.ServiceFlag
	Height              int32
	BroadcastMinFeeRate int64
	Whitelisted         bool
}

// banEntry records how long an address remains banned.
type banEntry struct {
	until time.Time
}

// Map is the coordinator's single source of truth for connected peers and
// recently-tried/banned addresses. Every method takes the mutex: Add is
// called from the coordinator's per-dial connectPeer goroutines while the
// coordinator loop itself reads and mutates the map.
type Map struct {
	mu sync.Mutex

	byID map[p2p.PeerID]*Info

	banned        map[string]banEntry
	recentlyTried *lru.Cache[string]

	target int
}

// NewMap creates a peer map that will try to maintain target live
// connections, remembering up to recentlyTriedSize addresses it has
// recently dialed so it doesn't hammer the same few peers.
func NewMap(target, recentlyTriedSize int) *Map {
	if target <= 0 {
		target = 8
	}
	if recentlyTriedSize <= 0 {
		recentlyTriedSize = 256
	}
	return &Map{
		byID:          make(map[p2p.PeerID]*Info),
		banned:        make(map[string]banEntry),
		recentlyTried: lru.NewCache[string](uint(recentlyTriedSize)),
		target:        target,
	}
}

// Add registers a newly handshaken peer.
func (m *Map) Add(info *Info) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[info.ID] = info
	m.recentlyTried.Add(info.Addr)
}

// Remove drops id from the map, returning its Info (so the caller can
// cancel its context / close its connection) if it was present.
func (m *Map) Remove(id p2p.PeerID) (*Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.byID[id]
	if ok {
		delete(m.byID, id)
	}
	return info, ok
}

// Get returns the Info for id.
func (m *Map) Get(id p2p.PeerID) (*Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.byID[id]
	return info, ok
}

// Count returns the number of currently connected peers.
func (m *Map) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// NeedsMorePeers reports whether the map is below its target connection
// count.
func (m *Map) NeedsMorePeers() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID) < m.target
}

// Snapshot returns a copy of every connected peer's Info.
func (m *Map) Snapshot() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Info, 0, len(m.byID))
	for _, info := range m.byID {
		out = append(out, *info)
	}
	return out
}

// SetServices/SetHeight/SetBroadcastMinFeeRate update one peer's
// negotiated/observed state, as reported by its version message or
// subsequent feefilter message.
func (m *Map) SetServices(id p2p.PeerID, services wire.ServiceFlag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.byID[id]; ok {
		info.Services = services
	}
}

func (m *Map) SetHeight(id p2p.PeerID, height int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.byID[id]; ok {
		info.Height = height
	}
}

func (m *Map) SetBroadcastMinFeeRate(id p2p.PeerID, rate int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.byID[id]; ok {
		info.BroadcastMinFeeRate = rate
	}
}

// Whitelist marks id (and its address) as trusted: it bypasses ban state
// and is never evicted by Clean.
func (m *Map) Whitelist(id p2p.PeerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.byID[id]; ok {
		info.Whitelisted = true
	}
}

// Ban marks addr banned for duration and severs id's connection (via its
// Cancel func) unless addr is whitelisted.
func (m *Map) Ban(id p2p.PeerID, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.byID[id]
	if !ok {
		return
	}
	if info.Whitelisted {
		return
	}
	m.banned[info.Addr] = banEntry{until: time.Now().Add(duration)}
	if info.Cancel != nil {
		info.Cancel()
	}
	delete(m.byID, id)
}

// IsBanned reports whether addr is currently banned (bans expire).
func (m *Map) IsBanned(addr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.banned[addr]
	if !ok {
		return false
	}
	if time.Now().After(b.until) {
		delete(m.banned, addr)
		return false
	}
	return true
}

// NextPeer picks an address to dial from candidates, excluding banned and
// recently-tried addresses and every address already connected.
func (m *Map) NextPeer(candidates []string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	connected := make(map[string]struct{}, len(m.byID))
	for _, info := range m.byID {
		connected[info.Addr] = struct{}{}
	}

	eligible := make([]string, 0, len(candidates))
	for _, addr := range candidates {
		if _, ok := connected[addr]; ok {
			continue
		}
		if b, ok := m.banned[addr]; ok && time.Now().Before(b.until) {
			continue
		}
		if m.recentlyTried.Contains(addr) {
			continue
		}
		eligible = append(eligible, addr)
	}
	if len(eligible) == 0 {
		return "", false
	}
	return eligible[rand.Intn(len(eligible))], true
}

// Clean reaps any Info whose Peer actor has already signalled it's gone
// (the coordinator is expected to have removed dead peers via Remove as
// their Disconnected events arrive; Clean exists for the rare case of a
// peer wedged past its idle timeout with no event delivered yet).
func (m *Map) Clean(isAlive func(*Info) bool) []p2p.PeerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	var dead []p2p.PeerID
	for id, info := range m.byID {
		if info.Whitelisted {
			continue
		}
		if !isAlive(info) {
			dead = append(dead, id)
		}
	}
	for _, id := range dead {
		delete(m.byID, id)
	}
	return dead
}

// SendMessage queues msg for delivery to id.
func (m *Map) SendMessage(ctx context.Context, id p2p.PeerID, msg wire.Message) error {
	info, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("peers: unknown peer %d", id)
	}
	return info.Peer.Send(ctx, msg)
}

// Broadcast queues msg for delivery to every connected peer, best-effort.
func (m *Map) Broadcast(ctx context.Context, msg wire.Message) {
	for _, info := range m.Snapshot() {
		_ = info.Peer.Send(ctx, msg)
	}
}

// SendRandom queues msg for delivery to one randomly chosen connected
// peer, returning false if there are none.
func (m *Map) SendRandom(ctx context.Context, msg wire.Message) bool {
	snap := m.Snapshot()
	if len(snap) == 0 {
		return false
	}
	info := snap[rand.Intn(len(snap))]
	_ = info.Peer.Send(ctx, msg)
	return true
}
