// Package queue tracks outstanding full-block requests, keyed by block
// hash so that any number of interested recipients collapse onto a single
// in-flight network request.
package queue

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Recipient is delivered a block exactly once, either via Ch (a one-shot
// channel owned by a client command) or via a coordinator-managed event
// sink function — exactly one of the two should be set.
type Recipient struct {
	Ch   chan<- *wire.MsgBlock
	Sink func(*wire.MsgBlock)
}

func (r Recipient) deliver(block *wire.MsgBlock) {
	if r.Ch != nil {
		select {
		case r.Ch <- block:
		default:
		}
		return
	}
	if r.Sink != nil {
		r.Sink(block)
	}
}

type entry struct {
	recipients []Recipient
	inFlight   bool
}

// Outcome classifies the result of delivering a block to the queue.
type Outcome int

const (
	OutcomeUnknownHash Outcome = iota
	OutcomeLateResponse
	OutcomeAccepted
)

// ProcessResult is returned by ProcessBlock.
type ProcessResult struct {
	Outcome    Outcome
	Recipients []Recipient
}

// Queue is the block-request queue: map block hash -> recipients, one
// in-flight request per hash at a time.
type Queue struct {
	mu      sync.Mutex
	entries map[chainhash.Hash]*entry
}

func New() *Queue {
	return &Queue{entries: make(map[chainhash.Hash]*entry)}
}

// Add registers recipient's interest in hash. The first caller for a given
// hash is the one whose need creates the entry; later callers fan in.
func (q *Queue) Add(hash chainhash.Hash, recipient Recipient) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[hash]
	if !ok {
		e = &entry{}
		q.entries[hash] = e
	}
	e.recipients = append(e.recipients, recipient)
}

// Pop returns one not-yet-requested hash and marks it in-flight, or false
// if every entry is already in-flight or the queue is empty.
func (q *Queue) Pop() (chainhash.Hash, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for hash, e := range q.entries {
		if !e.inFlight {
			e.inFlight = true
			return hash, true
		}
	}
	return chainhash.Hash{}, false
}

// ProcessBlock delivers block to every recipient registered for hash
// exactly once, then removes the entry. A hash with no entry is either
// unsolicited (UnknownHash) or arrived after the entry was already
// removed, e.g. by a reorg (LateResponse is reported the same way by the
// caller checking Remove first — ProcessBlock itself cannot distinguish
// the two and always reports UnknownHash for a missing entry).
func (q *Queue) ProcessBlock(hash chainhash.Hash, block *wire.MsgBlock) ProcessResult {
	q.mu.Lock()
	e, ok := q.entries[hash]
	if !ok {
		q.mu.Unlock()
		return ProcessResult{Outcome: OutcomeUnknownHash}
	}
	delete(q.entries, hash)
	q.mu.Unlock()

	for _, r := range e.recipients {
		r.deliver(block)
	}
	return ProcessResult{Outcome: OutcomeAccepted, Recipients: e.recipients}
}

// Remove drops entries for hashes with no delivery (used on reorg, where
// the requested block no longer sits on the main chain).
func (q *Queue) Remove(hashes []chainhash.Hash) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, h := range hashes {
		delete(q.entries, h)
	}
}

// Complete reports whether the queue has no entries at all, in flight or
// otherwise — the gate for the FiltersSynced -> TransactionsSynced
// transition.
func (q *Queue) Complete() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries) == 0
}

// Len reports the number of outstanding hashes (requested or not), for
// metrics/diagnostics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Contains reports whether hash currently has an entry, in flight or not.
func (q *Queue) Contains(hash chainhash.Hash) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.entries[hash]
	return ok
}

// Requeue marks hash as no longer in-flight, e.g. after a peer disconnects
// mid-request, so Pop can hand it to another peer.
func (q *Queue) Requeue(hash chainhash.Hash) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[hash]; ok {
		e.inFlight = false
	}
}
