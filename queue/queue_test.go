package queue

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

func TestAddAndPopMarksInFlight(t *testing.T) {
	q := New()
	var hash chainhash.Hash
	hash[0] = 0x01

	ch := make(chan *wire.MsgBlock, 1)
	q.Add(hash, Recipient{Ch: ch})

	got, ok := q.Pop()
	if !ok || got != hash {
		t.Fatalf("Pop() = (%s, %v), want (%s, true)", got, ok, hash)
	}

	if _, ok := q.Pop(); ok {
		t.Fatalf("a second Pop should find nothing left (the only hash is in flight)")
	}
}

func TestProcessBlockDeliversToAllRecipients(t *testing.T) {
	q := New()
	var hash chainhash.Hash
	hash[0] = 0x02

	ch1 := make(chan *wire.MsgBlock, 1)
	ch2 := make(chan *wire.MsgBlock, 1)
	q.Add(hash, Recipient{Ch: ch1})
	q.Add(hash, Recipient{Ch: ch2})

	block := &wire.MsgBlock{}
	res := q.ProcessBlock(hash, block)
	if res.Outcome != OutcomeAccepted {
		t.Fatalf("outcome = %v, want Accepted", res.Outcome)
	}
	if len(res.Recipients) != 2 {
		t.Fatalf("recipients = %d, want 2", len(res.Recipients))
	}

	select {
	case got := <-ch1:
		if got != block {
			t.Fatalf("ch1 got a different block")
		}
	default:
		t.Fatalf("ch1 received nothing")
	}
	select {
	case got := <-ch2:
		if got != block {
			t.Fatalf("ch2 got a different block")
		}
	default:
		t.Fatalf("ch2 received nothing")
	}

	if q.Contains(hash) {
		t.Fatalf("entry should be removed after delivery")
	}
}

func TestProcessBlockUnknownHash(t *testing.T) {
	q := New()
	var hash chainhash.Hash
	res := q.ProcessBlock(hash, &wire.MsgBlock{})
	if res.Outcome != OutcomeUnknownHash {
		t.Fatalf("outcome = %v, want UnknownHash", res.Outcome)
	}
}

func TestRemoveDropsEntries(t *testing.T) {
	q := New()
	var h1, h2 chainhash.Hash
	h1[0], h2[0] = 0x01, 0x02
	q.Add(h1, Recipient{Sink: func(*wire.MsgBlock) {}})
	q.Add(h2, Recipient{Sink: func(*wire.MsgBlock) {}})

	q.Remove([]chainhash.Hash{h1})
	if q.Contains(h1) {
		t.Fatalf("h1 should have been removed")
	}
	if !q.Contains(h2) {
		t.Fatalf("h2 should remain")
	}
}

func TestCompleteReflectsEmptyQueue(t *testing.T) {
	q := New()
	if !q.Complete() {
		t.Fatalf("a fresh queue should be complete")
	}
	var hash chainhash.Hash
	q.Add(hash, Recipient{Sink: func(*wire.MsgBlock) {}})
	if q.Complete() {
		t.Fatalf("queue with an entry should not be complete")
	}
	q.ProcessBlock(hash, &wire.MsgBlock{})
	if !q.Complete() {
		t.Fatalf("queue should be complete again after delivery")
	}
}

func TestRequeueAllowsAnotherPop(t *testing.T) {
	q := New()
	var hash chainhash.Hash
	q.Add(hash, Recipient{Sink: func(*wire.MsgBlock) {}})

	if _, ok := q.Pop(); !ok {
		t.Fatalf("expected Pop to succeed")
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("expected Pop to find nothing while in flight")
	}
	q.Requeue(hash)
	got, ok := q.Pop()
	if !ok || got != hash {
		t.Fatalf("Pop after Requeue = (%s, %v)", got, ok)
	}
}
