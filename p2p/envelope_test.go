package p2p

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/btcsuite/btcd/wire"
)

func TestWriteReadMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	ping := wire.NewMsgPing(424242)

	if err := WriteMessage(&buf, wire.MainNet, ping); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	got, rerr := ReadMessage(&buf, wire.MainNet)
	if rerr != nil {
		t.Fatalf("ReadMessage: %v", rerr)
	}
	gotPing, ok := got.(*wire.MsgPing)
	if !ok {
		t.Fatalf("got %T, want *wire.MsgPing", got)
	}
	if gotPing.Nonce != 424242 {
		t.Fatalf("nonce = %d, want 424242", gotPing.Nonce)
	}
}

func TestReadMessageRejectsWrongNetwork(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, wire.TestNet3, wire.NewMsgVerAck()); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	_, rerr := ReadMessage(&buf, wire.MainNet)
	if rerr == nil {
		t.Fatalf("expected a network-mismatch error")
	}
	if !rerr.Disconnect || rerr.BanScoreDelta == 0 {
		t.Fatalf("rerr = %+v, want a ban-worthy disconnect", rerr)
	}
}

func TestReadMessageRejectsCorruptChecksum(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, wire.MainNet, wire.NewMsgPing(1)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF // corrupt the last payload byte

	_, rerr := ReadMessage(bytes.NewReader(raw), wire.MainNet)
	if rerr == nil {
		t.Fatalf("expected a checksum error")
	}
	if rerr.Disconnect {
		t.Fatalf("a checksum failure alone should not force a disconnect")
	}
}

func TestReadMessageRejectsOversizedLength(t *testing.T) {
	var hdr [HeaderBytes]byte
	// magic = MainNet, command = "ping", length = far beyond its bound.
	cmd, _ := encodeCommand(wire.CmdPing)
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(wire.MainNet))
	copy(hdr[4:16], cmd[:])
	hdr[16] = 0xff
	hdr[17] = 0xff
	hdr[18] = 0xff
	hdr[19] = 0x7f

	_, rerr := ReadMessage(bytes.NewReader(hdr[:]), wire.MainNet)
	if rerr == nil || !rerr.Disconnect {
		t.Fatalf("expected a disconnect-worthy bound violation, got %+v", rerr)
	}
}
