package p2p

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
)

func TestBoundForKnownCommand(t *testing.T) {
	if b := boundFor(wire.CmdPing); b != 8 {
		t.Fatalf("ping bound = %d, want 8", b)
	}
}

func TestBoundForUnknownCommandUsesDefault(t *testing.T) {
	if b := boundFor("notacommand"); b != defaultMaxPayload {
		t.Fatalf("unknown command bound = %d, want default %d", b, defaultMaxPayload)
	}
}
