package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func TestBoltPeerStoreAddrsAndBans(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.db")
	store, err := OpenBoltPeerStore(path)
	if err != nil {
		t.Fatalf("OpenBoltPeerStore: %v", err)
	}
	defer store.Close()

	if err := store.SaveAddr("10.0.0.1:8333"); err != nil {
		t.Fatalf("SaveAddr: %v", err)
	}
	if err := store.SaveAddr("10.0.0.2:8333"); err != nil {
		t.Fatalf("SaveAddr: %v", err)
	}
	addrs, err := store.LoadAddrs()
	if err != nil {
		t.Fatalf("LoadAddrs: %v", err)
	}
	if len(addrs) != 2 {
		t.Fatalf("loaded %d addrs, want 2", len(addrs))
	}

	if banned, _, err := store.IsBanned("10.0.0.1:8333"); err != nil || banned {
		t.Fatalf("unbanned address reported banned: %v, err=%v", banned, err)
	}

	future := time.Now().Add(time.Hour)
	if err := store.MarkBanned("10.0.0.1:8333", future); err != nil {
		t.Fatalf("MarkBanned: %v", err)
	}
	banned, until, err := store.IsBanned("10.0.0.1:8333")
	if err != nil {
		t.Fatalf("IsBanned: %v", err)
	}
	if !banned {
		t.Fatalf("expected the address to be banned")
	}
	if until.Unix() != future.Unix() {
		t.Fatalf("until = %v, want %v", until, future)
	}
}

func TestBoltPeerStoreExpiredBan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.db")
	store, err := OpenBoltPeerStore(path)
	if err != nil {
		t.Fatalf("OpenBoltPeerStore: %v", err)
	}
	defer store.Close()

	past := time.Now().Add(-time.Hour)
	if err := store.MarkBanned("1.1.1.1:8333", past); err != nil {
		t.Fatalf("MarkBanned: %v", err)
	}
	banned, _, err := store.IsBanned("1.1.1.1:8333")
	if err != nil {
		t.Fatalf("IsBanned: %v", err)
	}
	if banned {
		t.Fatalf("an expired ban should not report as banned")
	}
}
