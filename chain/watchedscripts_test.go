package chain

import "testing"

func TestWatchedScriptsAddAndContains(t *testing.T) {
	w := NewWatchedScripts()
	script := []byte{0x76, 0xa9, 0x14}

	if w.Contains(script) {
		t.Fatalf("script should not be watched yet")
	}
	w.Add(script)
	if !w.Contains(script) {
		t.Fatalf("script should now be watched")
	}
	if got := w.Snapshot(); len(got) != 1 {
		t.Fatalf("snapshot len = %d, want 1", len(got))
	}
}

func TestWatchedScriptsRescanTracksEarliestHeight(t *testing.T) {
	w := NewWatchedScripts()

	if _, ok := w.TakeRescan(); ok {
		t.Fatalf("no rescan should be pending initially")
	}

	w.RequestRescan(500)
	w.RequestRescan(200)
	w.RequestRescan(800)

	h, ok := w.TakeRescan()
	if !ok || h != 200 {
		t.Fatalf("TakeRescan = (%d, %v), want (200, true)", h, ok)
	}
	if _, ok := w.TakeRescan(); ok {
		t.Fatalf("rescan should be cleared after TakeRescan")
	}
}
