package node

import (
	"io"
	"strings"

	"github.com/btcsuite/btclog"
)

// subsystem tags, mirroring the btcsuite convention of short all-caps
// subsystem identifiers shared by btcd and lnd.
const (
	subsystemSync = "SYNC"
	subsystemPeer = "PEER"
	subsystemChn  = "CHN"
	subsystemBanm = "BANM"
)

// loggers bundles one btclog.Logger per subsystem, all backed by the same
// Backend so a single writer (and a single configured level) governs them.
type loggers struct {
	backend *btclog.Backend
	Sync    btclog.Logger
	Peer    btclog.Logger
	Chain   btclog.Logger
	Ban     btclog.Logger
}

// newLoggers builds the subsystem loggers, writing to w and filtered at
// level (parsed case-insensitively; an unrecognized level falls back to
// Info).
func newLoggers(w io.Writer, level string) *loggers {
	backend := btclog.NewBackend(w)
	l := &loggers{
		backend: backend,
		Sync:    backend.Logger(subsystemSync),
		Peer:    backend.Logger(subsystemPeer),
		Chain:   backend.Logger(subsystemChn),
		Ban:     backend.Logger(subsystemBanm),
	}
	lvl := parseLevel(level)
	l.Sync.SetLevel(lvl)
	l.Peer.SetLevel(lvl)
	l.Chain.SetLevel(lvl)
	l.Ban.SetLevel(lvl)
	return l
}

func parseLevel(s string) btclog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return btclog.LevelTrace
	case "debug":
		return btclog.LevelDebug
	case "warn":
		return btclog.LevelWarn
	case "error":
		return btclog.LevelError
	case "critical":
		return btclog.LevelCritical
	default:
		return btclog.LevelInfo
	}
}

// logLineWriter adapts the client's plain-string Log stream to an
// io.Writer, so application code reading that channel still sees
// every line the structured loggers emit, without the coordinator ever
// formatting log text itself.
type logLineWriter struct {
	lines chan<- string
}

func (w logLineWriter) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	if line != "" {
		select {
		case w.lines <- line:
		default:
		}
	}
	return len(p), nil
}
