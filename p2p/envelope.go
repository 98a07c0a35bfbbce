package p2p

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"unicode"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	HeaderBytes  = 24
	CommandBytes = 12
)

// ReadError conveys how the caller should treat a malformed message: how
// much to add to the peer's ban score, and whether the connection must be
// dropped outright regardless of score.
type ReadError struct {
	Err           error
	BanScoreDelta int
	Disconnect    bool
}

func (e *ReadError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func encodeCommand(cmd string) ([CommandBytes]byte, error) {
	var out [CommandBytes]byte
	if cmd == "" || len(cmd) > CommandBytes {
		return out, fmt.Errorf("p2p: invalid command length for %q", cmd)
	}
	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		if c >= 0x80 || c == 0x00 || !unicode.IsPrint(rune(c)) {
			return out, fmt.Errorf("p2p: command contains non-printable ASCII")
		}
		out[i] = c
	}
	return out, nil
}

func decodeCommand(b [CommandBytes]byte) (string, error) {
	n := CommandBytes
	for i := 0; i < CommandBytes; i++ {
		if b[i] == 0x00 {
			n = i
			break
		}
	}
	for i := n; i < CommandBytes; i++ {
		if b[i] != 0x00 {
			return "", fmt.Errorf("p2p: command not NUL-right-padded")
		}
	}
	if n == 0 {
		return "", fmt.Errorf("p2p: empty command")
	}
	return string(b[:n]), nil
}

func checksum4(payload []byte) [4]byte {
	d := chainhash.DoubleHashB(payload)
	var out [4]byte
	copy(out[:], d[:4])
	return out
}

// WriteMessage frames msg using the V1 wire format: a 24-byte header
// (magic, command, length, checksum) followed by msg's own encoding.
func WriteMessage(w io.Writer, net wire.BitcoinNet, msg wire.Message) error {
	var payload bytes.Buffer
	if err := msg.BtcEncode(&payload, wire.ProtocolVersion, wire.BaseEncoding); err != nil {
		return fmt.Errorf("p2p: encode %s: %w", msg.Command(), err)
	}
	cmd12, err := encodeCommand(msg.Command())
	if err != nil {
		return err
	}
	if uint32(payload.Len()) > boundFor(msg.Command()) {
		return fmt.Errorf("p2p: outbound %s payload exceeds its own bound", msg.Command())
	}

	var hdr [HeaderBytes]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(net))
	copy(hdr[4:16], cmd12[:])
	binary.LittleEndian.PutUint32(hdr[16:20], uint32(payload.Len()))
	sum := checksum4(payload.Bytes())
	copy(hdr[20:24], sum[:])

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(payload.Bytes())
	return err
}

// ReadMessage reads one V1-framed message from r, enforcing a per-command
// payload bound before the body is read so a lying length field cannot
// force an oversized allocation.
func ReadMessage(r io.Reader, net wire.BitcoinNet) (wire.Message, *ReadError) {
	var hdr [HeaderBytes]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, &ReadError{Err: fmt.Errorf("p2p: read header: %w", err), BanScoreDelta: 20, Disconnect: true}
	}

	gotNet := wire.BitcoinNet(binary.LittleEndian.Uint32(hdr[0:4]))
	if gotNet != net {
		return nil, &ReadError{Err: fmt.Errorf("p2p: network magic mismatch"), BanScoreDelta: 100, Disconnect: true}
	}

	var cmdBytes [CommandBytes]byte
	copy(cmdBytes[:], hdr[4:16])
	command, err := decodeCommand(cmdBytes)
	if err != nil {
		return nil, &ReadError{Err: err, BanScoreDelta: 20, Disconnect: true}
	}

	length := binary.LittleEndian.Uint32(hdr[16:20])
	if length > boundFor(command) {
		return nil, &ReadError{
			Err:           fmt.Errorf("p2p: %s payload length %d exceeds bound %d", command, length, boundFor(command)),
			BanScoreDelta: 50,
			Disconnect:    true,
		}
	}

	var wantSum [4]byte
	copy(wantSum[:], hdr[20:24])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, &ReadError{Err: fmt.Errorf("p2p: read payload: %w", err), BanScoreDelta: 20, Disconnect: true}
	}
	if checksum4(payload) != wantSum {
		return nil, &ReadError{Err: fmt.Errorf("p2p: %s checksum mismatch", command), BanScoreDelta: 10, Disconnect: false}
	}

	msg, err := wire.MakeEmptyMessage(command)
	if err != nil {
		// Unknown command: not a fault, just nothing this client handles.
		return nil, &ReadError{Err: fmt.Errorf("p2p: unknown command %q: %w", command, err), BanScoreDelta: 0, Disconnect: false}
	}
	if err := msg.BtcDecode(bytes.NewReader(payload), wire.ProtocolVersion, wire.BaseEncoding); err != nil {
		return nil, &ReadError{Err: fmt.Errorf("p2p: decode %s: %w", command, err), BanScoreDelta: 10, Disconnect: false}
	}
	return msg, nil
}
