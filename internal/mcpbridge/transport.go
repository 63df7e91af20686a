package mcpbridge

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"net"

	"github.com/chibi-ai/chibi/internal/chibierr"
)

// maxFrameBytes bounds a single length-delimited frame to guard against a
// corrupt length header requesting an unreasonable allocation.
const maxFrameBytes = 64 << 20

// WriteFrame writes v as one length-delimited JSON message: a 4-byte
// big-endian length header followed by the JSON payload. No framing
// library exists in the pack for this; the header-plus-encoding/json
// idiom is the minimal thing that satisfies spec §4.7/§6.
func WriteFrame(w io.Writer, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return chibierr.Wrap(chibierr.InvalidInput, "encode frame", err)
	}
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return chibierr.Wrap(chibierr.Unavailable, "write frame header", err)
	}
	if _, err := w.Write(payload); err != nil {
		return chibierr.Wrap(chibierr.Unavailable, "write frame payload", err)
	}
	return nil
}

// ReadFrame reads one length-delimited JSON message into v.
func ReadFrame(r io.Reader, v interface{}) error {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return chibierr.Wrap(chibierr.Unavailable, "read frame header", err)
	}
	length := binary.BigEndian.Uint32(header)
	if length > maxFrameBytes {
		return chibierr.New(chibierr.InvalidData, "frame exceeds maximum size")
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return chibierr.Wrap(chibierr.Unavailable, "read frame payload", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return chibierr.Wrap(chibierr.InvalidData, "decode frame", err)
	}
	return nil
}

// Dial opens a single TCP connection to the bridge daemon's address.
func Dial(address string) (net.Conn, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, chibierr.Wrap(chibierr.Unavailable, "dial mcp bridge", err)
	}
	return conn, nil
}
