// Package protocol implements the length-prefixed application frame used by
// every rpcmesh connection.
//
// Frame layout, all integer fields network byte order:
//
//	+----+-------+-------+----+------+
//	|LEN | MTYPE | IDLEN | ID | BODY |
//	+----+-------+-------+----+------+
//	 4B    4B      4B     var   var
//
// LEN counts the bytes that follow it: MTYPE + IDLEN + ID + BODY. Readers
// accumulate bytes from the transport into a Decoder and pull frames out of
// it once enough of the stream has arrived; this decouples framing from any
// particular I/O pattern (a single conn.Read, a bufio.Reader, a test buffer).
package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

const (
	lenFieldSize    = 4
	mtypeFieldSize  = 4
	idlenFieldSize  = 4
	headerFixedSize = mtypeFieldSize + idlenFieldSize // bytes counted by LEN before ID

	// MaxBufferedBytes bounds how much unparsed data a Decoder will hold
	// before concluding the peer desynchronized the stream.
	MaxBufferedBytes = 65536
)

// ErrIncomplete is returned by DecodeOne when the buffer does not yet hold a
// full frame. Callers should check CanDecode before calling DecodeOne to
// avoid this in the common case; it is exported for direct use in tests.
var ErrIncomplete = errors.New("protocol: incomplete frame")

// Frame is one decoded wire frame: a message type tag, an id of arbitrary
// length, and the raw JSON body bytes.
type Frame struct {
	MType uint32
	ID    string
	Body  []byte
}

// Encode serializes f into a single contiguous byte slice ready to write to
// a connection.
func Encode(f Frame) []byte {
	idBytes := []byte(f.ID)
	total := headerFixedSize + len(idBytes) + len(f.Body)
	buf := make([]byte, lenFieldSize+total)

	binary.BigEndian.PutUint32(buf[0:4], uint32(total))
	binary.BigEndian.PutUint32(buf[4:8], f.MType)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(idBytes)))
	copy(buf[12:12+len(idBytes)], idBytes)
	copy(buf[12+len(idBytes):], f.Body)
	return buf
}

// WriteFrame encodes and writes f to w in one Write call.
func WriteFrame(w io.Writer, f Frame) error {
	_, err := w.Write(Encode(f))
	return err
}

// Decoder accumulates bytes fed to it from a connection and extracts
// complete frames. It is not safe for concurrent use — a connection reads
// its own byte stream sequentially from a single goroutine.
type Decoder struct {
	buf []byte
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends newly read bytes to the internal buffer.
func (d *Decoder) Feed(data []byte) {
	d.buf = append(d.buf, data...)
}

// CanDecode reports whether the buffer currently holds at least one
// complete frame.
func (d *Decoder) CanDecode() bool {
	if len(d.buf) < lenFieldSize {
		return false
	}
	total := binary.BigEndian.Uint32(d.buf[0:4])
	return uint64(len(d.buf)) >= uint64(total)+lenFieldSize
}

// Desynced reports whether the buffer has grown past MaxBufferedBytes
// without yielding a complete frame — the caller should treat the
// connection as unrecoverable (§4.1's desync guard).
func (d *Decoder) Desynced() bool {
	return len(d.buf) > MaxBufferedBytes && !d.CanDecode()
}

// DecodeOne consumes exactly one frame from the buffer. It returns
// ErrIncomplete if CanDecode would report false; callers loop on CanDecode
// before calling DecodeOne.
func (d *Decoder) DecodeOne() (Frame, error) {
	if !d.CanDecode() {
		return Frame{}, ErrIncomplete
	}
	total := binary.BigEndian.Uint32(d.buf[0:4])
	frameEnd := lenFieldSize + int(total)

	mtype := binary.BigEndian.Uint32(d.buf[4:8])
	idlen := binary.BigEndian.Uint32(d.buf[8:12])
	idStart := 12
	idEnd := idStart + int(idlen)
	if idEnd > frameEnd {
		d.buf = d.buf[frameEnd:]
		return Frame{}, errors.New("protocol: idlen exceeds frame length")
	}
	id := string(d.buf[idStart:idEnd])
	body := append([]byte(nil), d.buf[idEnd:frameEnd]...)

	d.buf = d.buf[frameEnd:]
	return Frame{MType: mtype, ID: id, Body: body}, nil
}
