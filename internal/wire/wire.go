package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version   byte = 1
	kindEntry byte = 1

	headerLen = 4 + 1 + 1 + 8 + 8 + 8 + 4
)

var (
	ErrCorrupt = errors.New("cacheback: corrupt entry")
	magic4     = [...]byte{'C', 'B', 'C', 'K'}
)

// Entry is a stored value together with the metadata needed to decide staleness.
type Entry struct {
	Gen       uint64
	FetchedAt time.Time
	Lifetime  time.Duration
	Payload   []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode frames an entry:
//
//	magic(4) | ver(1) | kind(1) | gen(u64 be) | fetchedAt(unix ns, i64 be) | lifetime(ns, i64 be) | vlen(u32 be) | payload(vlen)
func Encode(e Entry) []byte {
	var buf bytes.Buffer
	buf.Grow(headerLen + len(e.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], e.Gen)
	buf.Write(u8[:])

	binary.BigEndian.PutUint64(u8[:], uint64(e.FetchedAt.UnixNano()))
	buf.Write(u8[:])

	binary.BigEndian.PutUint64(u8[:], uint64(e.Lifetime))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])

	buf.Write(e.Payload)
	return buf.Bytes()
}

// Decode parses an entry produced by Encode. Framing is strict: unknown
// versions, negative lifetimes and trailing bytes are rejected.
// The returned payload aliases b.
func Decode(b []byte) (Entry, error) {
	if len(b) < headerLen || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return Entry{}, ErrCorrupt
	}
	off := 6

	gen := binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	fetched := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	lifetime := time.Duration(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	if lifetime < 0 {
		return Entry{}, ErrCorrupt
	}

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return Entry{}, ErrCorrupt
	}

	return Entry{
		Gen:       gen,
		FetchedAt: time.Unix(0, fetched),
		Lifetime:  lifetime,
		Payload:   b[off : off+vlen],
	}, nil
}
