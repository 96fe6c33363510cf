// Packet Codec
//
// Encodes and decodes the fixed 13-byte header used by every message
// on the wire, plus whatever payload it describes. The codec itself
// holds no state; the caller is responsible for serialising writes on
// a given connection.
package proto

import (
	"encoding/binary"
	"errors"
	"io"
	"time"
)

// Type identifies the kind of a packet, client- or server-originated.
type Type uint8

const (
	LOGIN   Type = 0x10
	USERS   Type = 0x11
	INVITE  Type = 0x12
	REVOKE  Type = 0x13
	DECLINE Type = 0x14
	ACCEPT  Type = 0x15
	MOVE    Type = 0x16
	RESIGN  Type = 0x17

	ACK      Type = 0x20
	NACK     Type = 0x21
	INVITED  Type = 0x22
	REVOKED  Type = 0x23
	DECLINED Type = 0x24
	ACCEPTED Type = 0x25
	MOVED    Type = 0x26
	RESIGNED Type = 0x27
	ENDED    Type = 0x28
)

// Role names a side of an invitation or game. NoRole is used on the
// wire for packets that carry no role.
type Role uint8

const (
	NoRole Role = 0
	First  Role = 1
	Second Role = 2
)

// Opposite returns the other role. Opposite(NoRole) is NoRole.
func (r Role) Opposite() Role {
	switch r {
	case First:
		return Second
	case Second:
		return First
	default:
		return NoRole
	}
}

// HeaderLen is the fixed size in bytes of every packet header.
const HeaderLen = 13

// ErrDisconnected is returned when a read or write could not complete
// because the peer closed its side of the connection.
var ErrDisconnected = errors.New("proto: disconnected")

// Header is the 13-byte, big-endian wire header that precedes every
// packet payload.
type Header struct {
	Type Type
	ID   uint8
	Role Role
	Size uint16

	TimestampSec  uint32
	TimestampNsec uint32
}

// Packet is a decoded header plus its raw payload bytes.
type Packet struct {
	Header
	Payload []byte
}

// Encode writes HDR followed by PAYLOAD to W, filling in the
// timestamp with the current wall clock. PAYLOAD may be nil iff
// hdr.Size == 0.
func Encode(w io.Writer, hdr Header, payload []byte) error {
	hdr.Size = uint16(len(payload))

	now := time.Now()
	hdr.TimestampSec = uint32(now.Unix())
	hdr.TimestampNsec = uint32(now.Nanosecond())

	var buf [HeaderLen]byte
	buf[0] = byte(hdr.Type)
	buf[1] = hdr.ID
	buf[2] = byte(hdr.Role)
	binary.BigEndian.PutUint16(buf[3:5], hdr.Size)
	binary.BigEndian.PutUint32(buf[5:9], hdr.TimestampSec)
	binary.BigEndian.PutUint32(buf[9:13], hdr.TimestampNsec)

	if _, err := w.Write(buf[:]); err != nil {
		return ErrDisconnected
	}
	if hdr.Size > 0 {
		if _, err := w.Write(payload); err != nil {
			return ErrDisconnected
		}
	}
	return nil
}

// Decode reads one packet from R. A short read of the header or
// payload is reported as ErrDisconnected, matching how the service
// loop treats EOF on a live connection. The returned payload carries
// an extra trailing NUL for the convenience of callers that treat it
// as a C-style string.
func Decode(r io.Reader) (Packet, error) {
	var buf [HeaderLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Packet{}, ErrDisconnected
	}

	hdr := Header{
		Type:          Type(buf[0]),
		ID:            buf[1],
		Role:          Role(buf[2]),
		Size:          binary.BigEndian.Uint16(buf[3:5]),
		TimestampSec:  binary.BigEndian.Uint32(buf[5:9]),
		TimestampNsec: binary.BigEndian.Uint32(buf[9:13]),
	}

	var payload []byte
	if hdr.Size > 0 {
		body := make([]byte, int(hdr.Size)+1) // +1 for the NUL terminator
		if _, err := io.ReadFull(r, body[:hdr.Size]); err != nil {
			return Packet{}, ErrDisconnected
		}
		payload = body
	}

	return Packet{Header: hdr, Payload: payload}, nil
}

// Text strips the convenience NUL terminator Decode appends and
// returns the payload as a string.
func (p Packet) Text() string {
	if len(p.Payload) == 0 {
		return ""
	}
	if p.Payload[len(p.Payload)-1] == 0 {
		return string(p.Payload[:len(p.Payload)-1])
	}
	return string(p.Payload)
}
