package terminal

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
)

// liveEventCommand is the reply code carried by live attendance packets.
// Packets with any other code (device acks, status replies) are not
// attendance data and are dropped whole.
const liveEventCommand = 500

// liveReadBufferSize is the maximum live packet size received per read.
const liveReadBufferSize = 1032

// decodeLiveFrame frames a raw live packet and returns the subject
// identifiers of every attendance record it carries. Returns nil for
// packets that are too short, carry a non-event command code, or have an
// empty payload.
//
// Stream (TCP) sessions prefix each packet with an 8-byte transport
// header (u16, u16, u32 length, little-endian) followed by an 8-byte
// reply header of four u16 fields; the remainder is payload. Datagram
// sessions carry the 8-byte reply header first with everything after it
// as payload.
func decodeLiveFrame(packet []byte, stream bool) []string {
	var header [4]uint16
	var payload []byte

	if stream {
		if len(packet) < 16 {
			return nil
		}
		declared := binary.LittleEndian.Uint32(packet[4:8])
		for i := range header {
			header[i] = binary.LittleEndian.Uint16(packet[8+2*i : 10+2*i])
		}
		payload = packet[16:]
		// The declared length covers the reply header plus payload.
		// Trim trailing bytes beyond it; short declarations are ignored
		// rather than trusted over the actual read size.
		if declared >= 8 && int(declared-8) < len(payload) {
			payload = payload[:declared-8]
		}
	} else {
		if len(packet) < 8 {
			return nil
		}
		for i := range header {
			header[i] = binary.LittleEndian.Uint16(packet[2*i : 2*i+2])
		}
		payload = packet[8:]
	}

	if header[0] != liveEventCommand || len(payload) == 0 {
		return nil
	}

	return parseEventRecords(payload)
}

// parseEventRecords walks fixed-size attendance records off the front of
// the payload. Terminals emit several record layouts; the shape is keyed
// entirely on the remaining payload length:
//
//	length  fields (little-endian)                      identifier
//	10      id(u16) status(u8) punch(u8) time(6)        2-byte numeric
//	12      id(u32) status(u8) punch(u8) time(6)        4-byte numeric
//	14      id(u16) status(u8) punch(u8) time(6) ext(4) 2-byte numeric
//	32      id(24)  status(u8) punch(u8) time(6)        24-byte text
//	36      id(24)  status(u8) punch(u8) time(6) ext(4) 24-byte text
//	37      id(24)  status(u8) punch(u8) time(6) ext(5) 24-byte text
//	>=52    id(24)  status(u8) punch(u8) time(6) ext(20) 24-byte text
//
// A remaining length matching no layout ends parsing and silently drops
// the rest of the buffer: malformed or unsynced frames must never crash
// the read loop. Worth revisiting against real device captures whether
// such frames are partial records or a firmware quirk.
func parseEventRecords(data []byte) []string {
	var ids []string

	for len(data) >= 10 {
		var id string
		var consumed int

		switch n := len(data); {
		case n == 10:
			id = strconv.FormatUint(uint64(binary.LittleEndian.Uint16(data[:2])), 10)
			consumed = 10
		case n == 12:
			id = strconv.FormatUint(uint64(binary.LittleEndian.Uint32(data[:4])), 10)
			consumed = 12
		case n == 14:
			id = strconv.FormatUint(uint64(binary.LittleEndian.Uint16(data[:2])), 10)
			consumed = 14
		case n == 32:
			id = decodeTextID(data[:24])
			consumed = 32
		case n == 36:
			id = decodeTextID(data[:24])
			consumed = 36
		case n == 37:
			id = decodeTextID(data[:24])
			consumed = 37
		case n >= 52:
			id = decodeTextID(data[:24])
			consumed = 52
		default:
			return ids
		}

		if id != "" {
			ids = append(ids, id)
		}
		data = data[consumed:]
	}

	return ids
}

// decodeTextID decodes a fixed-width identifier field: the value is the
// bytes before the first NUL, decoded leniently (invalid UTF-8 sequences
// dropped, never fatal).
func decodeTextID(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return strings.ToValidUTF8(string(field), "")
}
