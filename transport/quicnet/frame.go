package quicnet

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/s2"
	"github.com/multiformats/go-varint"
)

// Wire layout.
//
// Reliable packets travel on one QUIC stream per (peer, channel, direction).
// The stream opens with a single channel byte, then carries frames:
//
//	[1B flags][uvarint length][payload]
//
// Unreliable and unsequenced packets travel as QUIC datagrams:
//
//	[1B channel][1B flags][uvarint seq, sequenced only][payload]
const (
	flagCompressed  byte = 1 << 0
	flagUnsequenced byte = 1 << 1
	flagSequenced   byte = 1 << 2

	// maxMessageSize bounds a single decoded payload.
	maxMessageSize = 1 << 20
	// maxDatagramFrame keeps datagrams under the smallest QUIC datagram
	// payload; larger unreliable packets ride the reliable stream instead.
	maxDatagramFrame = 1150
)

var (
	errFrameTooLarge = errors.New("quicnet: frame exceeds maximum message size")
	errShortFrame    = errors.New("quicnet: short datagram")
)

// encodePayload compresses data when asked and when that shrinks it.
func encodePayload(data []byte, compress bool) (byte, []byte) {
	if !compress || len(data) == 0 {
		return 0, data
	}
	enc := s2.Encode(nil, data)
	if len(enc) >= len(data) {
		return 0, data
	}
	return flagCompressed, enc
}

func decodePayload(flags byte, body []byte) ([]byte, error) {
	if flags&flagCompressed == 0 {
		return body, nil
	}
	n, err := s2.DecodedLen(body)
	if err != nil {
		return nil, fmt.Errorf("quicnet: decode length: %w", err)
	}
	if n > maxMessageSize {
		return nil, errFrameTooLarge
	}
	out, err := s2.Decode(nil, body)
	if err != nil {
		return nil, fmt.Errorf("quicnet: decompress: %w", err)
	}
	return out, nil
}

func appendUvarint(dst []byte, x uint64) []byte {
	var tmp [varint.MaxLenUvarint63]byte
	n := varint.PutUvarint(tmp[:], x)
	return append(dst, tmp[:n]...)
}

func appendStreamFrame(dst []byte, flags byte, body []byte) []byte {
	dst = append(dst, flags)
	dst = appendUvarint(dst, uint64(len(body)))
	return append(dst, body...)
}

func readStreamFrame(r *bufio.Reader) (byte, []byte, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	n, err := varint.ReadUvarint(r)
	if err != nil {
		return 0, nil, err
	}
	if n > maxMessageSize {
		return 0, nil, errFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return flags, body, nil
}

func appendDatagram(dst []byte, channel uint8, flags byte, seq uint32, body []byte) []byte {
	dst = append(dst, channel, flags)
	if flags&flagSequenced != 0 {
		dst = appendUvarint(dst, uint64(seq))
	}
	return append(dst, body...)
}

func parseDatagram(b []byte) (channel uint8, flags byte, seq uint32, body []byte, err error) {
	if len(b) < 2 {
		return 0, 0, 0, nil, errShortFrame
	}
	channel, flags, rest := b[0], b[1], b[2:]
	if flags&flagSequenced != 0 {
		v, n, verr := varint.FromUvarint(rest)
		if verr != nil {
			return 0, 0, 0, nil, fmt.Errorf("quicnet: datagram sequence: %w", verr)
		}
		seq, rest = uint32(v), rest[n:]
	}
	return channel, flags, seq, rest, nil
}

// newer reports whether sequence a comes after b, allowing wrap-around.
func newer(a, b uint32) bool {
	return int32(a-b) > 0
}
