package ota

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Control tokens recognized on the data channel. Tokens carry no framing of
// their own: each one must arrive as a single transport-level write, and is
// matched by exact bytes and length.
const (
	TokenOpen  = "OPEN"
	TokenDone  = "DONE"
	TokenAbort = "ABORT"
)

// SizeTokenLen is the byte length of the declared-size token, a 32-bit
// little-endian integer sent immediately after OPEN. It is deliberately the
// same length as OPEN and DONE; position in the sequence disambiguates.
const SizeTokenLen = 4

// DefaultMaxPacketSize is the per-write payload limit assumed when the
// transport has not negotiated a larger one.
const DefaultMaxPacketSize = 512

// progressPrefix starts every progress frame on the notification channel.
const progressPrefix = "PROGRESS:"

// EncodeSize encodes a declared image size as the 4-byte size token.
func EncodeSize(size uint32) []byte {
	buf := make([]byte, SizeTokenLen)
	binary.LittleEndian.PutUint32(buf, size)
	return buf
}

// ParseSize decodes a size token. ok is false if p is not exactly 4 bytes.
func ParseSize(p []byte) (size uint32, ok bool) {
	if len(p) != SizeTokenLen {
		return 0, false
	}
	return binary.LittleEndian.Uint32(p), true
}

// EncodeProgress builds a progress frame for the notification channel,
// e.g. "PROGRESS:512/1024".
func EncodeProgress(received, total uint32) []byte {
	return []byte(fmt.Sprintf("%s%d/%d", progressPrefix, received, total))
}

// ParseProgress decodes a notification frame as a progress report.
// ok is false when the frame is a plain status message instead.
func ParseProgress(p []byte) (received, total uint32, ok bool) {
	s := string(p)
	if !strings.HasPrefix(s, progressPrefix) {
		return 0, 0, false
	}
	counts := strings.SplitN(s[len(progressPrefix):], "/", 2)
	if len(counts) != 2 {
		return 0, 0, false
	}
	r, err := strconv.ParseUint(counts[0], 10, 32)
	if err != nil {
		return 0, 0, false
	}
	t, err := strconv.ParseUint(counts[1], 10, 32)
	if err != nil {
		return 0, 0, false
	}
	return uint32(r), uint32(t), true
}

// Percentage computes the integer progress percentage reported to hooks and
// clients. It is 0 while the total is unknown and never exceeds 100, even
// on an overshooting final chunk.
func Percentage(received, total uint32) uint8 {
	if total == 0 {
		return 0
	}
	pct := uint64(received) * 100 / uint64(total)
	if pct > 100 {
		return 100
	}
	return uint8(pct)
}
