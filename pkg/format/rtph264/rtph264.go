// Package rtph264 contains a RTP/H264 depayloader.
package rtph264

import (
	"encoding/binary"
)

const (
	encodingName = "H264"

	// length prefix of every NALU in an access unit.
	prefixLength = 4
)

func prefixed(nalu []byte) []byte {
	ret := make([]byte, prefixLength+len(nalu))
	binary.BigEndian.PutUint32(ret, uint32(len(nalu)))
	copy(ret[prefixLength:], nalu)
	return ret
}

func isAllZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}
