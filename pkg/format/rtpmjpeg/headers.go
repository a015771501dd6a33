package rtpmjpeg

import (
	"fmt"
)

const (
	mainHeaderSize         = 8
	restartHeaderSize      = 4
	quantizationHeaderSize = 4

	// size of a table with 8-bit precision.
	quantizationTableSize = 64
)

// mainHeader is present at the start of every packet.
type mainHeader struct {
	fragmentOffset uint32
	typ            uint8
	q              uint8
	width          int
	height         int
}

// types 64-127 are followed by a restart marker header.
func (h mainHeader) hasRestartHeader() bool {
	return h.typ >= 64
}

func (h mainHeader) imageType() uint8 {
	return h.typ & 0x3F
}

func parseMainHeader(buf []byte) (mainHeader, []byte, error) {
	if len(buf) < mainHeaderSize {
		return mainHeader{}, nil, fmt.Errorf("buffer is too short")
	}

	h := mainHeader{
		fragmentOffset: uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]),
		typ:            buf[4],
		q:              buf[5],
		width:          int(buf[6]) * 8,
		height:         int(buf[7]) * 8,
	}

	if h.typ > 127 {
		return mainHeader{}, nil, fmt.Errorf("type %d is not supported", h.typ)
	}

	return h, buf[mainHeaderSize:], nil
}

// parseRestartHeader returns the restart interval. F, L and count are ignored.
func parseRestartHeader(buf []byte) (uint16, []byte, error) {
	if len(buf) < restartHeaderSize {
		return 0, nil, fmt.Errorf("buffer is too short")
	}

	return uint16(buf[0])<<8 | uint16(buf[1]), buf[restartHeaderSize:], nil
}

// parseQuantizationHeader returns the tables carried in-band.
func parseQuantizationHeader(buf []byte) ([][]byte, []byte, error) {
	if len(buf) < quantizationHeaderSize {
		return nil, nil, fmt.Errorf("buffer is too short")
	}

	if precision := buf[1]; precision != 0 {
		return nil, nil, fmt.Errorf("precision %d is not supported", precision)
	}

	length := int(buf[2])<<8 | int(buf[3])
	if length == 0 || length%quantizationTableSize != 0 {
		return nil, nil, fmt.Errorf("table length %d is not supported", length)
	}

	buf = buf[quantizationHeaderSize:]
	if len(buf) < length {
		return nil, nil, fmt.Errorf("buffer is too short")
	}

	tables := make([][]byte, 0, length/quantizationTableSize)
	for off := 0; off < length; off += quantizationTableSize {
		tables = append(tables, buf[off:off+quantizationTableSize])
	}

	return tables, buf[length:], nil
}
