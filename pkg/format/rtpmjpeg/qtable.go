package rtpmjpeg

var lumaQuantizer = [64]int{
	16, 11, 12, 14, 12, 10, 16, 14,
	13, 14, 18, 17, 16, 19, 24, 40,
	26, 24, 22, 22, 24, 49, 35, 37,
	29, 40, 58, 51, 61, 60, 57, 51,
	56, 55, 64, 72, 92, 78, 64, 68,
	87, 69, 55, 56, 80, 109, 81, 87,
	95, 98, 103, 104, 103, 62, 77, 113,
	121, 112, 100, 120, 92, 101, 103, 99,
}

var chromaQuantizer = [64]int{
	17, 18, 18, 24, 21, 24, 47, 26,
	26, 47, 99, 66, 56, 66, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
}

func clamp(v int, lo int, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MakeQuantizationTables returns the luma and chroma quantization tables
// of a quality factor, as described in RFC 2435 Appendix A.
func MakeQuantizationTables(q uint8) [2][]byte {
	factor := clamp(int(q), 1, 99)

	var scale int
	if q < 50 {
		scale = 5000 / factor
	} else {
		scale = 200 - factor*2
	}

	luma := make([]byte, 64)
	chroma := make([]byte, 64)

	for i := 0; i < 64; i++ {
		luma[i] = byte(clamp((lumaQuantizer[i]*scale+50)/100, 1, 255))
		chroma[i] = byte(clamp((chromaQuantizer[i]*scale+50)/100, 1, 255))
	}

	return [2][]byte{luma, chroma}
}
