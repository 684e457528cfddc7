package h264

const (
	nalTypeSlice         = 1
	nalTypeIDR           = 5
	nalTypeSEI           = 6
	nalTypeSPS           = 7
	nalTypePPS           = 8
	nalTypeAUD           = 9
	nalTypeEndOfSequence = 10
	nalTypeEndOfStream   = 11
)

var startCode = []byte{0, 0, 0, 1}

func nalType(nalu []byte) byte {
	return nalu[0] & 0x1f
}

func isVCL(t byte) bool {
	return t >= nalTypeSlice && t <= nalTypeIDR
}

// startsPicture reports whether a slice NAL unit is the first slice of a
// picture: first_mb_in_slice is ue(v) coded, so zero is a single '1' bit.
func startsPicture(nalu []byte) bool {
	return len(nalu) > 1 && nalu[1]&0x80 != 0
}

// splitAnnexB returns the NAL units of an Annex-B byte stream, without
// start codes.
func splitAnnexB(data []byte) [][]byte {
	type position struct {
		start     int
		dataStart int
	}

	n := len(data)
	var positions []position
	for i := 0; i < n-2; {
		if data[i] == 0 && data[i+1] == 0 {
			if i < n-3 && data[i+2] == 0 && data[i+3] == 1 {
				positions = append(positions, position{start: i, dataStart: i + 4})
				i += 4
				continue
			}
			if data[i+2] == 1 {
				positions = append(positions, position{start: i, dataStart: i + 3})
				i += 3
				continue
			}
		}
		i++
	}

	var result [][]byte
	for idx, pos := range positions {
		end := n
		if idx+1 < len(positions) {
			end = positions[idx+1].start
		}
		// trailing_zero_8bits
		for end > pos.dataStart && data[end-1] == 0 {
			end--
		}
		if pos.dataStart >= end {
			continue
		}
		result = append(result, data[pos.dataStart:end])
	}
	return result
}
