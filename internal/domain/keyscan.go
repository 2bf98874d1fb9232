package domain

import "math"

// CandidateKeySizes are the symmetric key lengths tried in memory, in order
var CandidateKeySizes = []int{16, 24, 32}

// FindCandidateKey returns the first byte run of a candidate key size that is
// neither all-zero nor a single repeated byte. Sizes are tried in order and,
// within a size, offsets from the start of buf.
//
// This is a best-effort memory heuristic: almost any live buffer qualifies,
// and a hit says nothing about whether the bytes really are a key.
func FindCandidateKey(buf []byte) []byte {
	for _, size := range CandidateKeySizes {
		for i := 0; i+size <= len(buf); i++ {
			if qualifies(buf[i : i+size]) {
				key := make([]byte, size)
				copy(key, buf[i:i+size])
				return key
			}
		}
	}
	return nil
}

func qualifies(run []byte) bool {
	var or byte
	same := true
	for _, b := range run {
		or |= b
		if b != run[0] {
			same = false
		}
	}
	return or != 0 && !same
}

// CalculateShannonEntropy calculates Shannon entropy for byte data.
// Entropy near 8.0 indicates encrypted/compressed data.
func CalculateShannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0.0
	}

	frequencies := make([]int, 256)
	for _, b := range data {
		frequencies[b]++
	}

	entropy := 0.0
	dataLen := float64(len(data))
	for _, freq := range frequencies {
		if freq > 0 {
			probability := float64(freq) / dataLen
			entropy -= probability * math.Log2(probability)
		}
	}

	return entropy
}
