package domain

// XORBytes applies key across data as a repeating byte-wise XOR, in place.
// Applying it twice with the same key restores the input. It is a recovery
// heuristic for naive XOR lockers, not a decryption primitive.
func XORBytes(data, key []byte) {
	if len(key) == 0 {
		return
	}
	for i := range data {
		data[i] ^= key[i%len(key)]
	}
}
