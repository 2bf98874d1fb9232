package domain

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindCandidateKey(t *testing.T) {
	tests := []struct {
		name    string
		buf     []byte
		wantLen int
		wantAt  int
	}{
		{"All zeros", make([]byte, 4096), 0, -1},
		{"Constant byte", bytes.Repeat([]byte{0x41}, 4096), 0, -1},
		{"Too short", []byte{1, 2, 3}, 0, -1},
		{"Varied run at start", append([]byte{1, 2}, make([]byte, 40)...), 16, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := FindCandidateKey(tt.buf)
			if tt.wantLen == 0 {
				assert.Nil(t, key)
				return
			}
			require.Len(t, key, tt.wantLen)
			assert.Equal(t, tt.buf[tt.wantAt:tt.wantAt+tt.wantLen], key)
		})
	}
}

func TestFindCandidateKeySkipsToFirstQualifyingOffset(t *testing.T) {
	buf := make([]byte, 64)
	// zeros until offset 30, then a varied tail
	for i := 30; i < len(buf); i++ {
		buf[i] = byte(i)
	}

	key := FindCandidateKey(buf)
	require.Len(t, key, 16)

	// a run starting at 15 ends at 30 with one non-zero byte, which qualifies
	assert.Equal(t, buf[15:31], key)
}

func TestFindCandidateKeyConstantRuns(t *testing.T) {
	buf := bytes.Repeat([]byte{7}, 20)
	assert.Nil(t, FindCandidateKey(buf))

	buf = bytes.Repeat([]byte{7}, 24)
	buf[23] = 8
	key := FindCandidateKey(buf)
	require.NotNil(t, key)
	assert.Len(t, key, 16)
	assert.Equal(t, buf[8:24], key)
}

func TestFindCandidateKeyReturnsCopy(t *testing.T) {
	buf := []byte("0123456789abcdefXYZ")
	key := FindCandidateKey(buf)
	require.NotNil(t, key)

	buf[0] = 'Q'
	assert.Equal(t, byte('0'), key[0])
}

func TestCalculateShannonEntropy(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		minRange float64
		maxRange float64
	}{
		{"Empty", nil, 0, 0},
		{"All zeros - minimum entropy", make([]byte, 1000), 0.0, 0.1},
		{"Two symbols", bytes.Repeat([]byte{0, 1}, 500), 0.99, 1.01},
		{"Uniform bytes - maximum entropy", uniformBytes(4096), 7.99, 8.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entropy := CalculateShannonEntropy(tt.data)
			assert.GreaterOrEqual(t, entropy, tt.minRange)
			assert.LessOrEqual(t, entropy, tt.maxRange)
			t.Logf("Entropy: %.3f bits/byte", entropy)
		})
	}
}

func BenchmarkFindCandidateKey(b *testing.B) {
	buf := make([]byte, 1<<20)
	buf[len(buf)-1] = 1

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		FindCandidateKey(buf)
	}
}

func uniformBytes(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 256)
	}
	return data
}
