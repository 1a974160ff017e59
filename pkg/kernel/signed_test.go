package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInt24_SignExtension(t *testing.T) {
	// low three bytes FFFFFE, high 29 bytes zero -> tick = -2.
	data := make([]byte, 32)
	data[29], data[30], data[31] = 0xFF, 0xFF, 0xFE
	tick, fault := ParseInt24(data[29:32])
	require.Equal(t, FaultNone, fault)
	assert.Equal(t, int32(-2), tick)
}

func TestParseInt24_Positive(t *testing.T) {
	tick, fault := ParseInt24([]byte{0x00, 0x00, 0x05})
	require.Equal(t, FaultNone, fault)
	assert.Equal(t, int32(5), tick)
}

func TestParseInt24_Malformed(t *testing.T) {
	_, fault := ParseInt24([]byte{0x01, 0x02})
	assert.Equal(t, FaultMalformed, fault)
}

func TestParseInt256_Positive(t *testing.T) {
	data := make([]byte, 32)
	data[31] = 42
	mag, neg, fault := ParseInt256(data)
	require.Equal(t, FaultNone, fault)
	assert.False(t, neg)
	assert.Equal(t, "42", mag.String())
}

func TestParseInt256_Negative(t *testing.T) {
	// -1 in two's complement is all 0xFF bytes.
	data := make([]byte, 32)
	for i := range data {
		data[i] = 0xFF
	}
	mag, neg, fault := ParseInt256(data)
	require.Equal(t, FaultNone, fault)
	assert.True(t, neg)
	assert.Equal(t, "1", mag.String())
}

func TestParseInt256_SaturatesOnMalformedLength(t *testing.T) {
	mag, neg, fault := ParseInt256([]byte{0x01, 0x02, 0x03})
	assert.Equal(t, FaultMalformed, fault)
	assert.False(t, neg)
	assert.Equal(t, "0", mag.String())
}
