package kernel

import "github.com/holiman/uint256"

// ParseInt256 decodes a big-endian two's-complement int256 from a
// 32-byte slice, returning the magnitude as a uint256 plus a sign
// flag, since the engine's snapshots store amounts as unsigned
// magnitudes with sign tracked alongside (see types.SwapUpdate).
// Total: malformed-length input saturates to (0, false, FaultMalformed)
// rather than panicking — a truncated log must never crash ingress.
func ParseInt256(data []byte) (magnitude *uint256.Int, negative bool, fault Fault) {
	if len(data) != 32 {
		return uint256.NewInt(0), false, FaultMalformed
	}

	negative = data[0]&0x80 != 0
	v := new(uint256.Int).SetBytes(data)
	if !negative {
		return v, false, FaultNone
	}

	// two's complement: magnitude = (~v) + 1, computed mod 2^256.
	notV := new(uint256.Int).Not(v)
	mag := new(uint256.Int).AddUint64(notV, 1)
	return mag, true, FaultNone
}

// ParseInt24 decodes a big-endian two's-complement int24 from its
// low 3 bytes (as the on-chain Swap event packs tick into the last 3
// bytes of a 32-byte word) and sign-extends into an int32. Total:
// any slice shorter than 3 bytes saturates to (0, FaultMalformed).
func ParseInt24(data []byte) (int32, Fault) {
	if len(data) < 3 {
		return 0, FaultMalformed
	}
	b := data[len(data)-3:]
	value := int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
	if value&0x800000 != 0 {
		value |= ^0xFFFFFF // sign-extend the top bits
	}
	return value, FaultNone
}
