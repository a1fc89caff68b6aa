// Package conv formats integers into caller-provided buffers without fmt or
// strconv, so it is safe on MCU hot paths.
package conv

import "dhtlink/x/mathx"

// Itoa writes base-10 n into the tail of buf and returns the used slice.
// buf should be at least 20 bytes for the full int64 range.
func Itoa(buf []byte, n int64) []byte {
	i := len(buf)
	if i == 0 {
		return buf
	}
	u := uint64(n)
	if n < 0 {
		u = uint64(-n)
	}
	i = putDigits(buf, i, u)
	if n < 0 && i > 0 {
		i--
		buf[i] = '-'
	}
	return buf[i:]
}

// Utoa is Itoa for unsigned values.
func Utoa(buf []byte, n uint64) []byte {
	if len(buf) == 0 {
		return buf
	}
	return buf[putDigits(buf, len(buf), n):]
}

// AppendDeci appends a tenths value as a decimal with one fractional digit:
// 245 -> "24.5", -30 -> "-3.0", 7 -> "0.7".
func AppendDeci(dst []byte, deci int32) []byte {
	if deci < 0 {
		dst = append(dst, '-')
	}
	v := mathx.Abs(int64(deci))
	var buf [12]byte
	dst = append(dst, Utoa(buf[:], uint64(v/10))...)
	return append(dst, '.', byte('0'+v%10))
}

func putDigits(buf []byte, i int, u uint64) int {
	if u == 0 {
		i--
		buf[i] = '0'
		return i
	}
	for u > 0 && i > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	return i
}
