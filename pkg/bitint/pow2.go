// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-two helpers used to size FFT
workspaces and validate capture block sizes.

All operations are O(1), allocation free and safe to call from the
capture or compute hot paths.

	fftSize := bitint.NextPowerOfTwo(blockFrames) // 1000 -> 1024
	ok := bitint.IsPowerOfTwo(fftSize)

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers of two are preserved: for 8, bits.Len(7) is 3 and 1<<3 is 8. Without
the subtraction bits.Len(8) is 4 and the result would double to 16.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the next power of 2 >= size. Non-positive sizes
// return 1.
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two. A power of two
// has exactly one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// PrevPowerOfTwo returns the largest power of 2 <= size, or 0 for
// non-positive sizes.
func PrevPowerOfTwo(size int) int {
	if size <= 0 {
		return 0
	}
	return 1 << (bits.Len(uint(size)) - 1)
}
