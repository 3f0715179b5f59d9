package httpio

import (
	"encoding/binary"
	"math/bits"
	"runtime"
	"unsafe"
)

const (
	wordSize        = int(unsafe.Sizeof(uint(0)))
	logWordSize     = 2 + wordSize/8
	// arm64 and riscv64 tolerate unaligned word loads as well; big endian
	// ports never take the word path, see littleEndian.
	unalignedAccess = runtime.GOARCH == "amd64" || runtime.GOARCH == "386" ||
		runtime.GOARCH == "ppc64" || runtime.GOARCH == "ppc64le" ||
		runtime.GOARCH == "arm64" || runtime.GOARCH == "riscv64"
	littleEndian = runtime.GOARCH != "ppc64" && runtime.GOARCH != "s390x" &&
		runtime.GOARCH != "mips" && runtime.GOARCH != "mips64"
)

// maskKey packs the wire mask so byte i of a payload is XORed with byte
// i%4 of m.
func maskKey(m [4]byte) uint32 { return binary.LittleEndian.Uint32(m[:]) }

// xorMask applies the masking key to b in place, word at a time where the
// platform allows it.
//
// Based on code adapted from here:
// https://raw.githubusercontent.com/gorilla/websocket/b2c246b2ec6f86b53889c79022fec8dabe0a20bb/mask.go
// Licensed under BSD-2-Clause license
func xorMask(b []byte, key uint32) {
	pos := 0
	if littleEndian && len(b) >= 3*wordSize {
		if !unalignedAccess {
			if n := int(uintptr(unsafe.Pointer(unsafe.SliceData(b))) % uintptr(wordSize)); n != 0 {
				n = wordSize - n
				head := b[:n]
				b = b[n:]
				for i := range head {
					head[i] ^= byte(key >> (((pos & 3) << 3) & 31))
					pos++
				}
			}
		}

		keyw := bits.RotateLeft(uint(uint64(key)<<32|uint64(key)), (wordSize-(pos&3))<<3)
		ws := unsafe.Slice((*uint)(unsafe.Pointer(unsafe.SliceData(b))), len(b)>>logWordSize)
		b = b[len(ws)<<logWordSize:]

		const lanes = 4
		if len(ws) >= lanes {
			vs := unsafe.Slice((*[lanes]uint)(unsafe.Pointer(unsafe.SliceData(ws))), len(ws)/lanes)
			for i := range vs {
				vs[i][0] ^= keyw
				vs[i][1] ^= keyw
				vs[i][2] ^= keyw
				vs[i][3] ^= keyw
			}
			ws = ws[len(vs)*lanes:]
		}
		for i := range ws {
			ws[i] ^= keyw
		}
	}

	for i := range b {
		b[i] ^= byte(key >> (((pos & 3) << 3) & 31))
		pos++
	}
}
