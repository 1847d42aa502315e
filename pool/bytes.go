package pool

import "encoding/binary"

func beUint32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

func putBeUint32(b []byte, v uint32) {
	binary.BigEndian.PutUint32(b, v)
}
