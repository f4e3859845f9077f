package rtucrc

import "sync"

// Modbus CRC-16 parameters: reversed polynomial 0xA001, seed 0xFFFF,
// transmitted low byte first.
const (
	crc16Poly = 0xA001
	crc16Seed = 0xFFFF
)

var (
	crc16Once  sync.Once
	crc16Table [256]uint16
)

// initCRC16Table builds the 256-entry lookup table from the bitwise
// polynomial division, once per process. The table is never written again
// and is therefore safe for concurrent readers.
func initCRC16Table() {
	for i := 0; i < 256; i++ {
		crc := uint16(i)
		for j := 0; j < 8; j++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ crc16Poly
			} else {
				crc >>= 1
			}
		}
		crc16Table[i] = crc
	}
}

// Table returns a copy of the CRC-16 lookup table.
func Table() [256]uint16 {
	crc16Once.Do(initCRC16Table)
	return crc16Table
}

// ChecksumTable calculates the Modbus CRC-16 of data using the lookup table.
// All len(data) bytes are treated as payload; nothing is interpreted as an
// already-appended checksum. The returned value is in transmission order:
// the high byte of the result is the byte that goes on the wire first.
// An empty buffer yields the seed 0xFFFF.
func ChecksumTable(data []byte) uint16 {
	crc16Once.Do(initCRC16Table)

	crc := uint16(crc16Seed)
	for _, b := range data {
		crc = (crc >> 8) ^ crc16Table[byte(crc)^b]
	}
	return (crc << 8) | (crc >> 8)
}

// Checksum calculates the Modbus CRC-16 of data by direct bitwise polynomial
// division, without the lookup table. It returns bit-identical results to
// ChecksumTable for every input and doubles as the generator the table is
// validated against.
func Checksum(data []byte) uint16 {
	crc := uint16(crc16Seed)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ crc16Poly
			} else {
				crc >>= 1
			}
		}
	}
	return (crc << 8) | (crc >> 8)
}

// AppendChecksum returns frame with its Modbus CRC-16 appended, low byte
// first as Modbus RTU transmits it.
func AppendChecksum(frame []byte) []byte {
	crc := ChecksumTable(frame)
	return append(frame, byte(crc>>8), byte(crc))
}

// CheckFrame reports whether the last two bytes of frame are the correct
// Modbus CRC-16 of the bytes before them. It runs the table checksum over
// the whole frame, checksum included: a correctly framed message reduces to
// the zero residue. Frames too short to carry a checksum are rejected.
func CheckFrame(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	return ChecksumTable(frame) == 0
}
