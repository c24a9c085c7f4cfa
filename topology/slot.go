package topology

// NumSlots is the number of hash slots in a cluster.
const NumSlots = 16384

// crc16tab is the CRC16-CCITT (XModem) table used by the cluster key hash.
var crc16tab [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		crc16tab[i] = crc
	}
}

// CRC16 computes the XModem CRC16 of b.
func CRC16(b []byte) uint16 {
	var crc uint16
	for _, c := range b {
		crc = crc<<8 ^ crc16tab[byte(crc>>8)^c]
	}
	return crc
}

// HashSlot returns the cluster slot for key. When the key contains a
// non-empty "{...}" section only that section is hashed, so related keys
// can be forced into the same slot.
func HashSlot(key []byte) uint16 {
	return CRC16(hashTag(key)) % NumSlots
}

// HashSlotString is HashSlot for string keys.
func HashSlotString(key string) uint16 {
	return HashSlot([]byte(key))
}

func hashTag(key []byte) []byte {
	for i, c := range key {
		if c != '{' {
			continue
		}
		for j := i + 1; j < len(key); j++ {
			if key[j] == '}' {
				if j == i+1 {
					return key
				}
				return key[i+1 : j]
			}
		}
		return key
	}
	return key
}
