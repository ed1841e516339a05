package conv

const hexd = "0123456789ABCDEF"

// AddrHex formats a 7-bit bus address as "0xNN".
func AddrHex(addr uint16) string {
	var b [4]byte
	b[0], b[1] = '0', 'x'
	b[2] = hexd[(addr>>4)&0xF]
	b[3] = hexd[addr&0xF]
	return string(b[:])
}

func byteHex(buf []byte, v byte) []byte {
	return append(buf, hexd[v>>4], hexd[v&0xF])
}

// BytesHex renders p as space-separated uppercase hex pairs.
func BytesHex(p []byte) string {
	if len(p) == 0 {
		return ""
	}
	buf := make([]byte, 0, len(p)*3)
	for i, v := range p {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = byteHex(buf, v)
	}
	return string(buf)
}
