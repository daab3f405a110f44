package dex

import (
	"fmt"
	"unicode/utf16"
)

// decodeULEB128 解码无符号 LEB128，返回值与消耗的字节数
func decodeULEB128(data []byte) (uint32, int, error) {
	var result uint32
	for i := 0; i < 5; i++ {
		if i >= len(data) {
			return 0, 0, fmt.Errorf("%w: uleb128 runs past buffer", ErrTruncatedTable)
		}
		b := data[i]
		result |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return result, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: uleb128 longer than 5 bytes", ErrTruncatedTable)
}

// decodeMUTF8 解码 Modified UTF-8 字符串。utf16Len 为头部声明的
// UTF-16 码元数——必须按声明长度截止而不是找空终止符，因为补充字符
// 的编码内部可能出现空字节。
func decodeMUTF8(data []byte, utf16Len uint32) (string, error) {
	units := make([]uint16, 0, utf16Len)
	pos := 0
	for uint32(len(units)) < utf16Len {
		if pos >= len(data) {
			return "", fmt.Errorf("%w: string data runs past buffer", ErrTruncatedTable)
		}
		b := data[pos]
		switch {
		case b&0x80 == 0:
			units = append(units, uint16(b))
			pos++
		case b&0xe0 == 0xc0:
			if pos+1 >= len(data) {
				return "", fmt.Errorf("%w: 2-byte sequence truncated", ErrTruncatedTable)
			}
			units = append(units, uint16(b&0x1f)<<6|uint16(data[pos+1]&0x3f))
			pos += 2
		case b&0xf0 == 0xe0:
			if pos+2 >= len(data) {
				return "", fmt.Errorf("%w: 3-byte sequence truncated", ErrTruncatedTable)
			}
			units = append(units, uint16(b&0x0f)<<12|uint16(data[pos+1]&0x3f)<<6|uint16(data[pos+2]&0x3f))
			pos += 3
		default:
			return "", fmt.Errorf("dex: invalid mutf-8 lead byte 0x%02x", b)
		}
	}
	// 代理对由 utf16.Decode 合并为补充字符
	return string(utf16.Decode(units)), nil
}
