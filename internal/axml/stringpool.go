package axml

import (
	"fmt"
	"unicode/utf16"
)

const flagUTF8 = 0x00000100

// stringPool 已解码的字符串池，按零基索引寻址
type stringPool struct {
	strings []string
}

// get 解析字符串池索引。0xFFFFFFFF 表示"无值"。
func (p *stringPool) get(index uint32) (string, error) {
	if index == 0xFFFFFFFF {
		return "", nil
	}
	if int(index) >= len(p.strings) {
		return "", fmt.Errorf("%w: index %d, pool size %d", ErrStringPoolIndex, index, len(p.strings))
	}
	return p.strings[index], nil
}

// parseStringPool 解析 string-pool chunk。chunk 为完整的 chunk 字节
// （含 8 字节 chunk 头），字符串编码为 UTF-16LE 或 UTF-8（由 flags 决定）。
func parseStringPool(chunk []byte) (*stringPool, error) {
	c := newCursor(chunk)
	if err := c.seek(8); err != nil {
		return nil, err
	}

	stringCount, err := c.uint32()
	if err != nil {
		return nil, err
	}
	if _, err := c.uint32(); err != nil { // styleCount
		return nil, err
	}
	flags, err := c.uint32()
	if err != nil {
		return nil, err
	}
	stringsStart, err := c.uint32()
	if err != nil {
		return nil, err
	}
	if _, err := c.uint32(); err != nil { // stylesStart
		return nil, err
	}

	offsets := make([]uint32, stringCount)
	for i := range offsets {
		offsets[i], err = c.uint32()
		if err != nil {
			return nil, err
		}
	}

	utf8 := flags&flagUTF8 != 0
	pool := &stringPool{strings: make([]string, 0, stringCount)}
	for i, offset := range offsets {
		start := int(stringsStart) + int(offset)
		if start < 0 || start >= len(chunk) {
			return nil, fmt.Errorf("%w: string %d offset %d past pool end", ErrInvalidChunk, i, start)
		}
		sc := newCursor(chunk)
		if err := sc.seek(start); err != nil {
			return nil, err
		}

		var decoded string
		if utf8 {
			decoded, err = readUTF8String(&sc)
		} else {
			decoded, err = readUTF16String(&sc)
		}
		if err != nil {
			return nil, fmt.Errorf("string %d: %w", i, err)
		}
		pool.strings = append(pool.strings, decoded)
	}

	return pool, nil
}

// readUTF16String 读取 UTF-16LE 字符串：u16 长度前缀（最高位置位时
// 扩展为两字 31 位长度），后跟 length 个码元。
func readUTF16String(c *cursor) (string, error) {
	length, err := c.uint16()
	if err != nil {
		return "", err
	}
	n := uint32(length)
	if length&0x8000 != 0 {
		low, err := c.uint16()
		if err != nil {
			return "", err
		}
		n = (uint32(length&0x7fff) << 16) | uint32(low)
	}

	raw, err := c.bytes(int(n) * 2)
	if err != nil {
		return "", err
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
	}
	return string(utf16.Decode(units)), nil
}

// readUTF8String 读取 UTF-8 字符串：u8 字符数 + u8 字节数
//（各自最高位置位时扩展为两字节），后跟 byteLen 个字节。
func readUTF8String(c *cursor) (string, error) {
	if err := skipUTF8Length(c); err != nil { // 字符数，仅用于跳过
		return "", err
	}
	byteLen, err := readUTF8Length(c)
	if err != nil {
		return "", err
	}
	raw, err := c.bytes(int(byteLen))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func readUTF8Length(c *cursor) (uint32, error) {
	first, err := c.uint8()
	if err != nil {
		return 0, err
	}
	if first&0x80 == 0 {
		return uint32(first), nil
	}
	second, err := c.uint8()
	if err != nil {
		return 0, err
	}
	return (uint32(first&0x7f) << 8) | uint32(second), nil
}

func skipUTF8Length(c *cursor) error {
	_, err := readUTF8Length(c)
	return err
}
