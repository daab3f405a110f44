package axml

import (
	"encoding/binary"
	"fmt"
)

// cursor 显式解析游标（位置 + 剩余长度），所有多字节读取均为小端。
// 越界检查集中在这里，chunk 解析函数之间以值传递。
type cursor struct {
	data []byte
	pos  int
}

func newCursor(data []byte) cursor {
	return cursor{data: data}
}

func (c *cursor) remaining() int {
	return len(c.data) - c.pos
}

func (c *cursor) need(n int) error {
	if c.remaining() < n {
		return fmt.Errorf("%w: need %d bytes at offset %d, %d remaining",
			ErrInvalidChunk, n, c.pos, c.remaining())
	}
	return nil
}

func (c *cursor) uint8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.data[c.pos]
	c.pos++
	return v, nil
}

func (c *cursor) uint16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.data[c.pos:])
	c.pos += 2
	return v, nil
}

func (c *cursor) uint32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.data[c.pos:])
	c.pos += 4
	return v, nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	v := c.data[c.pos : c.pos+n]
	c.pos += n
	return v, nil
}

// seek 将游标移动到绝对偏移
func (c *cursor) seek(pos int) error {
	if pos < 0 || pos > len(c.data) {
		return fmt.Errorf("%w: seek to %d of %d", ErrInvalidChunk, pos, len(c.data))
	}
	c.pos = pos
	return nil
}
