package container

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// 容器层错误类型（见 Archive.ReadEntry / Open）
var (
	ErrNotAnArchive           = errors.New("container: end of central directory signature not found")
	ErrTruncated              = errors.New("container: record extends past end of buffer")
	ErrUnsupportedCompression = errors.New("container: unsupported compression method")
	ErrEntryNotFound          = errors.New("container: entry not found")
)

// ZIP 固定签名
const (
	eocdSignature        = 0x06054b50
	centralDirSignature  = 0x02014b50
	localHeaderSignature = 0x04034b50

	eocdFixedSize        = 22
	centralDirFixedSize  = 46
	localHeaderFixedSize = 30

	methodStored   = 0
	methodDeflated = 8
)

// Entry 归档中的一个条目。Offset 指向其本地文件头，数据按需解压。
type Entry struct {
	Name             string `json:"name"`
	CompressedSize   uint32 `json:"compressed_size"`
	UncompressedSize uint32 `json:"uncompressed_size"`
	CRC32            uint32 `json:"crc32"`
	Method           uint16 `json:"-"`
	Offset           uint32 `json:"-"`
}

// Archive 已解析的 ZIP 归档。保留原始缓冲区引用用于懒提取。
type Archive struct {
	data    []byte
	Entries []Entry
	byName  map[string]int // 同名条目以最后一条中央目录记录为准
}

// Open 解析 ZIP 中央目录。从缓冲区末尾反向扫描 EOCD 签名
// （EOCD 后可能跟随可变长度的注释字段），再顺序遍历中央目录记录。
func Open(data []byte) (*Archive, error) {
	eocd := findEOCD(data)
	if eocd < 0 {
		return nil, ErrNotAnArchive
	}

	entryCount := int(binary.LittleEndian.Uint16(data[eocd+10 : eocd+12]))
	cdOffset := int(binary.LittleEndian.Uint32(data[eocd+16 : eocd+20]))
	if cdOffset > len(data) {
		return nil, fmt.Errorf("%w: central directory offset %d", ErrTruncated, cdOffset)
	}

	archive := &Archive{
		data:    data,
		Entries: make([]Entry, 0, entryCount),
		byName:  make(map[string]int, entryCount),
	}

	pos := cdOffset
	for i := 0; i < entryCount; i++ {
		if pos+centralDirFixedSize > len(data) {
			return nil, fmt.Errorf("%w: central directory record %d", ErrTruncated, i)
		}
		if binary.LittleEndian.Uint32(data[pos:pos+4]) != centralDirSignature {
			return nil, fmt.Errorf("%w: bad central directory signature at record %d", ErrTruncated, i)
		}

		method := binary.LittleEndian.Uint16(data[pos+10 : pos+12])
		crc := binary.LittleEndian.Uint32(data[pos+16 : pos+20])
		compSize := binary.LittleEndian.Uint32(data[pos+20 : pos+24])
		uncompSize := binary.LittleEndian.Uint32(data[pos+24 : pos+28])
		nameLen := int(binary.LittleEndian.Uint16(data[pos+28 : pos+30]))
		extraLen := int(binary.LittleEndian.Uint16(data[pos+30 : pos+32]))
		commentLen := int(binary.LittleEndian.Uint16(data[pos+32 : pos+34]))
		localOffset := binary.LittleEndian.Uint32(data[pos+42 : pos+46])

		if pos+centralDirFixedSize+nameLen > len(data) {
			return nil, fmt.Errorf("%w: entry name at record %d", ErrTruncated, i)
		}
		name := string(data[pos+centralDirFixedSize : pos+centralDirFixedSize+nameLen])

		archive.byName[name] = len(archive.Entries)
		archive.Entries = append(archive.Entries, Entry{
			Name:             name,
			CompressedSize:   compSize,
			UncompressedSize: uncompSize,
			CRC32:            crc,
			Method:           method,
			Offset:           localOffset,
		})

		pos += centralDirFixedSize + nameLen + extraLen + commentLen
	}

	return archive, nil
}

// findEOCD 从末尾反向查找 EOCD 签名，返回其偏移，找不到返回 -1
func findEOCD(data []byte) int {
	if len(data) < eocdFixedSize {
		return -1
	}
	for pos := len(data) - eocdFixedSize; pos >= 0; pos-- {
		if binary.LittleEndian.Uint32(data[pos:pos+4]) == eocdSignature {
			return pos
		}
	}
	return -1
}

// Entry 按名称查找条目
func (a *Archive) Entry(name string) (Entry, bool) {
	idx, ok := a.byName[name]
	if !ok {
		return Entry{}, false
	}
	return a.Entries[idx], true
}

// HasEntry 判断条目是否存在
func (a *Archive) HasEntry(name string) bool {
	_, ok := a.byName[name]
	return ok
}

// ReadEntry 按名称读取条目并按需解压。
// 支持 stored 和 deflated 两种压缩方法。
func (a *Archive) ReadEntry(name string) ([]byte, error) {
	entry, ok := a.Entry(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	return a.readEntry(entry)
}

func (a *Archive) readEntry(entry Entry) ([]byte, error) {
	pos := int(entry.Offset)
	if pos+localHeaderFixedSize > len(a.data) {
		return nil, fmt.Errorf("%w: local header of %s", ErrTruncated, entry.Name)
	}
	if binary.LittleEndian.Uint32(a.data[pos:pos+4]) != localHeaderSignature {
		return nil, fmt.Errorf("%w: bad local header signature of %s", ErrTruncated, entry.Name)
	}

	nameLen := int(binary.LittleEndian.Uint16(a.data[pos+26 : pos+28]))
	extraLen := int(binary.LittleEndian.Uint16(a.data[pos+28 : pos+30]))

	// 数据大小以中央目录记录为准（本地头在流式写入时可能为 0）
	dataStart := pos + localHeaderFixedSize + nameLen + extraLen
	dataEnd := dataStart + int(entry.CompressedSize)
	if dataStart > len(a.data) || dataEnd > len(a.data) {
		return nil, fmt.Errorf("%w: data of %s", ErrTruncated, entry.Name)
	}
	raw := a.data[dataStart:dataEnd]

	switch entry.Method {
	case methodStored:
		return raw, nil
	case methodDeflated:
		reader := flate.NewReader(bytes.NewReader(raw))
		defer reader.Close()
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("container: inflate %s: %w", entry.Name, err)
		}
		return decompressed, nil
	default:
		return nil, fmt.Errorf("%w: method %d of %s", ErrUnsupportedCompression, entry.Method, entry.Name)
	}
}

// VerifyEntry 解压条目并与中央目录记录的 CRC-32 比对
func (a *Archive) VerifyEntry(name string) (bool, error) {
	entry, ok := a.Entry(name)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	data, err := a.readEntry(entry)
	if err != nil {
		return false, err
	}
	return crc32.ChecksumIEEE(data) == entry.CRC32, nil
}
