package dex

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/adler32"
)

// Dex 解码错误类型
var (
	ErrBadMagic          = errors.New("dex: bad magic")
	ErrUnsupportedEndian = errors.New("dex: unsupported endianness")
	ErrTruncatedTable    = errors.New("dex: table extends past buffer")
)

const (
	headerSize      = 112
	endianConstant  = 0x12345678
	reverseEndian   = 0x78563412
	noIndex         = 0xFFFFFFFF
	stringIDSize    = 4
	typeIDSize      = 4
	protoIDSize     = 12
	fieldIDSize     = 8
	methodIDSize    = 8
	classDefSize    = 32
)

var magicPrefix = []byte("dex\n")

// TableRef 头部中一个索引表的 (偏移, 条目数)
type TableRef struct {
	Offset uint32 `json:"offset"`
	Count  uint32 `json:"count"`
}

// Proto 方法原型摘要
type Proto struct {
	Shorty     string `json:"shorty"`
	ReturnType string `json:"return_type"`
}

// Field 字段符号
type Field struct {
	Class string `json:"class"`
	Type  string `json:"type"`
	Name  string `json:"name"`
}

// Method 方法符号
type Method struct {
	Class  string `json:"class"`
	Shorty string `json:"shorty"`
	Name   string `json:"name"`
}

// Class 类定义摘要。方法体不做反汇编。
type Class struct {
	Descriptor  string `json:"descriptor"`
	Superclass  string `json:"superclass,omitempty"`
	AccessFlags uint32 `json:"access_flags"`
	SourceFile  string `json:"source_file,omitempty"`
}

// Summary 解码后的 classes.dex 摘要，含解码字符串表
type Summary struct {
	Version           string `json:"version"`
	DeclaredChecksum  uint32 `json:"declared_checksum"`
	ComputedChecksum  uint32 `json:"computed_checksum"`
	DeclaredSignature string `json:"declared_signature"`
	ComputedSignature string `json:"computed_signature"`
	DeclaredFileSize  uint32 `json:"declared_file_size"`
	ActualFileSize    int    `json:"actual_file_size"`
	IntegrityVerified bool   `json:"integrity_verified"`

	StringIDs TableRef `json:"string_ids"`
	TypeIDs   TableRef `json:"type_ids"`
	ProtoIDs  TableRef `json:"proto_ids"`
	FieldIDs  TableRef `json:"field_ids"`
	MethodIDs TableRef `json:"method_ids"`
	ClassDefs TableRef `json:"class_defs"`

	Strings []string `json:"-"`
	Types   []string `json:"-"`
	Protos  []Proto  `json:"-"`
	Fields  []Field  `json:"-"`
	Methods []Method `json:"-"`
	Classes []Class  `json:"-"`
}

// Decode 解码 classes.dex 的头部与索引表。
// 先校验 8 字节 magic/版本前缀，再读固定布局头部与六个索引表。
// 解析完成后独立重算内容校验和与签名并与头部声明值比对，
// 不一致只记录不中止。
func Decode(data []byte) (*Summary, error) {
	if len(data) < 8 || !bytes.HasPrefix(data, magicPrefix) || data[7] != 0 {
		return nil, ErrBadMagic
	}
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: header needs %d bytes, got %d", ErrTruncatedTable, headerSize, len(data))
	}

	endianTag := binary.LittleEndian.Uint32(data[40:44])
	switch endianTag {
	case endianConstant:
		// 小端，实际上的通用情形
	case reverseEndian:
		return nil, fmt.Errorf("%w: big-endian tag 0x%08x", ErrUnsupportedEndian, endianTag)
	default:
		return nil, fmt.Errorf("%w: unknown endian tag 0x%08x", ErrUnsupportedEndian, endianTag)
	}

	u32 := binary.LittleEndian.Uint32
	summary := &Summary{
		Version:           string(data[4:7]),
		DeclaredChecksum:  u32(data[8:12]),
		DeclaredSignature: hex.EncodeToString(data[12:32]),
		DeclaredFileSize:  u32(data[32:36]),
		ActualFileSize:    len(data),

		StringIDs: TableRef{Count: u32(data[56:60]), Offset: u32(data[60:64])},
		TypeIDs:   TableRef{Count: u32(data[64:68]), Offset: u32(data[68:72])},
		ProtoIDs:  TableRef{Count: u32(data[72:76]), Offset: u32(data[76:80])},
		FieldIDs:  TableRef{Count: u32(data[80:84]), Offset: u32(data[84:88])},
		MethodIDs: TableRef{Count: u32(data[88:92]), Offset: u32(data[92:96])},
		ClassDefs: TableRef{Count: u32(data[96:100]), Offset: u32(data[100:104])},
	}

	if err := checkTable(data, "string_ids", summary.StringIDs, stringIDSize); err != nil {
		return nil, err
	}
	if err := checkTable(data, "type_ids", summary.TypeIDs, typeIDSize); err != nil {
		return nil, err
	}
	if err := checkTable(data, "proto_ids", summary.ProtoIDs, protoIDSize); err != nil {
		return nil, err
	}
	if err := checkTable(data, "field_ids", summary.FieldIDs, fieldIDSize); err != nil {
		return nil, err
	}
	if err := checkTable(data, "method_ids", summary.MethodIDs, methodIDSize); err != nil {
		return nil, err
	}
	if err := checkTable(data, "class_defs", summary.ClassDefs, classDefSize); err != nil {
		return nil, err
	}

	var err error
	if summary.Strings, err = parseStrings(data, summary.StringIDs); err != nil {
		return nil, err
	}
	if summary.Types, err = parseTypes(data, summary.TypeIDs, summary.Strings); err != nil {
		return nil, err
	}
	if summary.Protos, err = parseProtos(data, summary.ProtoIDs, summary.Strings, summary.Types); err != nil {
		return nil, err
	}
	if summary.Fields, err = parseFields(data, summary.FieldIDs, summary.Strings, summary.Types); err != nil {
		return nil, err
	}
	if summary.Methods, err = parseMethods(data, summary.MethodIDs, summary.Strings, summary.Types, summary.Protos); err != nil {
		return nil, err
	}
	if summary.Classes, err = parseClasses(data, summary.ClassDefs, summary.Strings, summary.Types); err != nil {
		return nil, err
	}

	// 完整性复核：校验和覆盖前 12 字节之后的内容，签名覆盖前 32 字节之后
	summary.ComputedChecksum = adler32.Checksum(data[12:])
	computedSig := sha1.Sum(data[32:])
	summary.ComputedSignature = hex.EncodeToString(computedSig[:])
	summary.IntegrityVerified = summary.ComputedChecksum == summary.DeclaredChecksum &&
		summary.ComputedSignature == summary.DeclaredSignature

	return summary, nil
}

// SizeMatches 头部声明的文件大小是否与实际一致。不一致不致命。
func (s *Summary) SizeMatches() bool {
	return int(s.DeclaredFileSize) == s.ActualFileSize
}

func checkTable(data []byte, name string, ref TableRef, recordSize int) error {
	if ref.Count == 0 {
		return nil
	}
	end := int(ref.Offset) + int(ref.Count)*recordSize
	if int(ref.Offset) > len(data) || end > len(data) || end < 0 {
		return fmt.Errorf("%w: %s (offset %d, count %d)", ErrTruncatedTable, name, ref.Offset, ref.Count)
	}
	return nil
}

// parseStrings 解码字符串表。每个 string-id 是指向数据区的偏移，
// 目标处为 ULEB128 长度前缀加 MUTF-8 字节。
func parseStrings(data []byte, ref TableRef) ([]string, error) {
	strings := make([]string, 0, ref.Count)
	for i := uint32(0); i < ref.Count; i++ {
		dataOff := binary.LittleEndian.Uint32(data[ref.Offset+i*stringIDSize:])
		if int(dataOff) >= len(data) {
			return nil, fmt.Errorf("%w: string %d data offset %d", ErrTruncatedTable, i, dataOff)
		}
		utf16Len, n, err := decodeULEB128(data[dataOff:])
		if err != nil {
			return nil, fmt.Errorf("string %d: %w", i, err)
		}
		decoded, err := decodeMUTF8(data[int(dataOff)+n:], utf16Len)
		if err != nil {
			return nil, fmt.Errorf("string %d: %w", i, err)
		}
		strings = append(strings, decoded)
	}
	return strings, nil
}

func parseTypes(data []byte, ref TableRef, strs []string) ([]string, error) {
	types := make([]string, 0, ref.Count)
	for i := uint32(0); i < ref.Count; i++ {
		descIdx := binary.LittleEndian.Uint32(data[ref.Offset+i*typeIDSize:])
		desc, err := stringAt(strs, descIdx, "type descriptor")
		if err != nil {
			return nil, err
		}
		types = append(types, desc)
	}
	return types, nil
}

func parseProtos(data []byte, ref TableRef, strs, types []string) ([]Proto, error) {
	protos := make([]Proto, 0, ref.Count)
	for i := uint32(0); i < ref.Count; i++ {
		record := data[ref.Offset+i*protoIDSize:]
		shortyIdx := binary.LittleEndian.Uint32(record)
		returnIdx := binary.LittleEndian.Uint32(record[4:])

		shorty, err := stringAt(strs, shortyIdx, "proto shorty")
		if err != nil {
			return nil, err
		}
		returnType, err := typeAt(types, returnIdx, "proto return type")
		if err != nil {
			return nil, err
		}
		protos = append(protos, Proto{Shorty: shorty, ReturnType: returnType})
	}
	return protos, nil
}

func parseFields(data []byte, ref TableRef, strs, types []string) ([]Field, error) {
	fields := make([]Field, 0, ref.Count)
	for i := uint32(0); i < ref.Count; i++ {
		record := data[ref.Offset+i*fieldIDSize:]
		classIdx := uint32(binary.LittleEndian.Uint16(record))
		typeIdx := uint32(binary.LittleEndian.Uint16(record[2:]))
		nameIdx := binary.LittleEndian.Uint32(record[4:])

		class, err := typeAt(types, classIdx, "field class")
		if err != nil {
			return nil, err
		}
		fieldType, err := typeAt(types, typeIdx, "field type")
		if err != nil {
			return nil, err
		}
		name, err := stringAt(strs, nameIdx, "field name")
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{Class: class, Type: fieldType, Name: name})
	}
	return fields, nil
}

func parseMethods(data []byte, ref TableRef, strs, types []string, protos []Proto) ([]Method, error) {
	methods := make([]Method, 0, ref.Count)
	for i := uint32(0); i < ref.Count; i++ {
		record := data[ref.Offset+i*methodIDSize:]
		classIdx := uint32(binary.LittleEndian.Uint16(record))
		protoIdx := uint32(binary.LittleEndian.Uint16(record[2:]))
		nameIdx := binary.LittleEndian.Uint32(record[4:])

		class, err := typeAt(types, classIdx, "method class")
		if err != nil {
			return nil, err
		}
		if int(protoIdx) >= len(protos) {
			return nil, fmt.Errorf("%w: method proto index %d of %d", ErrTruncatedTable, protoIdx, len(protos))
		}
		name, err := stringAt(strs, nameIdx, "method name")
		if err != nil {
			return nil, err
		}
		methods = append(methods, Method{Class: class, Shorty: protos[protoIdx].Shorty, Name: name})
	}
	return methods, nil
}

// parseClasses 解析类定义记录。只取摘要字段，class_data 与方法体不展开。
func parseClasses(data []byte, ref TableRef, strs, types []string) ([]Class, error) {
	classes := make([]Class, 0, ref.Count)
	for i := uint32(0); i < ref.Count; i++ {
		record := data[ref.Offset+i*classDefSize:]
		classIdx := binary.LittleEndian.Uint32(record)
		accessFlags := binary.LittleEndian.Uint32(record[4:])
		superclassIdx := binary.LittleEndian.Uint32(record[8:])
		sourceFileIdx := binary.LittleEndian.Uint32(record[16:])

		descriptor, err := typeAt(types, classIdx, "class descriptor")
		if err != nil {
			return nil, err
		}
		class := Class{Descriptor: descriptor, AccessFlags: accessFlags}
		if superclassIdx != noIndex {
			if class.Superclass, err = typeAt(types, superclassIdx, "superclass"); err != nil {
				return nil, err
			}
		}
		if sourceFileIdx != noIndex {
			if class.SourceFile, err = stringAt(strs, sourceFileIdx, "source file"); err != nil {
				return nil, err
			}
		}
		classes = append(classes, class)
	}
	return classes, nil
}

func stringAt(strs []string, index uint32, what string) (string, error) {
	if int(index) >= len(strs) {
		return "", fmt.Errorf("%w: %s index %d of %d", ErrTruncatedTable, what, index, len(strs))
	}
	return strs[index], nil
}

func typeAt(types []string, index uint32, what string) (string, error) {
	if int(index) >= len(types) {
		return "", fmt.Errorf("%w: %s index %d of %d", ErrTruncatedTable, what, index, len(types))
	}
	return types[index], nil
}
