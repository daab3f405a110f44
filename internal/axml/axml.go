package axml

import (
	"errors"
	"fmt"
	"strconv"
)

// Manifest 解码错误类型
var (
	ErrInvalidChunk    = errors.New("axml: invalid chunk")
	ErrStringPoolIndex = errors.New("axml: string pool index out of range")
	ErrNotAManifest    = errors.New("axml: missing root manifest element")
)

// chunk 类型
const (
	chunkXMLFile      = 0x0003
	chunkStringPool   = 0x0001
	chunkResourceMap  = 0x0180
	chunkStartNS      = 0x0100
	chunkEndNS        = 0x0101
	chunkStartElement = 0x0102
	chunkEndElement   = 0x0103
	chunkCDATA        = 0x0104
)

// 属性值类型（Res_value.dataType）
const (
	typeReference  = 0x01
	typeString     = 0x03
	typeFloat      = 0x04
	typeIntDec     = 0x10
	typeIntHex     = 0x11
	typeIntBoolean = 0x12
)

// 无字符串池名称时用于识别常见属性的资源 ID
var attrResourceNames = map[uint32]string{
	0x01010000: "theme",
	0x01010001: "label",
	0x01010002: "icon",
	0x01010003: "name",
	0x01010010: "exported",
	0x0101020c: "minSdkVersion",
	0x0101020d: "maxSdkVersion",
	0x0101021b: "versionCode",
	0x0101021c: "versionName",
	0x01010270: "targetSdkVersion",
}

// Component 应用组件（activity / service / receiver / provider）
type Component struct {
	Name            string   `json:"name"`
	Exported        *bool    `json:"exported,omitempty"`
	IntentFilters   int      `json:"intent_filters"`
	IntentActions   []string `json:"intent_actions,omitempty"`
}

// Manifest 解码后的 AndroidManifest.xml
type Manifest struct {
	PackageName      string      `json:"package_name"`
	VersionCode      *int        `json:"version_code,omitempty"`
	VersionName      string      `json:"version_name,omitempty"`
	MinSdkVersion    *int        `json:"min_sdk_version,omitempty"`
	TargetSdkVersion *int        `json:"target_sdk_version,omitempty"`
	MaxSdkVersion    *int        `json:"max_sdk_version,omitempty"`
	Label            string      `json:"label,omitempty"`
	Icon             string      `json:"icon,omitempty"`
	Permissions      []string    `json:"permissions"`
	Activities       []Component `json:"activities"`
	Services         []Component `json:"services"`
	Receivers        []Component `json:"receivers"`
	Providers        []Component `json:"providers"`
}

// attribute 单个已解析的元素属性
type attribute struct {
	name     string
	value    string
	dataType uint8
	data     uint32
}

// decoder 单遍解码状态
type decoder struct {
	pool        *stringPool
	resourceMap []uint32
	manifest    *Manifest
	sawManifest bool

	// 组件构建状态，随元素栈推进
	stack     []string
	current   *Component
	currentIn *[]Component
}

// Decode 解码二进制 AndroidManifest.xml。单次前向遍历：读 chunk 头
//（类型、头大小、总大小），按类型分发，无论是否解释了全部内容都按
// 总大小推进游标（对未知 chunk 保持前向兼容）。
func Decode(data []byte) (*Manifest, error) {
	c := newCursor(data)

	fileType, err := c.uint16()
	if err != nil {
		return nil, err
	}
	if fileType != chunkXMLFile {
		return nil, fmt.Errorf("%w: file chunk type 0x%04x", ErrNotAManifest, fileType)
	}
	if _, err := c.uint16(); err != nil { // 文件头大小
		return nil, err
	}
	declaredSize, err := c.uint32()
	if err != nil {
		return nil, err
	}
	if int(declaredSize) > len(data) {
		return nil, fmt.Errorf("%w: declared file size %d exceeds buffer %d", ErrInvalidChunk, declaredSize, len(data))
	}

	d := &decoder{
		manifest: &Manifest{
			Permissions: []string{},
			Activities:  []Component{},
			Services:    []Component{},
			Receivers:   []Component{},
			Providers:   []Component{},
		},
	}

	for c.remaining() >= 8 {
		chunkStart := c.pos
		chunkType, err := c.uint16()
		if err != nil {
			return nil, err
		}
		headerSize, err := c.uint16()
		if err != nil {
			return nil, err
		}
		chunkSize, err := c.uint32()
		if err != nil {
			return nil, err
		}
		if int(chunkSize) < int(headerSize) || chunkSize < 8 {
			return nil, fmt.Errorf("%w: chunk 0x%04x size %d smaller than header %d",
				ErrInvalidChunk, chunkType, chunkSize, headerSize)
		}
		if chunkStart+int(chunkSize) > len(data) {
			return nil, fmt.Errorf("%w: chunk 0x%04x size %d exceeds remaining buffer",
				ErrInvalidChunk, chunkType, chunkSize)
		}

		chunk := data[chunkStart : chunkStart+int(chunkSize)]
		switch chunkType {
		case chunkStringPool:
			d.pool, err = parseStringPool(chunk)
		case chunkResourceMap:
			err = d.parseResourceMap(chunk)
		case chunkStartElement:
			err = d.parseStartElement(chunk, int(headerSize))
		case chunkEndElement:
			err = d.parseEndElement(chunk, int(headerSize))
		default:
			// start/end-namespace、CDATA 及未知 chunk：跳过
		}
		if err != nil {
			return nil, err
		}

		if err := c.seek(chunkStart + int(chunkSize)); err != nil {
			return nil, err
		}
	}

	if !d.sawManifest {
		return nil, ErrNotAManifest
	}
	if d.manifest.PackageName == "" {
		return nil, fmt.Errorf("%w: manifest element has no package attribute", ErrNotAManifest)
	}
	return d.manifest, nil
}

func (d *decoder) parseResourceMap(chunk []byte) error {
	c := newCursor(chunk)
	if err := c.seek(8); err != nil {
		return err
	}
	count := (len(chunk) - 8) / 4
	d.resourceMap = make([]uint32, 0, count)
	for i := 0; i < count; i++ {
		id, err := c.uint32()
		if err != nil {
			return err
		}
		d.resourceMap = append(d.resourceMap, id)
	}
	return nil
}

// attrName 解析属性名。字符串池名称为空时（资源混淆），回退到
// resource-map 中的已知 Android 资源 ID。
func (d *decoder) attrName(nameIndex uint32) (string, error) {
	name, err := d.pool.get(nameIndex)
	if err != nil {
		return "", err
	}
	if name != "" {
		return name, nil
	}
	if int(nameIndex) < len(d.resourceMap) {
		if known, ok := attrResourceNames[d.resourceMap[nameIndex]]; ok {
			return known, nil
		}
	}
	return "", nil
}

func (d *decoder) parseStartElement(chunk []byte, headerSize int) error {
	if d.pool == nil {
		return fmt.Errorf("%w: element before string pool", ErrInvalidChunk)
	}

	c := newCursor(chunk)
	if err := c.seek(headerSize); err != nil {
		return err
	}
	if _, err := c.uint32(); err != nil { // 命名空间 URI 索引
		return err
	}
	nameIndex, err := c.uint32()
	if err != nil {
		return err
	}
	name, err := d.pool.get(nameIndex)
	if err != nil {
		return err
	}

	if _, err := c.uint16(); err != nil { // attributeStart
		return err
	}
	if _, err := c.uint16(); err != nil { // attributeSize
		return err
	}
	attrCount, err := c.uint16()
	if err != nil {
		return err
	}
	if _, err := c.bytes(6); err != nil { // id/class/style 索引
		return err
	}

	attrs := make([]attribute, 0, attrCount)
	for i := 0; i < int(attrCount); i++ {
		attr, err := d.parseAttribute(&c)
		if err != nil {
			return err
		}
		attrs = append(attrs, attr)
	}

	d.stack = append(d.stack, name)
	return d.handleElement(name, attrs)
}

func (d *decoder) parseAttribute(c *cursor) (attribute, error) {
	var attr attribute

	if _, err := c.uint32(); err != nil { // 命名空间
		return attr, err
	}
	nameIndex, err := c.uint32()
	if err != nil {
		return attr, err
	}
	rawValue, err := c.uint32()
	if err != nil {
		return attr, err
	}
	if _, err := c.uint16(); err != nil { // typedValue.size
		return attr, err
	}
	if _, err := c.uint8(); err != nil { // res0
		return attr, err
	}
	dataType, err := c.uint8()
	if err != nil {
		return attr, err
	}
	data, err := c.uint32()
	if err != nil {
		return attr, err
	}

	attr.name, err = d.attrName(nameIndex)
	if err != nil {
		return attr, err
	}
	attr.dataType = dataType
	attr.data = data

	// 值优先取字符串池文本，原始整数 / 资源引用按类型渲染
	if rawValue != 0xFFFFFFFF {
		attr.value, err = d.pool.get(rawValue)
		if err != nil {
			return attr, err
		}
	} else {
		attr.value = renderTypedValue(dataType, data)
	}
	return attr, nil
}

// renderTypedValue 渲染非字符串属性值
func renderTypedValue(dataType uint8, data uint32) string {
	switch dataType {
	case typeString:
		return ""
	case typeIntBoolean:
		if data != 0 {
			return "true"
		}
		return "false"
	case typeIntDec:
		return strconv.FormatInt(int64(int32(data)), 10)
	case typeIntHex:
		return fmt.Sprintf("0x%08x", data)
	case typeReference:
		return fmt.Sprintf("@0x%08x", data)
	default:
		return strconv.FormatUint(uint64(data), 10)
	}
}

// handleElement 同一遍中按已知元素名填充结构化字段
func (d *decoder) handleElement(name string, attrs []attribute) error {
	switch name {
	case "manifest":
		d.sawManifest = true
		for _, attr := range attrs {
			switch attr.name {
			case "package":
				d.manifest.PackageName = attr.value
			case "versionCode":
				d.manifest.VersionCode = attrInt(attr)
			case "versionName":
				d.manifest.VersionName = attr.value
			}
		}
	case "uses-sdk":
		for _, attr := range attrs {
			switch attr.name {
			case "minSdkVersion":
				d.manifest.MinSdkVersion = attrInt(attr)
			case "targetSdkVersion":
				d.manifest.TargetSdkVersion = attrInt(attr)
			case "maxSdkVersion":
				d.manifest.MaxSdkVersion = attrInt(attr)
			}
		}
	case "uses-permission":
		for _, attr := range attrs {
			if attr.name == "name" && attr.value != "" {
				d.manifest.Permissions = append(d.manifest.Permissions, attr.value)
			}
		}
	case "application":
		for _, attr := range attrs {
			switch attr.name {
			case "label":
				d.manifest.Label = attr.value
			case "icon":
				d.manifest.Icon = attr.value
			}
		}
	case "activity":
		d.beginComponent(&d.manifest.Activities, attrs)
	case "service":
		d.beginComponent(&d.manifest.Services, attrs)
	case "receiver":
		d.beginComponent(&d.manifest.Receivers, attrs)
	case "provider":
		d.beginComponent(&d.manifest.Providers, attrs)
	case "intent-filter":
		if d.current != nil {
			d.current.IntentFilters++
		}
	case "action":
		if d.current != nil {
			for _, attr := range attrs {
				if attr.name == "name" && attr.value != "" {
					d.current.IntentActions = append(d.current.IntentActions, attr.value)
				}
			}
		}
	}
	return nil
}

func (d *decoder) beginComponent(target *[]Component, attrs []attribute) {
	component := &Component{}
	for _, attr := range attrs {
		switch attr.name {
		case "name":
			component.Name = attr.value
		case "exported":
			if attr.dataType == typeIntBoolean {
				exported := attr.data != 0
				component.Exported = &exported
			}
		}
	}
	d.current = component
	d.currentIn = target
}

func (d *decoder) parseEndElement(chunk []byte, headerSize int) error {
	c := newCursor(chunk)
	if err := c.seek(headerSize); err != nil {
		return err
	}
	if _, err := c.uint32(); err != nil { // 命名空间
		return err
	}
	nameIndex, err := c.uint32()
	if err != nil {
		return err
	}
	name, err := d.pool.get(nameIndex)
	if err != nil {
		return err
	}

	if len(d.stack) > 0 {
		d.stack = d.stack[:len(d.stack)-1]
	}

	switch name {
	case "activity", "service", "receiver", "provider":
		if d.current != nil && d.currentIn != nil {
			*d.currentIn = append(*d.currentIn, *d.current)
		}
		d.current = nil
		d.currentIn = nil
	}
	return nil
}

// attrInt 将属性转为整数，非整数值返回 nil
func attrInt(attr attribute) *int {
	switch attr.dataType {
	case typeIntDec, typeIntHex, typeIntBoolean:
		v := int(int32(attr.data))
		return &v
	default:
		if v, err := strconv.Atoi(attr.value); err == nil {
			return &v
		}
		return nil
	}
}
