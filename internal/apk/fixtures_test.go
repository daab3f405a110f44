package apk

import (
	"archive/zip"
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/binary"
	"hash/adler32"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// buildManifestFixture 构造只含 package 属性的最小二进制 manifest
func buildManifestFixture(t *testing.T, packageName string) []byte {
	t.Helper()

	strs := []string{"manifest", "package", packageName}

	// UTF-8 字符串池
	var strData bytes.Buffer
	offsets := make([]uint32, len(strs))
	for i, s := range strs {
		offsets[i] = uint32(strData.Len())
		strData.WriteByte(byte(len(s)))
		strData.WriteByte(byte(len(s)))
		strData.WriteString(s)
		strData.WriteByte(0)
	}
	stringsStart := 28 + 4*len(strs)

	var pool bytes.Buffer
	le := func(v interface{}) { binary.Write(&pool, binary.LittleEndian, v) }
	le(uint16(0x0001))
	le(uint16(28))
	le(uint32(stringsStart + strData.Len()))
	le(uint32(len(strs)))
	le(uint32(0))
	le(uint32(0x00000100)) // UTF-8 flag
	le(uint32(stringsStart))
	le(uint32(0))
	for _, off := range offsets {
		le(off)
	}
	pool.Write(strData.Bytes())

	// start-element <manifest package="...">
	var start bytes.Buffer
	el := func(v interface{}) { binary.Write(&start, binary.LittleEndian, v) }
	el(uint16(0x0102))
	el(uint16(16))
	el(uint32(16 + 20 + 20))
	el(uint32(1))          // 行号
	el(uint32(0xFFFFFFFF)) // 注释
	el(uint32(0xFFFFFFFF)) // 命名空间
	el(uint32(0))          // "manifest"
	el(uint16(0x14))
	el(uint16(0x14))
	el(uint16(1)) // 一个属性
	el(uint16(0))
	el(uint16(0))
	el(uint16(0))
	el(uint32(0xFFFFFFFF)) // 属性命名空间
	el(uint32(1))          // "package"
	el(uint32(2))          // rawValue -> packageName
	el(uint16(8))
	start.WriteByte(0)
	start.WriteByte(0x03) // TYPE_STRING
	el(uint32(2))

	// end-element
	var end bytes.Buffer
	binary.Write(&end, binary.LittleEndian, uint16(0x0103))
	binary.Write(&end, binary.LittleEndian, uint16(16))
	binary.Write(&end, binary.LittleEndian, uint32(24))
	binary.Write(&end, binary.LittleEndian, uint32(1))
	binary.Write(&end, binary.LittleEndian, uint32(0xFFFFFFFF))
	binary.Write(&end, binary.LittleEndian, uint32(0xFFFFFFFF))
	binary.Write(&end, binary.LittleEndian, uint32(0))

	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, uint16(0x0003))
	binary.Write(&out, binary.LittleEndian, uint16(8))
	binary.Write(&out, binary.LittleEndian, uint32(8+pool.Len()+start.Len()+end.Len()))
	out.Write(pool.Bytes())
	out.Write(start.Bytes())
	out.Write(end.Bytes())
	return out.Bytes()
}

// buildDexFixture 构造含给定字符串表的最小 DEX
func buildDexFixture(t *testing.T, strs []string) []byte {
	t.Helper()

	const headerSize = 112
	stringIDsOff := uint32(headerSize)
	dataOff := stringIDsOff + uint32(len(strs))*4

	var dataSection bytes.Buffer
	offsets := make([]uint32, len(strs))
	for i, s := range strs {
		offsets[i] = dataOff + uint32(dataSection.Len())
		require.Less(t, len(s), 128)
		dataSection.WriteByte(byte(len(s)))
		dataSection.WriteString(s)
		dataSection.WriteByte(0)
	}

	total := int(dataOff) + dataSection.Len()
	data := make([]byte, total)
	u32 := func(off int, v uint32) { binary.LittleEndian.PutUint32(data[off:], v) }

	copy(data, "dex\n035\x00")
	u32(32, uint32(total))
	u32(36, headerSize)
	u32(40, 0x12345678)
	u32(56, uint32(len(strs)))
	u32(60, stringIDsOff)
	u32(104, uint32(dataSection.Len()))
	u32(108, dataOff)
	for i, off := range offsets {
		u32(int(stringIDsOff)+i*4, off)
	}
	copy(data[dataOff:], dataSection.Bytes())

	sig := sha1.Sum(data[32:])
	copy(data[12:32], sig[:])
	binary.LittleEndian.PutUint32(data[8:], adler32.Checksum(data[12:]))
	return data
}

// buildCertFixture 构造自签名证书的 PKCS#7 封装
func buildCertFixture(t *testing.T, commonName string) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(77),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(2034, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	tlv := func(tag byte, content []byte) []byte {
		var out bytes.Buffer
		out.WriteByte(tag)
		n := len(content)
		switch {
		case n < 0x80:
			out.WriteByte(byte(n))
		case n < 0x100:
			out.WriteByte(0x81)
			out.WriteByte(byte(n))
		default:
			out.WriteByte(0x82)
			out.WriteByte(byte(n >> 8))
			out.WriteByte(byte(n))
		}
		out.Write(content)
		return out.Bytes()
	}

	signedOID, err := asn1.Marshal(asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2})
	require.NoError(t, err)
	dataOID, err := asn1.Marshal(asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1})
	require.NoError(t, err)
	versionDER, err := asn1.Marshal(1)
	require.NoError(t, err)

	var signed bytes.Buffer
	signed.Write(versionDER)
	signed.Write(tlv(0x31, nil))
	signed.Write(tlv(0x30, dataOID))
	signed.Write(tlv(0xa0, certDER))

	var content bytes.Buffer
	content.Write(signedOID)
	content.Write(tlv(0xa0, tlv(0x30, signed.Bytes())))
	return tlv(0x30, content.Bytes())
}

// buildAPKFixture 构造最小合法 APK：manifest + dex + 一个签名文件
func buildAPKFixture(t *testing.T, packageName string, dexStrings []string) []byte {
	t.Helper()

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	entries := []struct {
		name    string
		content []byte
	}{
		{"AndroidManifest.xml", buildManifestFixture(t, packageName)},
		{"classes.dex", buildDexFixture(t, dexStrings)},
		{"META-INF/CERT.RSA", buildCertFixture(t, "Fixture Signer")},
		{"res/layout/main.xml", []byte("<layout/>")},
	}
	for _, entry := range entries {
		w, err := writer.CreateHeader(&zip.FileHeader{Name: entry.name, Method: zip.Deflate})
		require.NoError(t, err)
		_, err = w.Write(entry.content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return buf.Bytes()
}
