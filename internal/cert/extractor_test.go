package cert

import (
	"archive/zip"
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apk-inspect/apk-inspect-go/internal/container"
	"github.com/apk-inspect/apk-inspect-go/internal/hashutil"
)

// tlv 编码一个 DER TLV
func tlv(tag byte, content []byte) []byte {
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

// buildPKCS7 构造含给定证书的最小 signed-data 封装
func buildPKCS7(t *testing.T, certs ...[]byte) []byte {
	t.Helper()

	oidDER, err := asn1.Marshal(oidSignedData)
	require.NoError(t, err)
	versionDER, err := asn1.Marshal(1)
	require.NoError(t, err)
	dataOID, err := asn1.Marshal(asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1})
	require.NoError(t, err)

	var certConcat []byte
	for _, c := range certs {
		certConcat = append(certConcat, c...)
	}

	var signed bytes.Buffer
	signed.Write(versionDER)
	signed.Write(tlv(0x31, nil))                 // digestAlgorithms SET（空）
	signed.Write(tlv(0x30, dataOID))             // encapContentInfo
	signed.Write(tlv(0xa0, certConcat))          // [0] IMPLICIT certificates
	signedDER := tlv(0x30, signed.Bytes())

	var content bytes.Buffer
	content.Write(oidDER)
	content.Write(tlv(0xa0, signedDER)) // [0] EXPLICIT content
	return tlv(0x30, content.Bytes())
}

// buildSelfSignedCert 生成自签名测试证书
func buildSelfSignedCert(t *testing.T, commonName string, serial int64) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"Example Corp"},
			Country:      []string{"US"},
		},
		NotBefore: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:  time.Date(2034, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return der
}

// buildArchive 构造含给定条目的归档
func buildArchive(t *testing.T, entries map[string][]byte) *container.Archive {
	t.Helper()

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := writer.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	archive, err := container.Open(buf.Bytes())
	require.NoError(t, err)
	return archive
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// TestExtract_SelfSignedCert 测试从 CERT.RSA 中解码自签名证书
func TestExtract_SelfSignedCert(t *testing.T) {
	certDER := buildSelfSignedCert(t, "Test Signer", 0x1234)
	archive := buildArchive(t, map[string][]byte{
		"META-INF/CERT.RSA": buildPKCS7(t, certDER),
		"classes.dex":       []byte("not a cert"),
	})

	certificates := Extract(archive, testLogger())
	require.Len(t, certificates, 1)

	c := certificates[0]
	assert.Equal(t, "META-INF/CERT.RSA", c.Source)
	assert.Equal(t, int64(0x1234), c.SerialNumber.Int64())
	assert.Contains(t, RDNString(c.Subject), "CN=Test Signer")
	assert.Contains(t, RDNString(c.Issuer), "O=Example Corp")
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), c.NotBefore)
	assert.Equal(t, time.Date(2034, 1, 1, 0, 0, 0, 0, time.UTC), c.NotAfter)
	assert.NotEmpty(t, c.SignatureAlgorithm)
	assert.NotEmpty(t, c.PublicKey)

	assert.Equal(t, hashutil.MD5Hex(certDER), c.FingerprintMD5)
	assert.Equal(t, hashutil.SHA1Hex(certDER), c.FingerprintSHA1)
	assert.Equal(t, hashutil.SHA256Hex(certDER), c.FingerprintSHA256)
}

// TestExtract_NoSignatureFiles 测试无签名文件时返回空集合
func TestExtract_NoSignatureFiles(t *testing.T) {
	archive := buildArchive(t, map[string][]byte{
		"classes.dex":          []byte("dex"),
		"META-INF/MANIFEST.MF": []byte("Manifest-Version: 1.0"),
	})

	certificates := Extract(archive, testLogger())
	assert.NotNil(t, certificates)
	assert.Empty(t, certificates)
}

// TestExtract_MalformedDER 测试畸形签名文件降级为空集合
func TestExtract_MalformedDER(t *testing.T) {
	archive := buildArchive(t, map[string][]byte{
		"META-INF/CERT.RSA": []byte("this is not DER at all"),
	})

	certificates := Extract(archive, testLogger())
	assert.Empty(t, certificates)
}

// TestExtract_MultipleSigners 测试多个签名文件报告证书并集
func TestExtract_MultipleSigners(t *testing.T) {
	first := buildSelfSignedCert(t, "First Signer", 1)
	second := buildSelfSignedCert(t, "Second Signer", 2)
	archive := buildArchive(t, map[string][]byte{
		"META-INF/CERT.RSA":   buildPKCS7(t, first),
		"META-INF/SECOND.DSA": buildPKCS7(t, second),
	})

	certificates := Extract(archive, testLogger())
	assert.Len(t, certificates, 2)

	subjects := make([]string, 0, len(certificates))
	for _, c := range certificates {
		subjects = append(subjects, RDNString(c.Subject))
	}
	assert.Condition(t, func() bool {
		foundFirst, foundSecond := false, false
		for _, s := range subjects {
			if bytes.Contains([]byte(s), []byte("First Signer")) {
				foundFirst = true
			}
			if bytes.Contains([]byte(s), []byte("Second Signer")) {
				foundSecond = true
			}
		}
		return foundFirst && foundSecond
	}, "both signers should be reported")
}

// TestIsSignatureFile 测试签名文件命名匹配
func TestIsSignatureFile(t *testing.T) {
	cases := []struct {
		name     string
		expected bool
	}{
		{"META-INF/CERT.RSA", true},
		{"META-INF/CERT.DSA", true},
		{"META-INF/CERT.EC", true},
		{"META-INF/custom.rsa", true},
		{"META-INF/MANIFEST.MF", false},
		{"META-INF/CERT.SF", false},
		{"CERT.RSA", false},
		{"res/CERT.RSA", false},
		{"META-INF/CERT", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, IsSignatureFile(tc.name), tc.name)
	}
}
