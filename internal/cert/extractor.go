package cert

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/apk-inspect/apk-inspect-go/internal/container"
	"github.com/apk-inspect/apk-inspect-go/internal/hashutil"
)

// PKCS#7 signed-data 对象标识符
var oidSignedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}

// 签名文件命名约定：固定目录前缀 + 任意基础名 + 识别的扩展名
const signatureDirPrefix = "META-INF/"

var signatureExtensions = map[string]bool{
	".RSA": true,
	".DSA": true,
	".EC":  true,
}

// RDN 标识名中的一个属性/值对
type RDN struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// OID 到 RDN 属性名的静态查找表
var rdnOIDNames = map[string]string{
	"2.5.4.3":                    "CN",
	"2.5.4.5":                    "SERIALNUMBER",
	"2.5.4.6":                    "C",
	"2.5.4.7":                    "L",
	"2.5.4.8":                    "ST",
	"2.5.4.9":                    "STREET",
	"2.5.4.10":                   "O",
	"2.5.4.11":                   "OU",
	"1.2.840.113549.1.9.1":       "EMAILADDRESS",
	"0.9.2342.19200300.100.1.25": "DC",
}

// Certificate 从签名文件中解码出的 X.509 签名证书
type Certificate struct {
	Source             string    `json:"source"` // 归档内的签名文件路径
	SerialNumber       *big.Int  `json:"serial_number"`
	Issuer             []RDN     `json:"issuer"`
	Subject            []RDN     `json:"subject"`
	NotBefore          time.Time `json:"not_before"`
	NotAfter           time.Time `json:"not_after"`
	SignatureAlgorithm string    `json:"signature_algorithm"`
	PublicKey          []byte    `json:"-"`
	FingerprintMD5     string    `json:"fingerprint_md5"`
	FingerprintSHA1    string    `json:"fingerprint_sha1"`
	FingerprintSHA256  string    `json:"fingerprint_sha256"`
}

// contentInfo PKCS#7 外层封装
type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

// signedData 只下钻到证书集合所需的深度，封装内容与签名者信息跳过
type signedData struct {
	Version          int
	DigestAlgorithms asn1.RawValue `asn1:"set"`
	ContentInfo      asn1.RawValue
	Certificates     asn1.RawValue `asn1:"optional,tag:0"`
}

// IsSignatureFile 判断条目名是否符合签名文件命名约定
func IsSignatureFile(name string) bool {
	if !strings.HasPrefix(name, signatureDirPrefix) {
		return false
	}
	dot := strings.LastIndex(name, ".")
	if dot < 0 {
		return false
	}
	return signatureExtensions[strings.ToUpper(name[dot:])]
}

// Extract 扫描归档中的签名文件并解码内嵌的 X.509 证书。
// 缺失或畸形的签名文件产生空集合而不是错误——未签名或
// 非常规签名的包是合法输入。多个签名文件时返回全部证书的并集。
func Extract(archive *container.Archive, logger *logrus.Logger) []Certificate {
	certificates := []Certificate{}

	for _, entry := range archive.Entries {
		if !IsSignatureFile(entry.Name) {
			continue
		}

		data, err := archive.ReadEntry(entry.Name)
		if err != nil {
			logger.WithError(err).WithField("entry", entry.Name).Warn("Failed to read signature file")
			continue
		}

		parsed, err := parseSignedData(data)
		if err != nil {
			logger.WithError(err).WithField("entry", entry.Name).Warn("Failed to parse signature file")
			continue
		}

		for _, c := range parsed {
			certificates = append(certificates, newCertificate(entry.Name, c))
		}
	}

	return certificates
}

// parseSignedData 解析 DER 编码的 PKCS#7 signed-data 封装，收集内嵌证书
func parseSignedData(data []byte) ([]*x509.Certificate, error) {
	var info contentInfo
	if _, err := asn1.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	if !info.ContentType.Equal(oidSignedData) {
		return nil, asn1.StructuralError{Msg: "content type is not signed-data"}
	}

	var signed signedData
	if _, err := asn1.Unmarshal(info.Content.Bytes, &signed); err != nil {
		return nil, err
	}
	if len(signed.Certificates.Bytes) == 0 {
		return nil, nil
	}

	// [0] IMPLICIT 证书集合：内容为连续的 DER 证书
	return x509.ParseCertificates(signed.Certificates.Bytes)
}

func newCertificate(source string, c *x509.Certificate) Certificate {
	return Certificate{
		Source:             source,
		SerialNumber:       c.SerialNumber,
		Issuer:             rdnSequence(c.Issuer),
		Subject:            rdnSequence(c.Subject),
		NotBefore:          c.NotBefore.UTC(),
		NotAfter:           c.NotAfter.UTC(),
		SignatureAlgorithm: c.SignatureAlgorithm.String(),
		PublicKey:          c.RawSubjectPublicKeyInfo,
		FingerprintMD5:     hashutil.MD5Hex(c.Raw),
		FingerprintSHA1:    hashutil.SHA1Hex(c.Raw),
		FingerprintSHA256:  hashutil.SHA256Hex(c.Raw),
	}
}

// rdnSequence 将标识名转为有序 RDN 属性/值对
func rdnSequence(name pkix.Name) []RDN {
	rdns := make([]RDN, 0, len(name.Names))
	for _, attr := range name.Names {
		attrType := attr.Type.String()
		if known, ok := rdnOIDNames[attrType]; ok {
			attrType = known
		}
		value, ok := attr.Value.(string)
		if !ok {
			continue
		}
		rdns = append(rdns, RDN{Type: attrType, Value: value})
	}
	return rdns
}

// SubjectString 以 "CN=x, O=y" 形式渲染主题
func (c Certificate) SubjectString() string {
	return RDNString(c.Subject)
}

// IssuerString 以 "CN=x, O=y" 形式渲染颁发者
func (c Certificate) IssuerString() string {
	return RDNString(c.Issuer)
}

// RDNString 渲染 RDN 序列为 "CN=x, O=y" 形式
func RDNString(rdns []RDN) string {
	parts := make([]string, 0, len(rdns))
	for _, rdn := range rdns {
		parts = append(parts, rdn.Type+"="+rdn.Value)
	}
	return strings.Join(parts, ", ")
}
