package hashutil

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
)

// Digests 一组常用摘要（十六进制编码）
type Digests struct {
	MD5    string `json:"md5"`
	SHA1   string `json:"sha1"`
	SHA256 string `json:"sha256"`
	SHA512 string `json:"sha512"`
}

// MD5Hex 计算 MD5 摘要
func MD5Hex(data []byte) string {
	return fmt.Sprintf("%x", md5.Sum(data))
}

// SHA1Hex 计算 SHA-1 摘要
func SHA1Hex(data []byte) string {
	return fmt.Sprintf("%x", sha1.Sum(data))
}

// SHA256Hex 计算 SHA-256 摘要
func SHA256Hex(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// SHA512Hex 计算 SHA-512 摘要
func SHA512Hex(data []byte) string {
	return fmt.Sprintf("%x", sha512.Sum512(data))
}

// DigestAll 一次性计算全部摘要
func DigestAll(data []byte) Digests {
	return Digests{
		MD5:    MD5Hex(data),
		SHA1:   SHA1Hex(data),
		SHA256: SHA256Hex(data),
		SHA512: SHA512Hex(data),
	}
}
