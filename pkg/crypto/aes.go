// Package crypto 提供对称加密与密钥派生
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize AES-256 密钥长度
	KeySize = 32
	// SaltSize DeriveKey 使用的盐长度
	SaltSize = 16
	// DefaultIterations pbkdf2 迭代次数
	DefaultIterations = 210000
)

var (
	ErrInvalidKeySize     = errors.New("crypto: key must be 32 bytes")
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
	ErrDecryptFailed      = errors.New("crypto: decrypt failed")
)

// AES 提供 AES-256-GCM 加密解密功能
type AES struct {
	gcm cipher.AEAD
}

// NewAES 创建 AES 加密器，key 必须是 32 字节
func NewAES(key []byte) (*AES, error) {
	if len(key) != KeySize {
		return nil, errors.Wrapf(ErrInvalidKeySize, "got %d bytes", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "crypto: create cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "crypto: create gcm")
	}
	return &AES{gcm: gcm}, nil
}

// NewAESFromPassphrase 由口令和盐派生密钥后创建加密器
func NewAESFromPassphrase(passphrase string, salt []byte) (*AES, error) {
	return NewAES(DeriveKey(passphrase, salt, DefaultIterations))
}

// EncryptBytes 加密，nonce 放在密文前面，aad 可为 nil
func (a *AES) EncryptBytes(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, a.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, "crypto: generate nonce")
	}
	return a.gcm.Seal(nonce, nonce, plaintext, aad), nil
}

// DecryptBytes 解密 EncryptBytes 的输出
func (a *AES) DecryptBytes(ciphertext, aad []byte) ([]byte, error) {
	nonceSize := a.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrCiphertextTooShort
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := a.gcm.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "crypto: open"), ErrDecryptFailed)
	}
	return plaintext, nil
}

// EncryptString 加密字符串，返回 base64 编码的密文
func (a *AES) EncryptString(plaintext string) (string, error) {
	data, err := a.EncryptBytes([]byte(plaintext), nil)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecryptString 解密 base64 编码的密文
func (a *AES) DecryptString(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "crypto: decode base64"), ErrDecryptFailed)
	}
	plaintext, err := a.DecryptBytes(data, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// DeriveKey 使用 PBKDF2-SHA256 从口令派生 32 字节密钥
func DeriveKey(passphrase string, salt []byte, iterations int) []byte {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return pbkdf2.Key([]byte(passphrase), salt, iterations, KeySize, sha256.New)
}

// GenerateSalt 生成随机盐
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, errors.Wrap(err, "crypto: generate salt")
	}
	return salt, nil
}

// GenerateAESKey 生成随机 AES-256 密钥
func GenerateAESKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, errors.Wrap(err, "crypto: generate key")
	}
	return key, nil
}
