package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/livesync/pkg/crypto"
)

// fileAAD 绑定文件格式版本，防止密文被挪作他用
var fileAAD = []byte("livesync-token-store-v1")

type fileEnvelope struct {
	Salt string `json:"salt"`
	Data string `json:"data"`
}

// FileStore AES-GCM 加密的本地文件存储，密钥由口令经 PBKDF2 派生
type FileStore struct {
	path       string
	passphrase string
	accessKey  string
	refreshKey string

	mu     sync.Mutex
	salt   []byte
	cipher *crypto.AES
}

// NewFileStore 创建文件存储，文件不存在时在第一次 Save 时创建
func NewFileStore(path, passphrase, accessKey, refreshKey string) (*FileStore, error) {
	if path == "" {
		return nil, errors.Wrap(ErrInvalidConfig, "file store path is required")
	}
	if passphrase == "" {
		return nil, errors.Wrap(ErrInvalidConfig, "file store passphrase is required")
	}
	return &FileStore{
		path:       path,
		passphrase: passphrase,
		accessKey:  accessKey,
		refreshKey: refreshKey,
	}, nil
}

func (s *FileStore) Load(context.Context) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readLocked()
	if err != nil || entries == nil {
		return nil, err
	}
	return credentialFromEntries(entries, s.accessKey, s.refreshKey), nil
}

func (s *FileStore) Save(_ context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readLocked()
	if err != nil && !errors.Is(err, ErrStoreCorrupted) {
		return err
	}
	if entries == nil {
		entries = make(map[string]string, 2)
	}
	applyCredential(entries, cred, s.accessKey, s.refreshKey)
	return s.writeLocked(entries)
}

func (s *FileStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "auth: remove token file")
	}
	s.salt, s.cipher = nil, nil
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) readLocked() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "auth: read token file")
	}

	var env fileEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "auth: decode token file"), ErrStoreCorrupted)
	}
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "auth: decode salt"), ErrStoreCorrupted)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "auth: decode data"), ErrStoreCorrupted)
	}
	aes, err := s.cipherFor(salt)
	if err != nil {
		return nil, err
	}
	plain, err := aes.DecryptBytes(sealed, fileAAD)
	if err != nil {
		return nil, errors.Mark(err, ErrStoreCorrupted)
	}

	entries := make(map[string]string, 2)
	if err := json.Unmarshal(plain, &entries); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "auth: decode entries"), ErrStoreCorrupted)
	}
	return entries, nil
}

func (s *FileStore) writeLocked(entries map[string]string) error {
	if s.salt == nil {
		salt, err := crypto.GenerateSalt()
		if err != nil {
			return err
		}
		s.salt, s.cipher = salt, nil
	}
	aes, err := s.cipherFor(s.salt)
	if err != nil {
		return err
	}

	plain, err := json.Marshal(entries)
	if err != nil {
		return errors.Wrap(err, "auth: encode entries")
	}
	sealed, err := aes.EncryptBytes(plain, fileAAD)
	if err != nil {
		return err
	}
	out, err := json.Marshal(fileEnvelope{
		Salt: base64.StdEncoding.EncodeToString(s.salt),
		Data: base64.StdEncoding.EncodeToString(sealed),
	})
	if err != nil {
		return errors.Wrap(err, "auth: encode token file")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "auth: create token dir")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return errors.Wrap(err, "auth: write token file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "auth: replace token file")
	}
	return nil
}

// cipherFor 按盐派生密钥，同一个盐只派生一次
func (s *FileStore) cipherFor(salt []byte) (*crypto.AES, error) {
	if s.cipher != nil && string(salt) == string(s.salt) {
		return s.cipher, nil
	}
	aes, err := crypto.NewAESFromPassphrase(s.passphrase, salt)
	if err != nil {
		return nil, err
	}
	s.salt, s.cipher = salt, aes
	return aes, nil
}
