package identity

import (
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dep2p/go-meshnode/pkg/lib/crypto"
	"github.com/dep2p/go-meshnode/pkg/lib/log"
)

var logger = log.Logger("core/identity")

// PEM 类型常量
const pemTypeEd25519Private = "ED25519 PRIVATE KEY"

// 错误定义
var (
	// ErrInvalidPEM 无效的 PEM 数据
	ErrInvalidPEM = errors.New("invalid PEM data")
	// ErrKeyNotFound 密钥文件不存在
	ErrKeyNotFound = errors.New("key not found")
)

// ============================================================================
//                              加载或创建
// ============================================================================

// LoadOrCreate 从 path 加载身份，不存在时生成并保存
//
// path 为空时返回临时身份。
func LoadOrCreate(path string) (*Identity, error) {
	if path == "" {
		id, err := Generate()
		if err != nil {
			return nil, err
		}
		logger.Info("使用临时身份", "peerID", id.PeerID().ShortString())
		return id, nil
	}

	priv, err := LoadPrivateKeyPEM(path)
	switch {
	case err == nil:
		id, err := New(priv)
		if err != nil {
			return nil, err
		}
		logger.Info("已加载身份", "peerID", id.PeerID().ShortString(), "path", path)
		return id, nil
	case !errors.Is(err, ErrKeyNotFound):
		return nil, fmt.Errorf("加载身份失败 %s: %w", path, err)
	}

	id, err := Generate()
	if err != nil {
		return nil, err
	}
	if err := SavePrivateKeyPEM(id.PrivateKey(), path); err != nil {
		return nil, fmt.Errorf("保存身份失败 %s: %w", path, err)
	}
	logger.Info("已生成并保存新身份", "peerID", id.PeerID().ShortString(), "path", path)
	return id, nil
}

// ============================================================================
//                              私钥持久化
// ============================================================================

// SavePrivateKeyPEM 保存私钥到 PEM 文件
//
// 原子写入（临时文件 + rename），权限 0600。
func SavePrivateKeyPEM(key crypto.PrivateKey, path string) error {
	if key == nil {
		return crypto.ErrNilPrivateKey
	}
	if key.Type() != crypto.KeyTypeEd25519 {
		return crypto.ErrUnsupportedKeyType
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("创建目录失败: %w", err)
		}
	}
	data := pem.EncodeToMemory(&pem.Block{
		Type:  pemTypeEd25519Private,
		Bytes: key.Raw(),
	})
	return atomicWriteFile(path, data, 0o600)
}

// LoadPrivateKeyPEM 从 PEM 文件加载私钥
func LoadPrivateKeyPEM(path string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidPEM
	}
	if block.Type != pemTypeEd25519Private {
		return nil, fmt.Errorf("%w: %s", crypto.ErrUnsupportedKeyType, block.Type)
	}
	return crypto.UnmarshalEd25519PrivateKey(block.Bytes)
}

// ============================================================================
//                              原子写操作
// ============================================================================

// atomicWriteFile 原子写文件
//
// 任何步骤失败时目标文件保持不变。
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("同步临时文件失败: %w", err)
	}
	if err := tmpFile.Chmod(perm); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("设置文件权限失败: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("原子 rename 失败: %w", err)
	}

	success = true
	return nil
}
