// Package security 提供安全通道模块
//
// 当前仅支持 Noise XX（见 noise 子包）。
package security

import (
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-meshnode/internal/core/identity"
	"github.com/dep2p/go-meshnode/internal/core/security/noise"
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
)

// Config 安全层配置
type Config struct {
	// HandshakeTimeout 握手超时，0 使用默认值
	HandshakeTimeout time.Duration
}

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Identity *identity.Identity
	Config   *Config `optional:"true"`
}

// ProvideSecureTransport 提供 Noise 安全传输
func ProvideSecureTransport(input ModuleInput) (pkgif.SecureTransport, error) {
	var opts []noise.Option
	if input.Config != nil {
		opts = append(opts, noise.WithHandshakeTimeout(input.Config.HandshakeTimeout))
	}
	return noise.New(input.Identity.PrivateKey(), opts...)
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("security",
		fx.Provide(ProvideSecureTransport),
	)
}
