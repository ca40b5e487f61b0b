package identity

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-meshnode/pkg/lib/crypto"
)

// Config 身份配置
type Config struct {
	// KeyFile PEM 私钥文件路径，为空时使用临时身份
	KeyFile string

	// PrivateKey 直接注入的私钥，优先于 KeyFile
	PrivateKey crypto.PrivateKey
}

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config *Config `optional:"true"`
}

// ProvideIdentity 提供节点身份
//
// 优先级：PrivateKey > KeyFile > 临时身份
func ProvideIdentity(input ModuleInput) (*Identity, error) {
	cfg := Config{}
	if input.Config != nil {
		cfg = *input.Config
	}
	if cfg.PrivateKey != nil {
		return New(cfg.PrivateKey)
	}
	return LoadOrCreate(cfg.KeyFile)
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(ProvideIdentity),
	)
}
