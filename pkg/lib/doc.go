// Package lib 包含基础设施工具库
//
// 本目录包含与架构组件无关的通用工具库：
//
//   - crypto: 密码学原语（Ed25519 密钥、签名、PeerID 派生）
//   - multiaddr: 多地址格式解析
//   - log: 日志封装
//
// # 使用示例
//
//	import (
//	    "github.com/dep2p/go-meshnode/pkg/lib/crypto"
//	    "github.com/dep2p/go-meshnode/pkg/lib/log"
//	    "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
//	)
package lib
