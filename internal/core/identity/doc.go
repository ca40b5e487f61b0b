// Package identity 提供节点身份管理
//
// 身份模块负责：
//   - Ed25519 密钥对生成
//   - PeerID 派生（SHA-256(序列化公钥)）
//   - 身份持久化（PEM 文件，原子写入，权限 0600）
//
// 加载规则：
//   - 路径为空：生成临时身份，不落盘
//   - 文件不存在：生成新身份并保存
//   - 文件损坏：返回错误，不会静默覆盖
package identity
