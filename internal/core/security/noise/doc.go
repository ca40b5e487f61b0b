// Package noise 实现 Noise XX 安全通道
//
// 握手流程：
//
//	-> e
//	<- e, ee, s, es, payload
//	-> s, se, payload
//
// payload 携带 Ed25519 身份公钥，以及身份私钥对
// "noise-libp2p-static-key:" + Noise 静态公钥 的签名，
// 从而把一次性的 Curve25519 静态密钥绑定到节点身份上。
//
// 握手与数据帧均使用 2 字节大端长度前缀，单帧密文最大 65535 字节。
package noise
