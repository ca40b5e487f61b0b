// Package meshnode 提供点对点发布订阅覆盖网络节点
//
// 节点生成或加载 Ed25519 身份，在 TCP 与 WebSocket 地址上监听，
// 每条连接经 Noise 握手加密并由 yamux 多路复用；通过引导节点和
// Kademlia DHT 发现对端，并在 gossip mesh 上按主题交换去重后的消息。
//
// # 快速开始
//
//	node, err := meshnode.Start(ctx,
//	    meshnode.WithIdentityKeyFile("node.key"),
//	    meshnode.WithListenAddrs("/ip4/0.0.0.0/tcp/4001", "/ip4/0.0.0.0/tcp/4002/ws"),
//	    meshnode.WithBootstrapPeers("/ip4/10.0.0.1/tcp/4001/p2p/<peer-id>"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer node.Close()
//
//	sub, _ := node.Subscribe("chat")
//	res, _ := node.Publish(ctx, "chat", []byte("hello"))
//	fmt.Println("delivered to", res.DeliveredToPeers, "peers")
//
//	msg, _ := sub.Next(ctx)
//
// # 分层
//
//	┌───────────────────────────────────────────────┐
//	│  Node（本包）        New / Start / Close         │
//	├───────────────────────────────────────────────┤
//	│  协议层   pubsub · identify · ping               │
//	│  发现层   bootstrap · dht · dnsaddr              │
//	├───────────────────────────────────────────────┤
//	│  核心层   host · swarm · connmgr · peerstore     │
//	│           upgrader（noise + yamux）· transport   │
//	└───────────────────────────────────────────────┘
//
// 组件由 go.uber.org/fx 装配，见 fx.go。
//
// # 错误语义
//
// 单次拨号、握手或查找的失败只影响该次操作。发布到零个对端返回
// DeliveredToPeers == 0 且无错误；连接丢失后由引导服务按定时器重试。
package meshnode

// Version 版本号
const Version = "0.1.0"
