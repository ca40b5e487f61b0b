// Package connmgr 实现连接管理器
//
// # 核心功能
//
// 1. 水位控制 - 自动回收多余连接
//   - LowWater: 目标连接数（默认 5）
//   - HighWater: 触发回收阈值（默认 10）
//   - 当连接数超过 HighWater 时，回收至 LowWater
//   - 低于 LowWater 时 NeedsPeers 返回 true，由 bootstrap 补充节点
//
// 2. 连接保护 - 保护关键连接不被回收
//   - 受保护的连接不会被自动回收
//   - 支持多个保护标签
//
// 3. 优先级管理 - 基于标签的优先级
//   - 总分 = 所有标签权重之和
//   - 回收时优先关闭低分连接
//
// 4. 保护期 - 新连接在 GracePeriod 内尽量不回收
//   - 只有回收保护期外的连接仍无法降到 HighWater 时才动用保护期内的连接
//
// # 快速开始
//
//	mgr, err := connmgr.New(connmgr.DefaultConfig(), swarm)
//	if err != nil {
//	    return err
//	}
//	mgr.Start()
//	defer mgr.Close()
//
//	mgr.TagPeer(peerID, connmgr.TagBootstrap, 50)
//	mgr.Protect(peerID, "important")
package connmgr
