// Package metrics 提供 meshnode 的 Prometheus 指标
//
// 所有指标注册在节点私有的 prometheus.Registry 上，多个节点可在同一进程
// 内共存（测试中常见）。各组件通过可为 nil 的 *Metrics 记录指标，
// nil 接收者上的方法均为空操作。
//
// # 指标一览
//
//	meshnode_connections_open{direction}        当前打开的连接
//	meshnode_dials_total{result}                出站拨号结果
//	meshnode_pubsub_published_total             本地发布的消息
//	meshnode_pubsub_delivered_total             投递给本地订阅者的消息
//	meshnode_pubsub_duplicates_total            被去重丢弃的消息
//	meshnode_pubsub_forwarded_total             转发给 mesh 节点的消息份数
//	meshnode_dht_lookups_total{state}           DHT 查找的终止状态
//	meshnode_dht_lookup_rounds                  DHT 查找轮数分布
//	meshnode_connmgr_trimmed_total              连接管理器关闭的节点数
//
// # 快速开始
//
//	m := metrics.New()
//	sw.Notify(m.Notifier())
//	http.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
package metrics
