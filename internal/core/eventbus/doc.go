// Package eventbus 实现类型化事件总线
//
// 事件类型是封闭枚举 types.EventType，订阅按类型索引，不使用反射。
//
// 使用示例：
//
//	bus := eventbus.NewBus()
//	sub, _ := bus.Subscribe(types.EventConnectionOpened)
//	defer sub.Close()
//	for evt := range sub.Out() {
//	    opened := evt.(types.ConnectionOpened)
//	    ...
//	}
//
// Emit 永不阻塞：订阅者缓冲区满时事件被丢弃并计数，
// 每丢弃 100 个事件打印一次慢消费者警告。
package eventbus
