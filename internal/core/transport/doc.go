// Package transport 实现传输层管理
//
// Manager 持有所有启用的传输（TCP、WebSocket），按 CanDial 为地址选择传输。
//
// 子包：
//   - tcp: TCP 传输
//   - websocket: WebSocket 传输（gorilla/websocket）
package transport
