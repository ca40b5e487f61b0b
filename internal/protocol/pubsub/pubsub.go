package pubsub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-meshnode/internal/core/connmgr"
	"github.com/dep2p/go-meshnode/internal/core/metrics"
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/crypto"
	"github.com/dep2p/go-meshnode/pkg/lib/log"
	"github.com/dep2p/go-meshnode/pkg/lib/proto"
	pb "github.com/dep2p/go-meshnode/pkg/lib/proto/gossipsub"
	"github.com/dep2p/go-meshnode/pkg/types"
)

var logger = log.Logger("protocol/pubsub")

// handlerIdleTimeout 入站流两次 RPC 之间的最长空闲
const handlerIdleTimeout = time.Minute

// Option pubsub 选项
type Option func(*PubSub)

// WithClock 设置时钟（测试用）
func WithClock(clk clock.Clock) Option {
	return func(ps *PubSub) {
		ps.clock = clk
	}
}

// WithMetrics 设置指标收集
func WithMetrics(m *metrics.Metrics) Option {
	return func(ps *PubSub) {
		ps.metrics = m
	}
}

// WithConnManager 为 mesh 邻居打标签，避免被裁剪
func WithConnManager(cm pkgif.ConnManager) Option {
	return func(ps *PubSub) {
		ps.connmgr = cm
	}
}

// peerState 一个已连接节点
type peerState struct {
	id       types.PeerID
	outbound bool

	// topics 对端宣告订阅的主题
	topics map[string]struct{}

	queue  chan *pb.RPC
	ctx    context.Context
	cancel context.CancelFunc
}

// send 非阻塞入队，队列满时丢弃
func (st *peerState) send(rpc *pb.RPC) bool {
	select {
	case st.queue <- rpc:
		return true
	default:
		logger.Debug("发送队列已满，丢弃 RPC", "peer", st.id.ShortString())
		return false
	}
}

// ============================================================================
//                              PubSub
// ============================================================================

// PubSub gossip 发布订阅服务
type PubSub struct {
	host    pkgif.Host
	priv    crypto.PrivateKey
	self    types.PeerID
	cfg     Config
	clock   clock.Clock
	metrics *metrics.Metrics
	connmgr pkgif.ConnManager

	seen     *seenCache
	mcache   *messageCache
	limiters *peerLimiters
	notifee  *pkgif.NotifyBundle
	seqno    atomic.Uint64

	mu      sync.Mutex
	peers   map[types.PeerID]*peerState
	subs    map[string]map[*Subscription]struct{}
	mesh    *meshState
	started bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ pkgif.PubSub = (*PubSub)(nil)

// New 创建 pubsub 服务
//
// SignMessages 开启时 priv 不能为空。
func New(h pkgif.Host, priv crypto.PrivateKey, cfg Config, opts ...Option) (*PubSub, error) {
	if h == nil {
		return nil, errors.New("pubsub: host is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SignMessages && priv == nil {
		return nil, crypto.ErrNilPrivateKey
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps := &PubSub{
		host:     h,
		priv:     priv,
		self:     h.ID(),
		cfg:      cfg,
		clock:    clock.New(),
		seen:     newSeenCache(cfg.SeenCacheSize, cfg.SeenTTL),
		mcache:   newMessageCache(cfg.HistoryGossip, cfg.HistoryLength),
		limiters: newPeerLimiters(cfg.InboundRPCRate, cfg.InboundRPCBurst),
		peers:    make(map[types.PeerID]*peerState),
		subs:     make(map[string]map[*Subscription]struct{}),
		mesh:     newMeshState(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(ps)
	}
	// 序列号从当前时间开始，重启后不会与对端已见缓存中的 ID 冲突
	ps.seqno.Store(uint64(ps.clock.Now().UnixNano())) // #nosec G115 -- wall clock is positive
	ps.notifee = &pkgif.NotifyBundle{
		ConnectedF:    ps.connected,
		DisconnectedF: ps.disconnected,
	}
	return ps, nil
}

// Start 注册协议处理器并启动心跳
func (ps *PubSub) Start() error {
	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return ErrClosed
	}
	if ps.started {
		ps.mu.Unlock()
		return nil
	}
	ps.started = true
	ps.wg.Add(1)
	ps.mu.Unlock()

	ps.host.SetStreamHandler(ProtocolID, ps.handleStream)
	ps.host.Network().Notify(ps.notifee)
	for _, c := range ps.host.Network().Conns() {
		ps.connected(c)
	}

	go ps.heartbeatLoop()
	logger.Info("PubSub 服务已启动", "protocol", string(ProtocolID))
	return nil
}

// Close 停止心跳与发送协程，取消全部订阅
func (ps *PubSub) Close() error {
	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return nil
	}
	ps.closed = true
	started := ps.started
	for _, subs := range ps.subs {
		for sub := range subs {
			sub.once.Do(func() { close(sub.done) })
		}
	}
	ps.subs = make(map[string]map[*Subscription]struct{})
	for _, st := range ps.peers {
		st.cancel()
	}
	ps.mu.Unlock()

	ps.cancel()
	if started {
		ps.host.Network().StopNotify(ps.notifee)
		ps.host.RemoveStreamHandler(ProtocolID)
	}
	ps.wg.Wait()
	logger.Info("PubSub 服务已停止")
	return nil
}

// ============================================================================
//                              订阅
// ============================================================================

// Subscribe 订阅主题
//
// 首个订阅会加入主题：向所有节点宣告 SUBSCRIBE，并从已知的主题节点中 GRAFT 最多 D 个。
func (ps *PubSub) Subscribe(topic string) (pkgif.TopicSubscription, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return nil, ErrClosed
	}

	sub := newSubscription(ps, topic, ps.cfg.SubscriptionBuffer)
	subs, ok := ps.subs[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		ps.subs[topic] = subs
	}
	subs[sub] = struct{}{}
	if !ok {
		ps.joinLocked(topic)
	}
	return sub, nil
}

func (ps *PubSub) joinLocked(topic string) {
	announce := &pb.RPC{Subscriptions: []*pb.SubOpts{{Subscribe: true, TopicId: topic}}}
	for _, st := range ps.peers {
		st.send(announce)
	}

	now := ps.clock.Now()
	var cands []types.PeerID
	for _, p := range ps.topicPeersLocked(topic) {
		if !ps.mesh.backedOff(topic, p, now) {
			cands = append(cands, p)
		}
	}
	grafted := ps.mesh.join(topic, cands, ps.cfg.D)
	graft := &pb.RPC{Control: &pb.ControlMessage{Graft: []*pb.ControlGraft{{TopicId: topic}}}}
	for _, p := range grafted {
		ps.tagMeshLocked(p)
		if st := ps.peers[p]; st != nil {
			st.send(graft)
		}
	}
	logger.Info("加入主题", "topic", topic, "mesh", len(grafted))
}

// unsubscribe 移除订阅，最后一个订阅取消时退出主题
func (ps *PubSub) unsubscribe(sub *Subscription) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	subs, ok := ps.subs[sub.topic]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) > 0 {
		return
	}
	delete(ps.subs, sub.topic)
	ps.leaveLocked(sub.topic)
}

func (ps *PubSub) leaveLocked(topic string) {
	announce := &pb.RPC{Subscriptions: []*pb.SubOpts{{Subscribe: false, TopicId: topic}}}
	for _, st := range ps.peers {
		st.send(announce)
	}

	until := ps.clock.Now().Add(ps.cfg.UnsubscribeBackoff)
	prune := &pb.RPC{Control: &pb.ControlMessage{Prune: []*pb.ControlPrune{{
		TopicId: topic,
		Backoff: backoffSeconds(ps.cfg.UnsubscribeBackoff),
	}}}}
	for _, p := range ps.mesh.leave(topic) {
		ps.mesh.setBackoff(topic, p, until)
		ps.untagMeshLocked(p)
		if st := ps.peers[p]; st != nil {
			st.send(prune)
		}
	}
	logger.Info("退出主题", "topic", topic)
}

// ============================================================================
//                              发布
// ============================================================================

// Publish 发布消息
//
// 返回消息实际发往的节点数。没有节点时返回 {0} 且不报错，
// 除非关闭了 AllowPublishToZeroPeers。
func (ps *PubSub) Publish(ctx context.Context, topic string, data []byte) (types.PublishResult, error) {
	if topic == "" {
		return types.PublishResult{}, ErrEmptyTopic
	}
	if len(data) > ps.cfg.MaxMessageSize {
		return types.PublishResult{}, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(data), ps.cfg.MaxMessageSize)
	}
	msg, err := ps.newMessage(topic, data)
	if err != nil {
		return types.PublishResult{}, err
	}
	return ps.PublishMessage(ctx, msg)
}

// newMessage 分配序列号并签名
func (ps *PubSub) newMessage(topic string, data []byte) (*types.Message, error) {
	msg := &types.Message{
		From:  ps.self,
		Topic: topic,
		Seqno: ps.seqno.Add(1),
		Data:  data,
	}
	if ps.cfg.SignMessages {
		if err := signMessage(ps.priv, msg); err != nil {
			return nil, fmt.Errorf("pubsub: sign message: %w", err)
		}
	}
	return msg, nil
}

// PublishMessage 发布已构造的消息
//
// 同一消息可以重复发布：对端按 ID 去重，本地订阅者只收到一次。
func (ps *PubSub) PublishMessage(ctx context.Context, msg *types.Message) (types.PublishResult, error) {
	if msg == nil {
		return types.PublishResult{}, ErrInvalidMessage
	}
	if msg.Topic == "" {
		return types.PublishResult{}, ErrEmptyTopic
	}
	if len(msg.Data) > ps.cfg.MaxMessageSize {
		return types.PublishResult{}, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(msg.Data), ps.cfg.MaxMessageSize)
	}
	if err := ctx.Err(); err != nil {
		return types.PublishResult{}, err
	}
	if ps.isClosed() {
		return types.PublishResult{}, ErrClosed
	}

	m := *msg
	if ps.cfg.SignMessages && len(m.Signature) == 0 {
		if m.From != ps.self {
			return types.PublishResult{}, fmt.Errorf("%w: cannot sign for %s", ErrInvalidSignature, m.From.ShortString())
		}
		if err := signMessage(ps.priv, &m); err != nil {
			return types.PublishResult{}, fmt.Errorf("pubsub: sign message: %w", err)
		}
	}

	id := m.ID()
	pm := toWire(&m)
	if ps.seen.add(id) {
		ps.mcache.put(id, pm)
		ps.deliverLocal(&m, ps.self)
	}

	rpc := &pb.RPC{Publish: []*pb.Message{pm}}
	n := 0
	for _, st := range ps.publishTargets(m.Topic, m.From) {
		if st.send(rpc) {
			n++
		}
	}
	ps.metrics.ObservePublish()
	ps.metrics.ObserveForward(n)
	logger.Debug("发布消息", "topic", m.Topic, "id", id.String(), "peers", n)

	if n == 0 && !ps.cfg.AllowPublishToZeroPeers {
		return types.PublishResult{}, ErrNoPeers
	}
	return types.PublishResult{DeliveredToPeers: n}, nil
}

// publishTargets 选择发布目标
//
// FloodPublish 时为全部主题节点；否则已加入主题用 mesh，未加入用 fanout。
func (ps *PubSub) publishTargets(topic string, origin types.PeerID) []*peerState {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	var ids []types.PeerID
	switch {
	case ps.cfg.FloodPublish:
		ids = ps.topicPeersLocked(topic)
	case ps.mesh.joined(topic):
		ids = ps.mesh.meshPeers(topic)
	default:
		ids = ps.mesh.fanoutPeers(topic, ps.topicPeersLocked(topic), ps.cfg.D, ps.clock.Now())
	}

	out := make([]*peerState, 0, len(ids))
	for _, p := range ids {
		if p == origin || p == ps.self {
			continue
		}
		if st := ps.peers[p]; st != nil {
			out = append(out, st)
		}
	}
	return out
}

// ============================================================================
//                              接收
// ============================================================================

// handleStream 读取入站 RPC 直到对端关闭写方向
func (ps *PubSub) handleStream(s pkgif.Stream) {
	defer s.Close()
	from := s.Conn().RemotePeer()

	for {
		_ = s.SetReadDeadline(time.Now().Add(handlerIdleTimeout))
		data, err := proto.ReadFramed(s, maxRPCSize)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("读取 RPC 失败", "peer", from.ShortString(), "error", err)
				_ = s.Reset()
			}
			return
		}
		if !ps.limiters.allow(from) {
			logger.Debug("入站 RPC 超过速率限制，丢弃", "peer", from.ShortString())
			continue
		}

		var rpc pb.RPC
		if err := rpc.Unmarshal(data); err != nil {
			logger.Debug("无效的 RPC", "peer", from.ShortString(), "error", err)
			_ = s.Reset()
			return
		}
		ps.handleRPC(from, &rpc)
	}
}

func (ps *PubSub) handleRPC(from types.PeerID, rpc *pb.RPC) {
	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return
	}
	// 连接已断开时 disconnected 可能先于此处执行，不能重新登记该节点
	if _, known := ps.peers[from]; !known && ps.host.Network().Connectedness(from) != pkgif.Connected {
		ps.mu.Unlock()
		logger.Debug("发送方已断开，丢弃 RPC", "peer", from.ShortString())
		return
	}
	st := ps.addPeerLocked(from, false)
	for _, sub := range rpc.Subscriptions {
		ps.handleSubOptsLocked(st, sub)
	}

	var (
		prunes []*pb.ControlPrune
		iwant  *pb.ControlIWant
	)
	if ctl := rpc.Control; ctl != nil {
		prunes = ps.handleGraftLocked(st, ctl.Graft)
		ps.handlePruneLocked(from, ctl.Prune)
		iwant = ps.handleIHaveLocked(ctl.Ihave)
	}
	ps.mu.Unlock()

	for _, pm := range rpc.Publish {
		ps.handleMessage(from, pm)
	}

	var reply pb.RPC
	if rpc.Control != nil {
		reply.Publish = ps.handleIWant(rpc.Control.Iwant)
	}
	if len(prunes) > 0 || iwant != nil {
		reply.Control = &pb.ControlMessage{Prune: prunes}
		if iwant != nil {
			reply.Control.Iwant = []*pb.ControlIWant{iwant}
		}
	}
	if len(reply.Publish) > 0 || !reply.Control.IsEmpty() {
		st.send(&reply)
	}
}

func (ps *PubSub) handleSubOptsLocked(st *peerState, sub *pb.SubOpts) {
	if sub.TopicId == "" {
		return
	}
	if sub.Subscribe {
		st.topics[sub.TopicId] = struct{}{}
		return
	}
	delete(st.topics, sub.TopicId)
	if ps.mesh.remove(sub.TopicId, st.id) {
		ps.untagMeshLocked(st.id)
	}
	if peers, ok := ps.mesh.fanout[sub.TopicId]; ok {
		delete(peers, st.id)
	}
}

// handleMessage 验证、去重、投递并转发一条消息
func (ps *PubSub) handleMessage(from types.PeerID, pm *pb.Message) {
	if len(pm.Data) > ps.cfg.MaxMessageSize {
		logger.Debug("消息过大，丢弃", "peer", from.ShortString(), "size", len(pm.Data))
		return
	}
	msg, err := fromWire(pm)
	if err != nil {
		logger.Debug("无效消息", "peer", from.ShortString(), "error", err)
		return
	}

	id := msg.ID()
	if ps.seen.has(id) {
		ps.metrics.ObserveDuplicate()
		return
	}
	if ps.cfg.SignMessages || len(msg.Signature) > 0 {
		if err := verifyMessage(ps.host.Peerstore(), msg); err != nil {
			logger.Debug("消息签名验证失败", "peer", from.ShortString(), "origin", msg.From.ShortString(), "error", err)
			return
		}
	}
	if !ps.seen.add(id) {
		ps.metrics.ObserveDuplicate()
		return
	}

	ps.mcache.put(id, pm)
	ps.deliverLocal(msg, from)
	ps.forward(msg, pm, from)
}

// deliverLocal 投递给本地订阅者，远端消息同时发出 MessageReceived 事件
func (ps *PubSub) deliverLocal(msg *types.Message, receivedFrom types.PeerID) {
	ps.mu.Lock()
	subs := make([]*Subscription, 0, len(ps.subs[msg.Topic]))
	for sub := range ps.subs[msg.Topic] {
		subs = append(subs, sub)
	}
	ps.mu.Unlock()
	if len(subs) == 0 {
		return
	}

	for _, sub := range subs {
		if !sub.push(msg) {
			logger.Warn("订阅缓冲已满，丢弃消息", "topic", msg.Topic, "id", msg.ID().String())
		}
	}
	ps.metrics.ObserveDelivery()

	if receivedFrom == ps.self {
		return
	}
	if bus := ps.host.EventBus(); bus != nil {
		bus.Emit(types.NewMessageReceived(msg, receivedFrom))
	}
}

// forward 转发给 mesh 邻居，排除发送方与原始发布者
func (ps *PubSub) forward(msg *types.Message, pm *pb.Message, from types.PeerID) {
	ps.mu.Lock()
	var targets []*peerState
	for _, p := range ps.mesh.meshPeers(msg.Topic) {
		if p == from || p == msg.From {
			continue
		}
		if st := ps.peers[p]; st != nil {
			targets = append(targets, st)
		}
	}
	ps.mu.Unlock()

	rpc := &pb.RPC{Publish: []*pb.Message{pm}}
	n := 0
	for _, st := range targets {
		if st.send(rpc) {
			n++
		}
	}
	ps.metrics.ObserveForward(n)
}

// ============================================================================
//                              节点管理
// ============================================================================

func (ps *PubSub) connected(c pkgif.Connection) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return
	}
	ps.addPeerLocked(c.RemotePeer(), c.Direction() == types.DirOutbound)
}

func (ps *PubSub) disconnected(c pkgif.Connection) {
	p := c.RemotePeer()
	if ps.host.Network().Connectedness(p) == pkgif.Connected {
		return
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	st, ok := ps.peers[p]
	if !ok {
		return
	}
	st.cancel()
	delete(ps.peers, p)
	ps.mesh.removePeer(p)
	ps.untagMeshLocked(p)
	ps.limiters.remove(p)
	logger.Debug("节点离开", "peer", p.ShortString())
}

// addPeerLocked 记录节点并启动发送协程，新节点会收到本地订阅快照
func (ps *PubSub) addPeerLocked(p types.PeerID, outbound bool) *peerState {
	if st, ok := ps.peers[p]; ok {
		return st
	}

	ctx, cancel := context.WithCancel(ps.ctx)
	st := &peerState{
		id:       p,
		outbound: outbound,
		topics:   make(map[string]struct{}),
		queue:    make(chan *pb.RPC, ps.cfg.PeerQueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	ps.peers[p] = st
	ps.wg.Add(1)
	go ps.writeLoop(st)

	if len(ps.subs) > 0 {
		snapshot := &pb.RPC{}
		for _, topic := range ps.topicsLocked() {
			snapshot.Subscriptions = append(snapshot.Subscriptions, &pb.SubOpts{Subscribe: true, TopicId: topic})
		}
		st.send(snapshot)
	}
	logger.Debug("新节点", "peer", p.ShortString(), "outbound", outbound)
	return st
}

// writeLoop 按序发送节点队列中的 RPC
func (ps *PubSub) writeLoop(st *peerState) {
	defer ps.wg.Done()
	for {
		select {
		case <-st.ctx.Done():
			return
		case rpc := <-st.queue:
			if err := ps.sendRPC(st.ctx, st.id, rpc); err != nil && st.ctx.Err() == nil {
				logger.Debug("发送 RPC 失败", "peer", st.id.ShortString(), "error", err)
			}
		}
	}
}

// sendRPC 为一个 RPC 打开新流，写入后等待对端处理完毕关闭流
func (ps *PubSub) sendRPC(ctx context.Context, p types.PeerID, rpc *pb.RPC) error {
	ctx, cancel := context.WithTimeout(ctx, ps.cfg.SendTimeout)
	defer cancel()

	s, err := ps.host.NewStream(ctx, p, ProtocolID)
	if err != nil {
		return err
	}
	defer s.Close()

	if d, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(d)
	}
	if err := proto.WriteFramed(s, rpc.Marshal()); err != nil {
		_ = s.Reset()
		return err
	}
	if err := s.CloseWrite(); err != nil {
		_ = s.Reset()
		return err
	}
	// 对端读到 EOF 并处理完后关闭流
	_, _ = io.Copy(io.Discard, s)
	return nil
}

func (ps *PubSub) tagMeshLocked(p types.PeerID) {
	if ps.connmgr != nil {
		ps.connmgr.TagPeer(p, connmgr.TagPubSubMesh, connmgr.MeshWeight)
	}
}

// untagMeshLocked 节点不在任何 mesh 中时移除标签
func (ps *PubSub) untagMeshLocked(p types.PeerID) {
	if ps.connmgr != nil && !ps.mesh.inAnyMesh(p) {
		ps.connmgr.UntagPeer(p, connmgr.TagPubSubMesh)
	}
}

func (ps *PubSub) isClosed() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.closed
}

// ============================================================================
//                              查询
// ============================================================================

// Topics 返回本地订阅的主题
func (ps *PubSub) Topics() []string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.topicsLocked()
}

func (ps *PubSub) topicsLocked() []string {
	topics := make([]string, 0, len(ps.subs))
	for t := range ps.subs {
		topics = append(topics, t)
	}
	slices.Sort(topics)
	return topics
}

// ListPeers 返回宣告订阅了主题的节点，topic 为空时返回全部 pubsub 节点
func (ps *PubSub) ListPeers(topic string) []types.PeerID {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if topic != "" {
		return sortPeers(ps.topicPeersLocked(topic))
	}
	var out []types.PeerID
	for p, st := range ps.peers {
		if len(st.topics) > 0 {
			out = append(out, p)
		}
	}
	return sortPeers(out)
}

// MeshPeers 返回主题的 mesh 邻居
func (ps *PubSub) MeshPeers(topic string) []types.PeerID {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return sortPeers(ps.mesh.meshPeers(topic))
}

func (ps *PubSub) topicPeersLocked(topic string) []types.PeerID {
	var out []types.PeerID
	for p, st := range ps.peers {
		if _, ok := st.topics[topic]; ok {
			out = append(out, p)
		}
	}
	return out
}

func sortPeers(peers []types.PeerID) []types.PeerID {
	slices.SortFunc(peers, func(a, b types.PeerID) int { return a.Compare(b) })
	return peers
}
