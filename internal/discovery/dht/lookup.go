package dht

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// ============================================================================
//                              迭代查找状态机
// ============================================================================

// queryFunc 向 p 查询距离 target 最近的节点
type queryFunc func(ctx context.Context, p types.AddrInfo, target types.PeerID) ([]types.AddrInfo, error)

// lookupConfig 单次查找的参数
type lookupConfig struct {
	self         types.PeerID
	k            int
	alpha        int
	maxRounds    int
	queryTimeout time.Duration
}

// lookupHooks 查找过程回调，均在查找协程中顺序调用
type lookupHooks struct {
	// onSuccess 节点成功响应
	onSuccess func(p types.AddrInfo)
	// onFailure 节点查询失败
	onFailure func(p types.PeerID, err error)
	// onLearned 从响应中学到新节点
	onLearned func(p types.AddrInfo)
}

type candidateState int

const (
	candidateUnqueried candidateState = iota
	candidateQuerying
	candidateQueried
	candidateFailed
)

type candidate struct {
	info  types.AddrInfo
	state candidateState
}

type queryResult struct {
	peer  types.PeerID
	peers []types.AddrInfo
	err   error
}

// lookup 一次迭代查找
//
//	INIT → QUERYING → CONVERGED | TIMEOUT
type lookup struct {
	id     string
	cfg    lookupConfig
	target types.PeerID
	query  queryFunc
	hooks  lookupHooks

	state      types.LookupState
	candidates map[types.PeerID]*candidate
	order      []types.PeerID
	rounds     int
	queried    int
}

func newLookup(cfg lookupConfig, target types.PeerID, query queryFunc, hooks lookupHooks) *lookup {
	return &lookup{
		id:         uuid.NewString(),
		cfg:        cfg,
		target:     target,
		query:      query,
		hooks:      hooks,
		state:      types.LookupInit,
		candidates: make(map[types.PeerID]*candidate),
	}
}

// run 从 seeds 开始执行查找
//
// 截止时间到达时返回部分结果和 nil 错误；被取消时返回部分结果和 ctx.Err()。
func (l *lookup) run(ctx context.Context, seeds []types.AddrInfo) (*types.LookupResult, error) {
	start := time.Now()
	for _, s := range seeds {
		l.add(s)
	}
	if len(l.order) == 0 {
		l.state = types.LookupConverged
		return l.result(start), ErrEmptyRoutingTable
	}

	l.state = types.LookupQuerying
	for l.rounds < l.cfg.maxRounds {
		if ctx.Err() != nil {
			return l.timeout(ctx, start)
		}

		batch := l.nextBatch()
		if len(batch) == 0 {
			break
		}
		l.rounds++

		best := l.closest()
		succeeded, done := l.runRound(ctx, batch)
		if !done || ctx.Err() != nil {
			return l.timeout(ctx, start)
		}
		if succeeded > 0 && l.closest() == best {
			break
		}
	}

	l.state = types.LookupConverged
	return l.result(start), nil
}

// runRound 并行查询一批节点，返回成功数；ctx 结束时 done 为 false
func (l *lookup) runRound(ctx context.Context, batch []*candidate) (succeeded int, done bool) {
	rctx, cancel := context.WithTimeout(ctx, l.cfg.queryTimeout)
	defer cancel()

	results := make(chan queryResult, len(batch))
	for _, c := range batch {
		c.state = candidateQuerying
		go func(info types.AddrInfo) {
			peers, err := l.query(rctx, info, l.target)
			results <- queryResult{peer: info.ID, peers: peers, err: err}
		}(c.info)
	}

	for pending := len(batch); pending > 0; pending-- {
		select {
		case r := <-results:
			// 查找本身结束导致的失败不计入节点
			if r.err != nil && ctx.Err() != nil {
				l.candidates[r.peer].state = candidateUnqueried
				continue
			}
			if l.handle(r) {
				succeeded++
			}
		case <-ctx.Done():
			l.resetQuerying(batch)
			return succeeded, false
		}
	}
	return succeeded, true
}

func (l *lookup) resetQuerying(batch []*candidate) {
	for _, c := range batch {
		if c.state == candidateQuerying {
			c.state = candidateUnqueried
		}
	}
}

// handle 合并一个查询结果
func (l *lookup) handle(r queryResult) bool {
	c := l.candidates[r.peer]
	if r.err != nil {
		c.state = candidateFailed
		if l.hooks.onFailure != nil {
			l.hooks.onFailure(r.peer, r.err)
		}
		return false
	}

	c.state = candidateQueried
	l.queried++
	if l.hooks.onSuccess != nil {
		l.hooks.onSuccess(c.info)
	}
	for _, p := range r.peers {
		if l.add(p) && l.hooks.onLearned != nil {
			l.hooks.onLearned(p)
		}
	}
	return true
}

// add 加入候选节点，返回是否为新节点
func (l *lookup) add(info types.AddrInfo) bool {
	if info.ID == l.cfg.self || info.ID.IsEmpty() {
		return false
	}
	if c, ok := l.candidates[info.ID]; ok {
		if len(info.Addrs) > 0 {
			c.info.Addrs = ma.Unique(slices.Concat(c.info.Addrs, info.Addrs))
		}
		return false
	}
	l.candidates[info.ID] = &candidate{info: info}

	i, _ := slices.BinarySearchFunc(l.order, info.ID, func(a, b types.PeerID) int {
		return CompareDistance(a, b, l.target)
	})
	l.order = slices.Insert(l.order, i, info.ID)
	return true
}

// nextBatch 在 K 个最近的可用候选中选出最多 α 个未查询节点
func (l *lookup) nextBatch() []*candidate {
	var batch []*candidate
	seen := 0
	for _, id := range l.order {
		c := l.candidates[id]
		if c.state == candidateFailed {
			continue
		}
		seen++
		if seen > l.cfg.k {
			break
		}
		if c.state == candidateUnqueried {
			batch = append(batch, c)
			if len(batch) == l.cfg.alpha {
				break
			}
		}
	}
	return batch
}

// closest 返回当前最近的可用候选
func (l *lookup) closest() types.PeerID {
	for _, id := range l.order {
		if l.candidates[id].state != candidateFailed {
			return id
		}
	}
	return types.EmptyPeerID
}

func (l *lookup) timeout(ctx context.Context, start time.Time) (*types.LookupResult, error) {
	l.state = types.LookupTimedOut
	res := l.result(start)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, nil
	}
	return res, ctx.Err()
}

// result 返回 K 个最近的可用候选
func (l *lookup) result(start time.Time) *types.LookupResult {
	res := &types.LookupResult{
		ID:       l.id,
		Target:   l.target,
		State:    l.state,
		Rounds:   l.rounds,
		Queried:  l.queried,
		Duration: time.Since(start),
	}
	for _, id := range l.order {
		c := l.candidates[id]
		if c.state == candidateFailed {
			continue
		}
		res.Peers = append(res.Peers, c.info)
		if len(res.Peers) == l.cfg.k {
			break
		}
	}
	return res
}
