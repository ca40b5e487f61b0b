package dnsaddr

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/miekg/dns"
	"go.uber.org/multierr"

	"github.com/dep2p/go-meshnode/pkg/lib/log"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

var logger = log.Logger("discovery/dnsaddr")

// Resolver /dnsaddr 地址解析器
type Resolver struct {
	cfg         Config
	nameservers []string
	udp         *dns.Client
	tcp         *dns.Client
	cache       *expirable.LRU[string, []ma.Multiaddr]
}

// NewResolver 创建解析器
func NewResolver(cfg Config) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	servers := cfg.Nameservers
	if len(servers) == 0 {
		cc, err := dns.ClientConfigFromFile(cfg.ResolvConf)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", cfg.ResolvConf, err)
		}
		for _, s := range cc.Servers {
			servers = append(servers, net.JoinHostPort(s, cc.Port))
		}
	}
	if len(servers) == 0 {
		return nil, ErrNoNameserver
	}

	r := &Resolver{
		cfg:         cfg,
		nameservers: servers,
		udp:         &dns.Client{Net: "udp", Timeout: cfg.Timeout},
		tcp:         &dns.Client{Net: "tcp", Timeout: cfg.Timeout},
	}
	if cfg.CacheTTL > 0 {
		r.cache = expirable.NewLRU[string, []ma.Multiaddr](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return r, nil
}

// Resolve 将 /dnsaddr/<domain>[/p2p/<id>] 展开为节点地址
//
// 只返回带 /p2p 组件的地址，并按 PeerID 合并。
func (r *Resolver) Resolve(ctx context.Context, addr ma.Multiaddr) ([]types.AddrInfo, error) {
	domain, err := addr.ValueForProtocol(ma.P_DNSADDR)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotDNSAddr, addr)
	}
	_, want := ma.SplitPeer(addr)

	addrs, err := r.resolve(ctx, domain, r.cfg.MaxDepth)
	if err != nil {
		return nil, err
	}

	var infos []types.AddrInfo
	index := make(map[types.PeerID]int)
	for _, a := range addrs {
		if !matchPeer(a, want) {
			continue
		}
		info, err := types.AddrInfoFromP2PAddr(a)
		if err != nil {
			logger.Debug("忽略无 PeerID 的 dnsaddr 记录", "addr", a.String())
			continue
		}
		if i, ok := index[info.ID]; ok {
			infos[i].Addrs = append(infos[i].Addrs, info.Addrs...)
			continue
		}
		index[info.ID] = len(infos)
		infos = append(infos, info)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoRecords, addr)
	}
	return infos, nil
}

// ResolveAll 解析多个 /dnsaddr 地址，返回成功部分与聚合错误
func (r *Resolver) ResolveAll(ctx context.Context, addrs []ma.Multiaddr) ([]types.AddrInfo, error) {
	var (
		out  []types.AddrInfo
		errs error
	)
	for _, a := range addrs {
		infos, err := r.Resolve(ctx, a)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out = append(out, infos...)
	}
	return out, errs
}

func (r *Resolver) resolve(ctx context.Context, domain string, depth int) ([]ma.Multiaddr, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("%w at %s", ErrMaxDepthExceeded, domain)
	}
	name := queryName(domain)
	if r.cache != nil {
		if cached, ok := r.cache.Get(name); ok {
			return cached, nil
		}
	}

	txts, err := r.lookupTXT(ctx, name)
	if err != nil {
		return nil, err
	}

	var (
		out     []ma.Multiaddr
		lastErr error
	)
	for _, txt := range txts {
		a, err := ParseRecord(txt)
		if err != nil {
			logger.Debug("跳过无效 TXT 记录", "name", name, "err", err)
			continue
		}
		if !ma.HasProtocol(a, ma.P_DNSADDR) {
			out = append(out, a)
			continue
		}

		nested, _ := a.ValueForProtocol(ma.P_DNSADDR)
		_, want := ma.SplitPeer(a)
		sub, err := r.resolve(ctx, nested, depth-1)
		if err != nil {
			lastErr = err
			continue
		}
		for _, s := range sub {
			if matchPeer(s, want) {
				out = append(out, s)
			}
		}
	}

	out = ma.Unique(out)
	if len(out) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("%w for %s", ErrNoRecords, name)
	}
	if r.cache != nil {
		r.cache.Add(name, out)
	}
	return out, nil
}

// lookupTXT 依次尝试各名称服务器查询 TXT 记录
func (r *Resolver) lookupTXT(ctx context.Context, name string) ([]string, error) {
	q := new(dns.Msg)
	q.SetQuestion(dns.Fqdn(name), dns.TypeTXT)

	var errs error
	for _, server := range r.nameservers {
		resp, _, err := r.udp.ExchangeContext(ctx, q, server)
		if err == nil && resp.Truncated {
			resp, _, err = r.tcp.ExchangeContext(ctx, q, server)
		}
		if err != nil {
			errs = multierr.Append(errs, &types.TransportError{Op: "dns", Addr: server, Err: err})
			if ctx.Err() != nil {
				break
			}
			continue
		}

		switch resp.Rcode {
		case dns.RcodeSuccess:
		case dns.RcodeNameError:
			return nil, fmt.Errorf("%w for %s", ErrNoRecords, name)
		default:
			errs = multierr.Append(errs, fmt.Errorf("%s: rcode %s", server, dns.RcodeToString[resp.Rcode]))
			continue
		}

		var txts []string
		for _, rr := range resp.Answer {
			if t, ok := rr.(*dns.TXT); ok {
				txts = append(txts, strings.Join(t.Txt, ""))
			}
		}
		return txts, nil
	}
	if errs == nil {
		errs = ErrNoNameserver
	}
	return nil, fmt.Errorf("lookup %s: %w", name, errs)
}
