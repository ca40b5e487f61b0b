package dht

import (
	"bytes"
	"math/bits"
	"math/rand/v2"
	"slices"

	"github.com/dep2p/go-meshnode/pkg/types"
)

// Distance 返回两个 PeerID 的 XOR 距离（大端序）
func Distance(a, b types.PeerID) types.PeerID {
	var d types.PeerID
	for i := range d {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// CompareDistance 比较 a、b 到 target 的距离
//
// 返回 -1 表示 a 更近，1 表示 b 更近，0 表示相等。
func CompareDistance(a, b, target types.PeerID) int {
	da := Distance(a, target)
	db := Distance(b, target)
	return bytes.Compare(da[:], db[:])
}

// CommonPrefixLen 返回共同前缀位数
func CommonPrefixLen(a, b types.PeerID) int {
	for i := range a {
		if x := a[i] ^ b[i]; x != 0 {
			return i*8 + bits.LeadingZeros8(x)
		}
	}
	return KeySize
}

// BucketIndex 返回 remote 在 local 路由表中的桶索引
func BucketIndex(local, remote types.PeerID) int {
	cpl := CommonPrefixLen(local, remote)
	if cpl >= KeySize {
		return KeySize - 1
	}
	return cpl
}

// SortByDistance 按到 target 的距离升序排序（原地）
func SortByDistance(ids []types.PeerID, target types.PeerID) {
	slices.SortFunc(ids, func(a, b types.PeerID) int {
		return CompareDistance(a, b, target)
	})
}

// randomIDWithCPL 生成与 local 恰好共享 cpl 位前缀的随机 ID
func randomIDWithCPL(local types.PeerID, cpl int) types.PeerID {
	var id types.PeerID
	for i := 0; i < len(id); i += 8 {
		v := rand.Uint64()
		for j := 0; j < 8 && i+j < len(id); j++ {
			id[i+j] = byte(v >> (8 * j))
		}
	}
	if cpl >= KeySize {
		return local
	}

	// 复制前 cpl 位，翻转第 cpl 位
	full := cpl / 8
	copy(id[:full], local[:full])
	rem := cpl % 8
	mask := byte(0xff) << (8 - rem)
	id[full] = (local[full] & mask) | (id[full] &^ mask)
	flip := byte(0x80) >> rem
	id[full] = (id[full] &^ flip) | (^local[full] & flip)
	return id
}
