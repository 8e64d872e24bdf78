package trust

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-valnet/pkg/lib/crypto"
	"github.com/dep2p/go-valnet/pkg/types"
)

func testPeerID(n byte) types.PeerID {
	var id types.PeerID
	id[0] = n
	return id
}

func testKeys(n byte) crypto.NetworkPublicKeys {
	var pub crypto.PublicKey
	pub[0] = n
	return crypto.NetworkPublicKeys{IdentityKey: pub}
}

func TestRegistryReplaceSemantics(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, 0, r.Len())

	peerA, peerB, peerC := testPeerID(1), testPeerID(2), testPeerID(3)

	r.Replace(map[types.PeerID]crypto.NetworkPublicKeys{
		peerA: testKeys(1),
		peerB: testKeys(2),
	})
	assert.Equal(t, 2, r.Len())
	assert.True(t, r.Contains(peerA))

	// 整体替换：旧条目不合并，peerA 被驱逐
	r.Replace(map[types.PeerID]crypto.NetworkPublicKeys{
		peerB: testKeys(2),
		peerC: testKeys(3),
	})
	assert.False(t, r.Contains(peerA), "整体替换必须驱逐旧条目")
	assert.True(t, r.Contains(peerB))
	assert.True(t, r.Contains(peerC))

	keys, ok := r.PublicKeys(peerC)
	require.True(t, ok)
	assert.Equal(t, testKeys(3), keys)

	t.Log("✅ 整体替换语义（不合并、支持驱逐）")
}

func TestRegistryCopiesInput(t *testing.T) {
	r := NewRegistry()

	input := map[types.PeerID]crypto.NetworkPublicKeys{testPeerID(1): testKeys(1)}
	r.Replace(input)

	// 调用方之后的修改不影响注册表
	delete(input, testPeerID(1))
	input[testPeerID(9)] = testKeys(9)
	assert.True(t, r.Contains(testPeerID(1)))
	assert.False(t, r.Contains(testPeerID(9)))

	// 快照也是副本
	snap := r.Snapshot()
	delete(snap, testPeerID(1))
	assert.True(t, r.Contains(testPeerID(1)))

	t.Log("✅ 注册表与调用方不共享底层映射")
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Replace(map[types.PeerID]crypto.NetworkPublicKeys{
					testPeerID(byte(i)): testKeys(byte(i)),
				})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				// 快照永远是完整的单条目集合，不会观察到部分更新
				snap := r.Snapshot()
				assert.LessOrEqual(t, len(snap), 1)
				r.Contains(testPeerID(byte(i)))
			}
		}()
	}
	wg.Wait()

	t.Log("✅ 并发读写无部分更新")
}
