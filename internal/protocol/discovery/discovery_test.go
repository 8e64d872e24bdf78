package discovery

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-valnet/internal/core/connectivity"
	"github.com/dep2p/go-valnet/internal/core/trust"
	"github.com/dep2p/go-valnet/pkg/lib/crypto"
	"github.com/dep2p/go-valnet/pkg/types"
)

// testSigner 生成一个带签名密钥的测试节点
func testSigner(t *testing.T, n byte) (types.PeerID, ed25519.PrivateKey, crypto.NetworkPublicKeys) {
	t.Helper()

	var id types.PeerID
	id[0] = n

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return id, priv, crypto.NetworkPublicKeys{SigningKey: pub}
}

func testAddrs(t *testing.T) []types.NetworkAddress {
	t.Helper()
	return []types.NetworkAddress{
		types.MustParseNetworkAddress("/ip4/10.0.0.1/tcp/9000"),
	}
}

func newTestService(t *testing.T) (*Service, *trust.Registry, chan connectivity.Request) {
	t.Helper()

	local, priv, _ := testSigner(t, 99)
	registry := trust.NewRegistry()
	connReqs := make(chan connectivity.Request, 16)

	svc, err := New(DefaultConfig(), clock.NewMock(), local, testAddrs(t),
		priv, registry, connReqs, nil)
	require.NoError(t, err)
	return svc, registry, connReqs
}

// ============================================================================
//                              公告签名测试
// ============================================================================

func TestNoteSignAndVerify(t *testing.T) {
	peerA, priv, keys := testSigner(t, 1)

	note := Note{
		PeerID: peerA,
		Addrs:  testAddrs(t),
		Epoch:  7,
	}
	note.Sign(priv)
	require.NoError(t, note.Verify(keys.SigningKey))

	// 篡改任一字段都使签名失效
	tampered := note
	tampered.Epoch = 8
	assert.ErrorIs(t, tampered.Verify(keys.SigningKey), ErrBadSignature)

	tampered = note
	tampered.Addrs = []types.NetworkAddress{
		types.MustParseNetworkAddress("/ip4/6.6.6.6/tcp/6666"),
	}
	assert.ErrorIs(t, tampered.Verify(keys.SigningKey), ErrBadSignature)

	// 错误的公钥无法通过校验
	_, _, otherKeys := testSigner(t, 2)
	assert.ErrorIs(t, note.Verify(otherKeys.SigningKey), ErrBadSignature)

	t.Log("✅ 公告签名覆盖全部字段")
}

// ============================================================================
//                              入站公告验证测试
// ============================================================================

func TestServiceAcceptsValidNote(t *testing.T) {
	svc, registry, connReqs := newTestService(t)

	peerA, privA, keysA := testSigner(t, 1)
	registry.Replace(map[types.PeerID]crypto.NetworkPublicKeys{peerA: keysA})

	note := Note{PeerID: peerA, Addrs: testAddrs(t), Epoch: 1}
	note.Sign(privA)

	require.NoError(t, svc.acceptNote(context.Background(), note))

	select {
	case req := <-connReqs:
		update, ok := req.(connectivity.UpdateAddresses)
		require.True(t, ok)
		assert.Equal(t, peerA, update.PeerID)
		assert.Equal(t, note.Addrs, update.Addrs)
	default:
		t.Fatal("有效公告未转交连接调和引擎")
	}

	t.Log("✅ 有效公告转化为地址更新")
}

func TestServiceRejectsUnknownSigner(t *testing.T) {
	svc, _, connReqs := newTestService(t)

	peerA, privA, _ := testSigner(t, 1)
	note := Note{PeerID: peerA, Addrs: testAddrs(t), Epoch: 1}
	note.Sign(privA)

	assert.ErrorIs(t, svc.acceptNote(context.Background(), note), ErrUnknownSigner)
	assert.Empty(t, connReqs)

	t.Log("✅ 非合格签名者的公告被拒绝")
}

func TestServiceRejectsBadSignature(t *testing.T) {
	svc, registry, connReqs := newTestService(t)

	peerA, _, keysA := testSigner(t, 1)
	_, privB, _ := testSigner(t, 2)
	registry.Replace(map[types.PeerID]crypto.NetworkPublicKeys{peerA: keysA})

	// 用别人的私钥冒签
	note := Note{PeerID: peerA, Addrs: testAddrs(t), Epoch: 1}
	note.Sign(privB)

	assert.ErrorIs(t, svc.acceptNote(context.Background(), note), ErrBadSignature)
	assert.Empty(t, connReqs)

	t.Log("✅ 签名无效的公告被拒绝")
}

func TestServiceRejectsStaleEpoch(t *testing.T) {
	svc, registry, connReqs := newTestService(t)

	peerA, privA, keysA := testSigner(t, 1)
	registry.Replace(map[types.PeerID]crypto.NetworkPublicKeys{peerA: keysA})

	newer := Note{PeerID: peerA, Addrs: testAddrs(t), Epoch: 5}
	newer.Sign(privA)
	require.NoError(t, svc.acceptNote(context.Background(), newer))
	<-connReqs

	// 同纪元与旧纪元都被拒绝
	same := Note{PeerID: peerA, Addrs: testAddrs(t), Epoch: 5}
	same.Sign(privA)
	assert.ErrorIs(t, svc.acceptNote(context.Background(), same), ErrStaleNote)

	older := Note{PeerID: peerA, Addrs: testAddrs(t), Epoch: 3}
	older.Sign(privA)
	assert.ErrorIs(t, svc.acceptNote(context.Background(), older), ErrStaleNote)
	assert.Empty(t, connReqs)

	t.Log("✅ 纪元不新的公告被拒绝")
}

// ============================================================================
//                              自身公告测试
// ============================================================================

func TestServiceLocalNoteEpochAdvances(t *testing.T) {
	svc, _, _ := newTestService(t)

	first := svc.LocalNote()
	assert.Equal(t, uint64(1), first.Epoch)

	next := []types.NetworkAddress{
		types.MustParseNetworkAddress("/ip4/10.0.0.2/tcp/9001"),
	}
	svc.UpdateLocalAddresses(next)

	second := svc.LocalNote()
	assert.Equal(t, uint64(2), second.Epoch)
	assert.Equal(t, next, second.Addrs)
	assert.NotEqual(t, first.Signature, second.Signature, "新公告必须重新签名")

	t.Log("✅ 自身公告纪元单调递增并重签")
}

func TestServiceRequiresConnectivity(t *testing.T) {
	local, priv, _ := testSigner(t, 99)

	_, err := New(DefaultConfig(), clock.NewMock(), local, testAddrs(t),
		priv, trust.NewRegistry(), nil, nil)
	assert.Error(t, err, "缺少连接调和引擎应拒绝创建")

	t.Log("✅ 无连接调和引擎时装配失败")
}
