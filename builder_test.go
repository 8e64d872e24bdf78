package valnet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-valnet/config"
	"github.com/dep2p/go-valnet/internal/core/connectivity"
	"github.com/dep2p/go-valnet/internal/core/identity"
	"github.com/dep2p/go-valnet/internal/protocol/discovery"
	"github.com/dep2p/go-valnet/internal/protocol/health"
	"github.com/dep2p/go-valnet/pkg/lib/crypto"
	"github.com/dep2p/go-valnet/pkg/types"
)

// fastConfig 为集成测试压缩各时间参数
func fastConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Connectivity.CheckInterval = config.Duration(20 * time.Millisecond)
	cfg.Connectivity.BackoffBase = config.Duration(10 * time.Millisecond)
	cfg.Connectivity.MaxConnectionDelay = config.Duration(100 * time.Millisecond)
	return cfg
}

func testKeyPair(t *testing.T) (crypto.PrivateKey, crypto.PublicKey) {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair(nil)
	require.NoError(t, err)
	return priv, pub
}

// ============================================================================
//                              装配校验测试
// ============================================================================

func TestBuildRequiresAuthMode(t *testing.T) {
	b := NewBuilder(types.EmptyPeerID, types.RoleFullNode, "/ip4/127.0.0.1/tcp/9000", nil)

	_, err := b.Build(context.Background())
	assert.ErrorIs(t, err, ErrNoAuthMode)

	t.Log("✅ 缺少认证模式时装配失败")
}

func TestBuildRejectsUnsupportedScheme(t *testing.T) {
	priv, _ := testKeyPair(t)

	b := NewBuilder(types.EmptyPeerID, types.RoleFullNode, "/udp/9000", nil)
	b.SetAuthenticationMode(identity.ServerOnly(priv))

	_, err := b.Build(context.Background())
	require.ErrorIs(t, err, ErrUnsupportedScheme)
	assert.True(t, strings.Contains(err.Error(), "udp"), "错误信息必须点名方案: %v", err)

	t.Log("✅ 不支持的地址方案被点名拒绝")
}

func TestBuildMutualRequiresPeerID(t *testing.T) {
	priv, _ := testKeyPair(t)

	b := NewBuilder(types.EmptyPeerID, types.RoleValidator, "/ip4/127.0.0.1/tcp/9000", nil)
	b.SetAuthenticationMode(identity.Mutual(priv))

	_, err := b.Build(context.Background())
	assert.ErrorIs(t, err, ErrPeerIDRequired)

	t.Log("✅ 相互认证缺少 PeerID 时装配失败")
}

func TestBuildDerivesPeerIDForServerOnly(t *testing.T) {
	priv, pub := testKeyPair(t)

	b := NewBuilder(types.EmptyPeerID, types.RoleFullNode, "/ip4/127.0.0.1/tcp/9000", nil)
	b.SetAuthenticationMode(identity.ServerOnly(priv))

	network, err := b.Build(context.Background())
	require.NoError(t, err)
	defer network.Close()

	assert.Equal(t, crypto.PeerIDFromPublicKey(pub), network.PeerID())

	t.Log("✅ 服务端单向认证从公钥派生 PeerID")
}

func TestBuildAppendsAuthSegments(t *testing.T) {
	priv, pub := testKeyPair(t)

	b := NewBuilder(types.EmptyPeerID, types.RoleFullNode, "/ip4/0.0.0.0/tcp/9000", nil)
	b.SetAuthenticationMode(identity.ServerOnly(priv))
	b.SetAdvertisedAddress("/ip4/203.0.113.7/tcp/9000")

	network, err := b.Build(context.Background())
	require.NoError(t, err)
	defer network.Close()

	advertised := network.AdvertisedAddress()
	assert.Equal(t, pub.Bytes(), advertised.IdentityPubKey())
	version, ok := advertised.HandshakeVersion()
	require.True(t, ok)
	assert.Equal(t, identity.HandshakeVersion, version)
	assert.Equal(t, "203.0.113.7", advertised.IP().String())

	t.Log("✅ 公告地址附带认证段")
}

func TestBuildOnlyOnce(t *testing.T) {
	priv, _ := testKeyPair(t)

	b := NewBuilder(types.EmptyPeerID, types.RoleFullNode, "/ip4/127.0.0.1/tcp/9000", nil)
	b.SetAuthenticationMode(identity.ServerOnly(priv))

	network, err := b.Build(context.Background())
	require.NoError(t, err)
	defer network.Close()

	_, err = b.Build(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyBuilt)

	_, _, err = b.AddProtocolHandler([]types.ProtocolID{"/test/1.0.0"}, 8, types.QueueDropOldest)
	assert.ErrorIs(t, err, ErrAlreadyBuilt)

	_, err = b.AddConnectionEventListener()
	assert.ErrorIs(t, err, ErrAlreadyBuilt)

	assert.ErrorIs(t, b.AddConnectivityManager(), ErrAlreadyBuilt)

	t.Log("✅ 构建后的配置调用全部被拒绝")
}

func TestGossipDiscoveryRequiresConnectivity(t *testing.T) {
	b := NewBuilder(types.EmptyPeerID, types.RoleFullNode, "/ip4/127.0.0.1/tcp/9000", nil)

	assert.ErrorIs(t, b.AddGossipDiscovery(), ErrConnectivityRequired)

	require.NoError(t, b.AddConnectivityManager())
	assert.NoError(t, b.AddGossipDiscovery())

	t.Log("✅ 地址发现依赖连接调和引擎")
}

func TestGossipDiscoveryRequiresSigningKey(t *testing.T) {
	priv, _ := testKeyPair(t)

	b := NewBuilder(types.EmptyPeerID, types.RoleFullNode, "/ip4/127.0.0.1/tcp/9000", nil)
	b.SetAuthenticationMode(identity.ServerOnly(priv))
	require.NoError(t, b.AddConnectivityManager())
	require.NoError(t, b.AddGossipDiscovery())

	_, err := b.Build(context.Background())
	assert.ErrorIs(t, err, ErrSigningKeyRequired)

	t.Log("✅ 启用发现但缺少签名密钥时装配失败")
}

func TestBuildRegistersProtocolHandlers(t *testing.T) {
	priv, _ := testKeyPair(t)
	_, signKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	b := NewBuilder(types.EmptyPeerID, types.RoleFullNode, "/ip4/127.0.0.1/tcp/9000", fastConfig())
	b.SetAuthenticationMode(identity.ServerOnly(priv))
	b.SetSigningKey(signKey)

	custom := types.ProtocolID("/valnet/test/1.0.0")
	_, _, err = b.AddProtocolHandler([]types.ProtocolID{custom}, 8, types.QueueDropOldest)
	require.NoError(t, err)
	require.NoError(t, b.AddConnectivityManager())
	require.NoError(t, b.AddConnectionMonitoring())
	require.NoError(t, b.AddGossipDiscovery())

	network, err := b.Build(context.Background())
	require.NoError(t, err)
	defer network.Close()

	// 装配期注册的协议集合决定哪些入站协议请求可路由
	protos := network.Protocols()
	assert.Contains(t, protos, custom)
	assert.Contains(t, protos, health.ProtocolID)
	assert.Contains(t, protos, discovery.ProtocolID)

	t.Log("✅ 注册的协议标识在启动后可查询")
}

// ============================================================================
//                              端到端集成测试
// ============================================================================

func TestNetworkConnectsToEligibleSeed(t *testing.T) {
	localPriv, localPub := testKeyPair(t)
	_, remotePub := testKeyPair(t)

	localID := crypto.PeerIDFromPublicKey(localPub)
	remoteID := crypto.PeerIDFromPublicKey(remotePub)

	remoteAddr := types.MustParseNetworkAddress("/ip4/10.0.0.2/tcp/9000").
		AppendAuthSegments(remotePub.Bytes(), identity.HandshakeVersion)

	b := NewBuilder(localID, types.RoleValidator, "/ip4/127.0.0.1/tcp/9000", fastConfig())
	b.SetAuthenticationMode(identity.Mutual(localPriv))
	b.SetEligiblePeers(map[types.PeerID]crypto.NetworkPublicKeys{
		localID:  {IdentityKey: localPub},
		remoteID: {IdentityKey: remotePub},
	})
	b.SetSeedPeers(map[types.PeerID][]types.NetworkAddress{
		remoteID: {remoteAddr},
	})
	require.NoError(t, b.AddConnectivityManager())

	network, err := b.Build(context.Background())
	require.NoError(t, err)
	defer network.Close()

	// 地址内固定的公钥与注册表一致，进程内握手应当成功
	require.Eventually(t, func() bool {
		return network.Gateway().Connected(remoteID)
	}, 3*time.Second, 10*time.Millisecond, "种子节点未被连接")
	assert.Equal(t, 1, network.ConnectionCount())

	t.Log("✅ 合格种子节点被自动连接")
}

func TestNetworkEvictsRemovedPeer(t *testing.T) {
	localPriv, localPub := testKeyPair(t)
	_, remotePub := testKeyPair(t)

	localID := crypto.PeerIDFromPublicKey(localPub)
	remoteID := crypto.PeerIDFromPublicKey(remotePub)

	remoteAddr := types.MustParseNetworkAddress("/ip4/10.0.0.2/tcp/9000").
		AppendAuthSegments(remotePub.Bytes(), identity.HandshakeVersion)

	b := NewBuilder(localID, types.RoleValidator, "/ip4/127.0.0.1/tcp/9000", fastConfig())
	b.SetAuthenticationMode(identity.Mutual(localPriv))
	b.SetEligiblePeers(map[types.PeerID]crypto.NetworkPublicKeys{
		localID:  {IdentityKey: localPub},
		remoteID: {IdentityKey: remotePub},
	})
	// 不作为种子：失格后期望集合中不再出现
	require.NoError(t, b.AddConnectivityManager())

	network, err := b.Build(context.Background())
	require.NoError(t, err)
	defer network.Close()

	// 经地址更新学到对端地址后连接建立
	require.NoError(t, network.UpdateEligiblePeers(context.Background(),
		map[types.PeerID]crypto.NetworkPublicKeys{
			localID:  {IdentityKey: localPub},
			remoteID: {IdentityKey: remotePub},
		}))
	require.NoError(t, injectAddresses(network, remoteID, remoteAddr))

	require.Eventually(t, func() bool {
		return network.Gateway().Connected(remoteID)
	}, 3*time.Second, 10*time.Millisecond)

	// 移出合格集合：连接被拆除
	require.NoError(t, network.UpdateEligiblePeers(context.Background(),
		map[types.PeerID]crypto.NetworkPublicKeys{
			localID: {IdentityKey: localPub},
		}))

	require.Eventually(t, func() bool {
		return !network.Gateway().Connected(remoteID)
	}, 3*time.Second, 10*time.Millisecond, "失格节点未被断开")

	t.Log("✅ 失格节点的连接被拆除")
}

func TestNetworkEventListenerObservesConnections(t *testing.T) {
	localPriv, localPub := testKeyPair(t)
	_, remotePub := testKeyPair(t)

	localID := crypto.PeerIDFromPublicKey(localPub)
	remoteID := crypto.PeerIDFromPublicKey(remotePub)

	b := NewBuilder(localID, types.RoleFullNode, "/ip4/127.0.0.1/tcp/9000", fastConfig())
	b.SetAuthenticationMode(identity.ServerOnly(localPriv))

	events, err := b.AddConnectionEventListener()
	require.NoError(t, err)

	network, err := b.Build(context.Background())
	require.NoError(t, err)
	defer network.Close()

	// 模拟远端入站连接
	inAddr := types.MustParseNetworkAddress("/ip4/10.0.0.9/tcp/9000")
	require.NoError(t, network.Gateway().AcceptInbound(remoteID, inAddr, remotePub))

	select {
	case notif := <-events:
		assert.Equal(t, remoteID, notif.PeerID)
		assert.Equal(t, types.EventConnected, notif.Event)
	case <-time.After(time.Second):
		t.Fatal("监听通道未收到连接事件")
	}

	t.Log("✅ 事件监听者观察到入站连接")
}

// injectAddresses 把已知地址直接提交给连接调和引擎
func injectAddresses(n *Network, peer types.PeerID, addrs ...types.NetworkAddress) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	select {
	case n.mgr.Requests() <- connectivity.UpdateAddresses{PeerID: peer, Addrs: addrs}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
