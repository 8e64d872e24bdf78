package health

import (
	"context"
	"errors"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-valnet/internal/core/gateway"
	"github.com/dep2p/go-valnet/pkg/types"
)

func testPeerID(n byte) types.PeerID {
	var id types.PeerID
	id[0] = n
	return id
}

func newTestChecker(t *testing.T, cfg Config) (*Checker, chan gateway.ConnectionRequest) {
	t.Helper()

	reqs := make(chan gateway.ConnectionRequest, 16)
	checker, err := New(cfg, clock.NewMock(),
		func(ctx context.Context, peer types.PeerID) error { return nil },
		gateway.NewRequestSender(reqs), nil)
	require.NoError(t, err)
	return checker, reqs
}

func TestCheckerTracksConnections(t *testing.T) {
	checker, _ := newTestChecker(t, DefaultConfig())

	peerA := testPeerID(1)
	checker.handleNotification(types.ConnectionNotification{
		PeerID: peerA, Event: types.EventConnected,
	})
	assert.Len(t, checker.peers, 1)

	checker.handleNotification(types.ConnectionNotification{
		PeerID: peerA, Event: types.EventDisconnected,
	})
	assert.Empty(t, checker.peers)

	t.Log("✅ 连接通知正确维护监控集合")
}

func TestCheckerDisconnectsAfterToleratedFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailuresTolerated = 3

	checker, reqs := newTestChecker(t, cfg)

	peerA := testPeerID(1)
	checker.handleNotification(types.ConnectionNotification{
		PeerID: peerA, Event: types.EventConnected,
	})

	pingErr := errors.New("ping timeout")

	// 容忍范围内的失败不触发断开
	for i := 0; i < cfg.FailuresTolerated; i++ {
		checker.handleResult(pingResult{peer: peerA, round: uint64(i + 1), err: pingErr})
		select {
		case <-reqs:
			t.Fatalf("第 %d 次失败不应触发断开", i+1)
		default:
		}
	}

	// 超限的一次失败触发断开
	checker.handleResult(pingResult{peer: peerA, round: 4, err: pingErr})

	select {
	case cmd := <-reqs:
		disc, ok := cmd.(gateway.DisconnectRequest)
		require.True(t, ok)
		assert.Equal(t, peerA, disc.PeerID)
	default:
		t.Fatal("超限失败后未发出断开命令")
	}
	assert.Empty(t, checker.peers, "断开后不再监控该节点")

	t.Log("✅ 连续失败超限触发断开")
}

func TestCheckerResetsCounterOnPong(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailuresTolerated = 2

	checker, reqs := newTestChecker(t, cfg)

	peerA := testPeerID(1)
	checker.handleNotification(types.ConnectionNotification{
		PeerID: peerA, Event: types.EventConnected,
	})

	pingErr := errors.New("ping timeout")
	checker.handleResult(pingResult{peer: peerA, round: 1, err: pingErr})
	checker.handleResult(pingResult{peer: peerA, round: 2, err: pingErr})
	require.Equal(t, 2, checker.peers[peerA].failures)

	// pong 成功清零计数
	checker.handleResult(pingResult{peer: peerA, round: 3, err: nil})
	assert.Equal(t, 0, checker.peers[peerA].failures)

	// 之后的失败重新从零累积
	checker.handleResult(pingResult{peer: peerA, round: 4, err: pingErr})
	checker.handleResult(pingResult{peer: peerA, round: 5, err: pingErr})
	select {
	case <-reqs:
		t.Fatal("计数清零后不应已超限")
	default:
	}

	t.Log("✅ pong 成功清零失败计数")
}

func TestCheckerResetsCounterOnReconnect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailuresTolerated = 5

	checker, _ := newTestChecker(t, cfg)

	peerA := testPeerID(1)
	checker.handleNotification(types.ConnectionNotification{
		PeerID: peerA, Event: types.EventConnected,
	})
	checker.handleResult(pingResult{peer: peerA, round: 1, err: errors.New("down")})
	require.Equal(t, 1, checker.peers[peerA].failures)

	// 断开再重连：全新状态
	checker.handleNotification(types.ConnectionNotification{
		PeerID: peerA, Event: types.EventDisconnected,
	})
	checker.handleNotification(types.ConnectionNotification{
		PeerID: peerA, Event: types.EventConnected,
	})
	assert.Equal(t, 0, checker.peers[peerA].failures)

	t.Log("✅ 重连后失败计数清零")
}

func TestCheckerIgnoresPreReconnectResults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailuresTolerated = 1

	checker, reqs := newTestChecker(t, cfg)

	peerA := testPeerID(1)
	checker.handleNotification(types.ConnectionNotification{
		PeerID: peerA, Event: types.EventConnected,
	})
	checker.round = 5

	// 断开再重连：重连前发起的 ping 此后才超时返回
	checker.handleNotification(types.ConnectionNotification{
		PeerID: peerA, Event: types.EventDisconnected,
	})
	checker.handleNotification(types.ConnectionNotification{
		PeerID: peerA, Event: types.EventConnected,
	})

	late := errors.New("ping timeout")
	checker.handleResult(pingResult{peer: peerA, round: 3, err: late})
	assert.Equal(t, 0, checker.peers[peerA].failures, "重连前的迟到失败不计数")
	select {
	case <-reqs:
		t.Fatal("迟到结果不应触发断开")
	default:
	}

	// 重连之后轮次的结果正常计数
	checker.handleResult(pingResult{peer: peerA, round: 6, err: late})
	assert.Equal(t, 1, checker.peers[peerA].failures)

	t.Log("✅ 重连前轮次的迟到结果作废")
}

func TestCheckerIgnoresStaleResults(t *testing.T) {
	checker, reqs := newTestChecker(t, DefaultConfig())

	// 结果到达时节点已断开：作废
	checker.handleResult(pingResult{peer: testPeerID(7), round: 1, err: errors.New("late")})
	assert.Empty(t, checker.peers)
	select {
	case <-reqs:
		t.Fatal("陈旧结果不应触发任何命令")
	default:
	}

	t.Log("✅ 陈旧 ping 结果被忽略")
}

func TestCheckerConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.PingInterval = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.PingTimeout = -1
	assert.Error(t, bad.Validate())

	_, err := New(cfg, clock.NewMock(), nil, gateway.RequestSender{}, nil)
	assert.Error(t, err, "缺少 ping 函数应拒绝创建")
}
