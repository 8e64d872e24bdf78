// valnet 守护进程
//
// 组装并运行一个验证者网络连接核心实例。身份密钥每次启动
// 随机生成（服务端单向认证、PeerID 从公钥派生），主要用于
// 演示装配流程与本地联调。
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	valnet "github.com/dep2p/go-valnet"
	"github.com/dep2p/go-valnet/config"
	"github.com/dep2p/go-valnet/internal/core/identity"
	"github.com/dep2p/go-valnet/pkg/lib/crypto"
	"github.com/dep2p/go-valnet/pkg/lib/log"
	"github.com/dep2p/go-valnet/pkg/types"
)

var logger = log.Logger("cmd/valnet")

func main() {
	var (
		listenAddr = flag.String("listen", "/ip4/0.0.0.0/tcp/9000", "监听地址")
		configPath = flag.String("config", "", "JSON 配置文件路径（留空使用默认配置）")
		mutual     = flag.Bool("mutual", false, "启用相互认证（验证人模式）")
	)
	flag.Parse()

	if err := run(*listenAddr, *configPath, *mutual); err != nil {
		fmt.Fprintln(os.Stderr, "valnet:", err)
		os.Exit(1)
	}
}

func run(listenAddr, configPath string, mutual bool) error {
	cfg := config.NewConfig()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		cfg, err = config.FromJSON(data)
		if err != nil {
			return err
		}
	}

	priv, pub, err := crypto.GenerateKeyPair(nil)
	if err != nil {
		return fmt.Errorf("generate identity key: %w", err)
	}
	_, signKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate signing key: %w", err)
	}

	role := types.RoleFullNode
	mode := identity.ServerOnly(priv)
	peerID := types.EmptyPeerID
	if mutual {
		role = types.RoleValidator
		mode = identity.Mutual(priv)
		// 演示部署没有外部账户体系，直接用公钥派生的标识
		peerID = crypto.PeerIDFromPublicKey(pub)
	}

	builder := valnet.NewBuilder(peerID, role, listenAddr, cfg)
	builder.SetAuthenticationMode(mode)
	builder.SetSigningKey(signKey)
	if err := builder.AddConnectivityManager(); err != nil {
		return err
	}
	if err := builder.AddConnectionMonitoring(); err != nil {
		return err
	}
	if err := builder.AddGossipDiscovery(); err != nil {
		return err
	}

	app := fx.New(
		valnet.Module(builder),
		valnet.FxLogger(),
		fx.Invoke(func(n *valnet.Network) {
			logger.Info("节点就绪",
				"peer", n.PeerID().String(),
				"role", n.Role().String(),
				"advertised", n.AdvertisedAddress().String())
		}),
	)
	app.Run()
	return app.Err()
}
