package types

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
)

// ============================================================================
//                              NetworkAddress - 统一地址类型
// ============================================================================

// 地址段协议名
const (
	// ProtocolIP4 IPv4 网络层
	ProtocolIP4 = "ip4"
	// ProtocolIP6 IPv6 网络层
	ProtocolIP6 = "ip6"
	// ProtocolTCP TCP 传输层
	ProtocolTCP = "tcp"
	// ProtocolMemory 进程内内存传输（测试与单进程部署）
	ProtocolMemory = "memory"
	// ProtocolNoiseIK 认证段：期望的远端 Noise-IK 身份公钥
	ProtocolNoiseIK = "noise-ik"
	// ProtocolHandshake 认证段：握手协议版本号
	ProtocolHandshake = "handshake"
)

// NetworkAddress 多段式网络地址（值对象）
//
// NetworkAddress 是 valnet 内部唯一的地址表示形式，
// 由网络层段、传输层段和可选的认证段组成。
// 两个不同的地址可以指向同一个节点身份（同一身份的不同网络位置）。
//
// 格式示例：
//   - /ip4/10.0.0.1/tcp/7180
//   - /ip6/::1/tcp/7180
//   - /memory/7180
//   - /ip4/10.0.0.1/tcp/7180/noise-ik/<Base58公钥>/handshake/1
//
// 认证段用于认证拨号：拨号方固定（pin）期望的远端身份公钥。
type NetworkAddress string

// NetworkAddress 错误定义
var (
	// ErrEmptyAddress 空地址
	ErrEmptyAddress = errors.New("empty network address")

	// ErrNotAddressFormat 不是地址格式（不以 / 开头）
	ErrNotAddressFormat = errors.New("not address format: must start with /")

	// ErrInvalidAddress 无效的地址格式
	ErrInvalidAddress = errors.New("invalid network address")

	// ErrUnsupportedScheme 不支持的网络+传输段组合
	//
	// 装配期遇到该错误视为致命配置错误。
	ErrUnsupportedScheme = errors.New("unsupported address scheme")
)

// ============================================================================
//                              解析/构建
// ============================================================================

// ParseNetworkAddress 严格解析 NetworkAddress
//
// 仅接受以下形式（可附加认证后缀 /noise-ik/<pubkey>/handshake/<ver>）：
//   - /ip4/<addr>/tcp/<port>
//   - /ip6/<addr>/tcp/<port>
//   - /memory/<port>
//
// 其他任何网络+传输段组合返回 ErrUnsupportedScheme，并在错误信息中
// 指明不被支持的 scheme。
func ParseNetworkAddress(s string) (NetworkAddress, error) {
	if s == "" {
		return "", ErrEmptyAddress
	}

	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "/") {
		return "", ErrNotAddressFormat
	}
	if strings.HasSuffix(s, "/") {
		return "", fmt.Errorf("%w: trailing slash in %q", ErrInvalidAddress, s)
	}

	parts := strings.Split(s, "/")[1:]
	if len(parts) < 2 {
		return "", fmt.Errorf("%w: too few segments in %q", ErrInvalidAddress, s)
	}

	rest, err := consumeBaseSegments(parts)
	if err != nil {
		return "", err
	}

	// 可选认证段
	if len(rest) > 0 {
		if len(rest) != 4 || rest[0] != ProtocolNoiseIK || rest[2] != ProtocolHandshake {
			return "", fmt.Errorf("%w: unexpected trailing segments in %q", ErrInvalidAddress, s)
		}
		if _, err := decodePubKeySegment(rest[1]); err != nil {
			return "", fmt.Errorf("%w: bad noise-ik key in %q: %v", ErrInvalidAddress, s, err)
		}
		if _, err := strconv.ParseUint(rest[3], 10, 8); err != nil {
			return "", fmt.Errorf("%w: bad handshake version in %q", ErrInvalidAddress, s)
		}
	}

	return NetworkAddress(s), nil
}

// consumeBaseSegments 校验网络层+传输层段，返回剩余段
func consumeBaseSegments(parts []string) ([]string, error) {
	switch parts[0] {
	case ProtocolIP4, ProtocolIP6:
		if len(parts) < 4 {
			return nil, fmt.Errorf("%w: %s requires /%s/<addr>/tcp/<port>", ErrInvalidAddress, parts[0], parts[0])
		}
		ip := net.ParseIP(parts[1])
		if ip == nil || (parts[0] == ProtocolIP4) != (ip.To4() != nil) {
			return nil, fmt.Errorf("%w: bad %s address %q", ErrInvalidAddress, parts[0], parts[1])
		}
		if parts[2] != ProtocolTCP {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, parts[0]+"/"+parts[2])
		}
		if err := validatePort(parts[3]); err != nil {
			return nil, err
		}
		return parts[4:], nil

	case ProtocolMemory:
		if err := validatePort(parts[1]); err != nil {
			return nil, err
		}
		return parts[2:], nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, parts[0])
	}
}

func validatePort(s string) error {
	port, err := strconv.Atoi(s)
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("%w: bad port %q", ErrInvalidAddress, s)
	}
	return nil
}

func decodePubKeySegment(s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(b))
	}
	return b, nil
}

// MustParseNetworkAddress 解析 NetworkAddress，失败时 panic
//
// 仅用于常量初始化或测试代码，生产代码应使用 ParseNetworkAddress。
func MustParseNetworkAddress(s string) NetworkAddress {
	addr, err := ParseNetworkAddress(s)
	if err != nil {
		panic(fmt.Sprintf("MustParseNetworkAddress(%q): %v", s, err))
	}
	return addr
}

// ParseNetworkAddressesStrict 严格解析字符串切片
//
// 遇到任何无法解析的地址立即返回错误。
func ParseNetworkAddressesStrict(strs []string) ([]NetworkAddress, error) {
	addrs := make([]NetworkAddress, len(strs))
	for i, s := range strs {
		addr, err := ParseNetworkAddress(s)
		if err != nil {
			return nil, fmt.Errorf("invalid address at index %d: %w", i, err)
		}
		addrs[i] = addr
	}
	return addrs, nil
}

// ============================================================================
//                              访问方法
// ============================================================================

// String 返回 canonical 地址字符串
func (a NetworkAddress) String() string {
	return string(a)
}

// IsEmpty 是否为空
func (a NetworkAddress) IsEmpty() bool {
	return a == ""
}

// Equal 比较两个 NetworkAddress 是否相等
func (a NetworkAddress) Equal(other NetworkAddress) bool {
	return a == other
}

// IsMemory 是否是内存传输地址
func (a NetworkAddress) IsMemory() bool {
	return strings.HasPrefix(string(a), "/"+ProtocolMemory+"/")
}

// IP 返回 IP 地址（内存地址返回 nil）
func (a NetworkAddress) IP() net.IP {
	parts := a.segments()
	if len(parts) >= 2 && (parts[0] == ProtocolIP4 || parts[0] == ProtocolIP6) {
		return net.ParseIP(parts[1])
	}
	return nil
}

// Port 返回端口号（tcp 端口或 memory 端口）
func (a NetworkAddress) Port() int {
	parts := a.segments()
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == ProtocolTCP || (i == 0 && parts[i] == ProtocolMemory) {
			port, err := strconv.Atoi(parts[i+1])
			if err == nil {
				return port
			}
		}
	}
	return 0
}

// IdentityPubKey 返回认证段中固定的远端身份公钥
//
// 返回 32 字节公钥；地址不含认证段时返回 nil。
func (a NetworkAddress) IdentityPubKey() []byte {
	parts := a.segments()
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == ProtocolNoiseIK {
			b, err := decodePubKeySegment(parts[i+1])
			if err == nil {
				return b
			}
		}
	}
	return nil
}

// HandshakeVersion 返回认证段中的握手协议版本号
func (a NetworkAddress) HandshakeVersion() (uint8, bool) {
	parts := a.segments()
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == ProtocolHandshake {
			v, err := strconv.ParseUint(parts[i+1], 10, 8)
			if err == nil {
				return uint8(v), true
			}
		}
	}
	return 0, false
}

func (a NetworkAddress) segments() []string {
	if a.IsEmpty() {
		return nil
	}
	return strings.Split(string(a), "/")[1:]
}

// ============================================================================
//                              认证段操作
// ============================================================================

// AppendAuthSegments 附加认证段 /noise-ik/<pubkey>/handshake/<version>
//
// 如果已有认证段，先移除再附加。pubkey 必须是 32 字节身份公钥。
func (a NetworkAddress) AppendAuthSegments(pubkey []byte, version uint8) NetworkAddress {
	if a.IsEmpty() || len(pubkey) != 32 {
		return a
	}
	base := a.StripAuthSegments()
	return NetworkAddress(fmt.Sprintf("%s/%s/%s/%s/%d",
		base, ProtocolNoiseIK, base58.Encode(pubkey), ProtocolHandshake, version))
}

// StripAuthSegments 移除认证段（如果有）
func (a NetworkAddress) StripAuthSegments() NetworkAddress {
	idx := strings.Index(string(a), "/"+ProtocolNoiseIK+"/")
	if idx == -1 {
		return a
	}
	return a[:idx]
}
