package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerIDRoundTrip(t *testing.T) {
	var id PeerID
	for i := range id {
		id[i] = byte(i + 1)
	}

	parsed, err := ParsePeerID(id.String())
	require.NoError(t, err)
	assert.True(t, parsed.Equal(id))

	fromBytes, err := PeerIDFromBytes(id.Bytes())
	require.NoError(t, err)
	assert.Equal(t, id, fromBytes)

	t.Log("✅ PeerID Base58 往返一致")
}

func TestPeerIDShortString(t *testing.T) {
	var id PeerID
	id[0] = 0xab

	short := id.ShortString()
	assert.Len(t, short, 8)
	assert.Equal(t, id.String()[:8], short)
}

func TestPeerIDEmpty(t *testing.T) {
	assert.True(t, EmptyPeerID.IsEmpty())
	assert.Equal(t, "", EmptyPeerID.String())

	var id PeerID
	id[31] = 1
	assert.False(t, id.IsEmpty())
}

func TestParsePeerIDInvalid(t *testing.T) {
	cases := []string{
		"",
		"0OIl",       // 非 Base58 字符
		"abc",        // 长度不足 32 字节
	}
	for _, s := range cases {
		_, err := ParsePeerID(s)
		assert.ErrorIs(t, err, ErrInvalidPeerID, "应当拒绝 %q", s)
	}
}
