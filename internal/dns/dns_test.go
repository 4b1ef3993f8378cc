package dns

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookup_IPLiteral(t *testing.T) {
	ip, err := Lookup(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", ip)

	ip, err = Lookup(context.Background(), "::1")
	require.NoError(t, err)
	require.Equal(t, "::1", ip)
}

func TestPickIP_PrefersV4(t *testing.T) {
	ip, err := pickIP([]string{"2001:db8::1", "192.0.2.7"})
	require.NoError(t, err)
	require.Equal(t, "192.0.2.7", ip)

	ip, err = pickIP([]string{"2001:db8::1"})
	require.NoError(t, err)
	require.Equal(t, "2001:db8::1", ip)

	_, err = pickIP(nil)
	require.Error(t, err)
}

func TestDialContext_Loopback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()

	conn, err := DialContext(context.Background(), "tcp", ln.Addr().String())
	require.NoError(t, err)
	conn.Close()
}

func TestRaceLookup_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := raceLookup(ctx, "example.invalid", []string{"192.0.2.1"})
	require.Error(t, err)
}
