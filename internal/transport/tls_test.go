package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"testing"
	"time"

	"github.com/danmuck/htlvc/internal/protocol/frame"
	"github.com/danmuck/htlvc/internal/testutil/testlog"
	"github.com/danmuck/htlvc/internal/testutil/tlstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTLSStream(t *testing.T, tlsCfg TLSConfig) string {
	t.Helper()
	cfg := testConfig()
	cfg.TLS = tlsCfg
	router := NewRouter(cfg)
	srv, err := NewStreamServer(cfg, startEngine(t, router), router)
	require.NoError(t, err)

	ln, err := srv.listen()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func roundTripTLS(t *testing.T, addr string, clientCfg *tls.Config) ([]byte, error) {
	t.Helper()
	conn, err := tls.Dial("tcp", addr, clientCfg)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if _, err := conn.Write(command(t, 0x01, []byte("tls"))); err != nil {
		return nil, err
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	raw, err := frame.ReadFrame(bufio.NewReader(conn), frame.DefaultLimits())
	if err != nil {
		return nil, err
	}
	fr, err := frame.Decode(raw, MethodStream)
	if err != nil {
		return nil, err
	}
	return fr.Record.Value, nil
}

func TestTLSConfigValidate(t *testing.T) {
	testlog.Start(t)
	require.NoError(t, TLSConfig{}.Validate())
	require.ErrorIs(t, TLSConfig{Enabled: true, CertFile: "a"}.Validate(), ErrInvalidConfig)

	cfg := DefaultConfig()
	cfg.TLS = TLSConfig{Enabled: true}
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestStreamServerTLS(t *testing.T) {
	testlog.Start(t)
	files := tlstest.Issue(t, t.TempDir(), "device.local")
	addr := startTLSStream(t, TLSConfig{Enabled: true, CertFile: files.ServerCert, KeyFile: files.ServerKey})

	clientCfg, err := ClientConfig(files.CA, "", "", "device.local")
	require.NoError(t, err)
	got, err := roundTripTLS(t, addr, clientCfg)
	require.NoError(t, err)
	assert.Equal(t, []byte("tls"), got)
}

func TestStreamServerMutualTLS(t *testing.T) {
	testlog.Start(t)
	files := tlstest.Issue(t, t.TempDir(), "device.local")
	addr := startTLSStream(t, TLSConfig{
		Enabled:  true,
		CertFile: files.ServerCert,
		KeyFile:  files.ServerKey,
		CAFile:   files.CA,
	})

	anonymous, err := ClientConfig(files.CA, "", "", "device.local")
	require.NoError(t, err)
	_, err = roundTripTLS(t, addr, anonymous)
	require.Error(t, err)

	withCert, err := ClientConfig(files.CA, files.ClientCert, files.ClientKey, "device.local")
	require.NoError(t, err)
	got, err := roundTripTLS(t, addr, withCert)
	require.NoError(t, err)
	assert.Equal(t, []byte("tls"), got)
}

func TestTLSServerConfigBadFiles(t *testing.T) {
	testlog.Start(t)
	_, err := TLSConfig{Enabled: true, CertFile: "missing.crt", KeyFile: "missing.key"}.ServerConfig()
	require.Error(t, err)

	files := tlstest.Issue(t, t.TempDir(), "device.local")
	_, err = TLSConfig{Enabled: true, CertFile: files.ServerCert, KeyFile: files.ServerKey, CAFile: files.ServerKey}.ServerConfig()
	require.Error(t, err)
	_, err = ClientConfig("missing.crt", "", "", "")
	require.Error(t, err)
}
