package app_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/aussiebroadwan/selfie/internal/identity/app"
	"github.com/aussiebroadwan/selfie/pkg/authsdk"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) app.Config {
	t.Helper()
	dir := t.TempDir()
	return app.Config{
		Issuer:               "selfie-test",
		KeyStorageMode:       app.KeyStorageEphemeral,
		PepperFile:           filepath.Join(dir, "pepper"),
		StoreDriver:          app.StoreSQLite,
		DatabaseFile:         filepath.Join(dir, "identity.db"),
		TOTPIssuer:           "Selfie",
		MailDriver:           app.MailLog,
		AppURL:               "http://localhost:8080",
		Env:                  "test",
		Port:                 8080,
		GRPCPort:             9090,
		ShutdownGracePeriod:  5 * time.Second,
		HousekeepingInterval: time.Hour,
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := app.LoadConfig()
		require.NoError(t, err)
		require.Equal(t, "selfie", cfg.Issuer)
		require.Equal(t, app.KeyStorageEphemeral, cfg.KeyStorageMode)
		require.Equal(t, app.StoreSQLite, cfg.StoreDriver)
		require.Equal(t, app.MailLog, cfg.MailDriver)
		require.Equal(t, "Selfie", cfg.TOTPIssuer)
		require.Equal(t, 8080, cfg.Port)
		require.Equal(t, 9090, cfg.GRPCPort)
		require.Equal(t, 10*time.Second, cfg.ShutdownGracePeriod)
		require.Equal(t, time.Hour, cfg.HousekeepingInterval)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("IDENTITY_ISSUER", "https://id.example.com")
		t.Setenv("IDENTITY_STORE_DRIVER", "redis")
		t.Setenv("IDENTITY_REDIS_ADDR", "cache:6379")
		t.Setenv("IDENTITY_REDIS_DB", "3")
		t.Setenv("IDENTITY_KEY_STORAGE_MODE", "persistent")
		t.Setenv("IDENTITY_MASTER_KEY", "correct horse battery staple")
		t.Setenv("HOUSEKEEPING_INTERVAL", "15m")

		cfg, err := app.LoadConfig()
		require.NoError(t, err)
		require.Equal(t, "https://id.example.com", cfg.Issuer)
		require.Equal(t, app.StoreRedis, cfg.StoreDriver)
		require.Equal(t, "cache:6379", cfg.RedisAddr)
		require.Equal(t, 3, cfg.RedisDB)
		require.Equal(t, app.KeyStoragePersistent, cfg.KeyStorageMode)
		require.Equal(t, 15*time.Minute, cfg.HousekeepingInterval)
	})

	t.Run("malformed value", func(t *testing.T) {
		t.Setenv("PORT", "eighty")
		_, err := app.LoadConfig()
		require.Error(t, err)
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*app.Config)
	}{
		{"missing issuer", func(c *app.Config) { c.Issuer = "" }},
		{"unknown key mode", func(c *app.Config) { c.KeyStorageMode = "hsm" }},
		{"persistent without master key", func(c *app.Config) { c.KeyStorageMode = app.KeyStoragePersistent }},
		{"unknown store", func(c *app.Config) { c.StoreDriver = "postgres" }},
		{"redis without addr", func(c *app.Config) { c.StoreDriver = app.StoreRedis; c.RedisAddr = "" }},
		{"unknown mail driver", func(c *app.Config) { c.MailDriver = "pigeon" }},
		{"smtp without host", func(c *app.Config) { c.MailDriver = app.MailSMTP; c.SMTPFrom = "a@example.com" }},
		{"zero port", func(c *app.Config) { c.Port = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	require.NoError(t, testConfig(t).Validate())
}

func TestNewServesHTTP(t *testing.T) {
	application, err := app.NewWithLogger(testConfig(t), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Shutdown() })

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(srv.Close)

	ctx := context.Background()
	client := authsdk.NewClient(srv.URL)

	ready, err := client.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ready", ready.Status)

	_, err = client.Register(ctx, authsdk.RegisterRequest{
		Email:      "ada@example.com",
		Passphrase: "k8#Vq!2mZr$Lp9wX",
	})
	require.NoError(t, err)

	session, err := client.Login(ctx, "ada@example.com", "k8#Vq!2mZr$Lp9wX", "")
	require.NoError(t, err)
	me, err := session.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", me.Email)
}

func TestPersistentKeysSurviveRestart(t *testing.T) {
	cfg := testConfig(t)
	cfg.KeyStorageMode = app.KeyStoragePersistent
	cfg.MasterKey = "correct horse battery staple"

	kids := func() []string {
		application, err := app.NewWithLogger(cfg, discardLogger())
		require.NoError(t, err)
		defer func() { require.NoError(t, application.Shutdown()) }()

		srv := httptest.NewServer(application.Handler())
		defer srv.Close()

		jwks, err := authsdk.NewClient(srv.URL).GetJWKS(context.Background())
		require.NoError(t, err)

		var out []string
		for _, k := range jwks.Keys {
			out = append(out, k.Kid)
		}
		return out
	}

	first := kids()
	require.Len(t, first, 1)
	require.Equal(t, first, kids())

	t.Run("wrong master key", func(t *testing.T) {
		bad := cfg
		bad.MasterKey = "a different key entirely"
		_, err := app.NewWithLogger(bad, discardLogger())
		require.Error(t, err)
	})
}

func TestServeListeners(t *testing.T) {
	application, err := app.NewWithLogger(testConfig(t), discardLogger())
	require.NoError(t, err)

	httpLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	grpcLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.ServeListeners(ctx, httpLn, grpcLn) }()

	live, err := authsdk.NewClient("http://" + httpLn.Addr().String()).GetLiveness(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)

	conn, err := grpc.NewClient(grpcLn.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		resp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
		return err == nil && resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("ServeListeners did not return after cancel")
	}
}
