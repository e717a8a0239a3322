package main

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/danmuck/chatrelay/internal/testutil/testlog"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestRunServeStopsAdminBeforeReturning(t *testing.T) {
	testlog.Start(t)
	cfg := defaultServeConfig()
	cfg.Relay.ListenAddr = "127.0.0.1:0"
	cfg.AdminAddr = freeAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, cfg)
	}()

	httpClient := &http.Client{Timeout: 200 * time.Millisecond}
	up := false
	for deadline := time.Now().Add(3 * time.Second); time.Now().Before(deadline); {
		resp, err := httpClient.Get("http://" + cfg.AdminAddr + "/health")
		if err == nil {
			_ = resp.Body.Close()
			up = true
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !up {
		t.Fatalf("admin listener never came up on %s", cfg.AdminAddr)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServe: %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatalf("runServe did not return after cancel")
	}

	conn, err := net.DialTimeout("tcp", cfg.AdminAddr, 200*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		t.Fatalf("admin listener still accepting after runServe returned")
	}
}
