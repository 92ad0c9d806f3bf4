package main

import (
	"os"
	"testing"
	"time"
)

func TestApplyEnvOverrides_Basic(t *testing.T) {
	base := &appConfig{
		listenAddr:      ":20000",
		logFormat:       "text",
		logLevel:        "info",
		metricsAddr:     "",
		bridgePolicy:    "drop",
		rxPadding:       0,
		logMetricsEvery: 0,
		mdnsEnable:      false,
		mdnsName:        "",
	}

	os.Setenv("NXSLIB_DUMMY_RXPADDING", "8")
	os.Setenv("NXSLIB_DUMMY_MDNS_ENABLE", "true")
	os.Setenv("NXSLIB_DUMMY_LOG_METRICS_INTERVAL", "5s")
	t.Cleanup(func() {
		os.Unsetenv("NXSLIB_DUMMY_RXPADDING")
		os.Unsetenv("NXSLIB_DUMMY_MDNS_ENABLE")
		os.Unsetenv("NXSLIB_DUMMY_LOG_METRICS_INTERVAL")
	})
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.rxPadding != 8 {
		t.Fatalf("expected rxPadding override, got %d", base.rxPadding)
	}
	if !base.mdnsEnable {
		t.Fatalf("expected mdnsEnable true")
	}
	if base.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s got %v", base.logMetricsEvery)
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	base := &appConfig{rxPadding: 3}
	os.Setenv("NXSLIB_DUMMY_RXPADDING", "9")
	t.Cleanup(func() { os.Unsetenv("NXSLIB_DUMMY_RXPADDING") })
	if err := applyEnvOverrides(base, map[string]struct{}{"rxpadding": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.rxPadding != 3 {
		t.Fatalf("expected rxPadding unchanged 3 got %d", base.rxPadding)
	}
}

func TestApplyEnvOverrides_BadInt(t *testing.T) {
	base := &appConfig{rxPadding: 0}
	os.Setenv("NXSLIB_DUMMY_RXPADDING", "notint")
	t.Cleanup(func() { os.Unsetenv("NXSLIB_DUMMY_RXPADDING") })
	if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for bad integer")
	}
}
