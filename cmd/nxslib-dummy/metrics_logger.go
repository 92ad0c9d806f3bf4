package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/railab/nxslib-go/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"frames_decoded", snap.FramesDecoded,
					"frame_errors", snap.FrameErrors,
					"resyncs", snap.Resyncs,
					"overflow", snap.Overflow,
					"handshake_retries", snap.HandshakeRetries,
					"ack_timeouts", snap.AckTimeouts,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
