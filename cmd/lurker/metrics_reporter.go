package main

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"github.com/baiwei0427/Lurker/pkg/flow"
	"github.com/baiwei0427/Lurker/pkg/hook"
	"github.com/baiwei0427/Lurker/pkg/logging"
)

type metricsSnapshot struct {
	Timestamp string            `json:"ts"`
	Flows     int               `json:"flows"`
	Proc      map[string]uint64 `json:"proc"`
	Queue     map[string]uint64 `json:"queue"`
	RT        map[string]uint64 `json:"rt"`
}

func runMetricsReporter(ctx context.Context, interval time.Duration, format string, table *flow.Table, proc *hook.Processor, src *hook.NFQueueSource) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		dumpMetrics(format, table, proc, src)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func dumpMetrics(format string, table *flow.Table, proc *hook.Processor, src *hook.NFQueueSource) {
	pm := proc.Metrics()
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	snap := metricsSnapshot{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Flows:     table.Len(),
		Proc: map[string]uint64{
			"processed": pm.PacketsProcessed,
			"rewritten": pm.PacketsRewritten,
			"errors":    pm.ProcessErrors,
			"bypass":    pm.QueueFullBypass,
		},
		Queue: src.Metrics(),
		RT: map[string]uint64{
			"heap_alloc": ms.HeapAlloc,
			"heap_inuse": ms.HeapInuse,
			"num_gc":     uint64(ms.NumGC),
			"goroutines": uint64(runtime.NumGoroutine()),
		},
	}

	line, err := formatMetrics(format, snap)
	if err != nil {
		logging.Warnf("metrics: %v", err)
		return
	}
	logging.Infof("metrics: %s", line)
}

func formatMetrics(format string, snap metricsSnapshot) (string, error) {
	switch format {
	case "json":
		b, err := json.Marshal(snap)
		if err != nil {
			return "", fmt.Errorf("failed to encode snapshot: %w", err)
		}
		return string(b), nil
	default:
		return fmt.Sprintf("ts=%s flows=%d | proc: pkts=%d rw=%d err=%d bypass=%d | nfq: recv=%d verr=%d | rt: heap=%dMi inuse=%dMi gor=%d gc=%d",
			snap.Timestamp, snap.Flows,
			snap.Proc["processed"], snap.Proc["rewritten"], snap.Proc["errors"], snap.Proc["bypass"],
			snap.Queue["received"], snap.Queue["verdictErrors"],
			snap.RT["heap_alloc"]/(1024*1024), snap.RT["heap_inuse"]/(1024*1024), snap.RT["goroutines"], snap.RT["num_gc"],
		), nil
	}
}
