// Command lurker caps the advertised receive window of outbound TCP
// segments taken from an NFQUEUE.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/baiwei0427/Lurker/pkg/admin"
	"github.com/baiwei0427/Lurker/pkg/config"
	"github.com/baiwei0427/Lurker/pkg/events"
	"github.com/baiwei0427/Lurker/pkg/flow"
	"github.com/baiwei0427/Lurker/pkg/hook"
	"github.com/baiwei0427/Lurker/pkg/logging"
	"github.com/baiwei0427/Lurker/pkg/pipeline"
)

func main() {
	var (
		configPath      = flag.String("config", "", "path to a YAML or JSON config file")
		metricsInterval = flag.Duration("metrics-interval", 0, "log a metrics line at this interval (0 disables)")
		metricsFormat   = flag.String("metrics-format", "text", "metrics line format: text or json")
	)
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		if err := config.LoadFromFile(*configPath, cfg); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	config.LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ApplyLogging(); err != nil {
		log.Fatalf("logging: %v", err)
	}

	var tableOpts []flow.Option
	if cfg.Table.MaxEntries > 0 {
		tableOpts = append(tableOpts, flow.WithMaxEntries(cfg.Table.MaxEntries))
	}
	table, err := flow.NewTable(cfg.Table.Bits, tableOpts...)
	if err != nil {
		logging.Fatalf("flow table: %v", err)
	}

	// Event sinks
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsSink, err := events.NewMetricsSink(reg, func() float64 { return float64(table.Len()) })
	if err != nil {
		logging.Fatalf("metrics: %v", err)
	}
	sinks := events.Multi{events.NewLogSink(), metricsSink}
	if cfg.Events.NATS.URL != "" {
		natsSink, err := events.NewNATSSink(cfg.Events.NATS.URL, cfg.Events.NATS.Subject)
		if err != nil {
			logging.Fatalf("events: %v", err)
		}
		defer natsSink.Close()
		sinks = append(sinks, natsSink)
	}

	p := pipeline.New(table, cfg.Policy,
		pipeline.WithFilter(pipeline.NewFilter(cfg.Filter)),
		pipeline.WithObserver(sinks),
	)
	policy := p.Policy()
	logging.Infof("Flow table: %d buckets, policy cwnd=%d mss=%d wscale=%d, filter iface=%q port=%d",
		1<<table.Bits(), policy.InitialCwnd, policy.DefaultMSS, policy.DefaultWindowScale,
		cfg.Filter.Interface, cfg.Filter.Port)

	proc := hook.NewProcessor(p, cfg.Processor.Workers, cfg.Processor.QueueCap)
	if err := proc.Start(); err != nil {
		logging.Fatalf("processor start: %v", err)
	}

	src, err := hook.NewNFQueueSource(cfg.Queue, proc)
	if err != nil {
		logging.Fatalf("nfqueue: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Admin.Listen != "" {
		srv := admin.NewServer(table, reg, proc.Metrics)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.Admin.Listen); err != nil {
				logging.Errorf("admin server: %v", err)
			}
		}()
	}

	if *metricsInterval > 0 {
		go runMetricsReporter(ctx, *metricsInterval, *metricsFormat, table, proc, src)
	}

	logging.Infof("Lurker running on NFQUEUE %d", cfg.Queue.Num)
	if err := src.Run(ctx); err != nil {
		logging.Errorf("nfqueue: %v", err)
	}

	// Queued packets still need a verdict, so the queue closes after the workers.
	proc.Stop()
	if err := src.Close(); err != nil {
		logging.Warnf("nfqueue close: %v", err)
	}
	flows := table.Len()
	table.Teardown()
	logging.Infof("Lurker stopped, %d flows were tracked", flows)
}
