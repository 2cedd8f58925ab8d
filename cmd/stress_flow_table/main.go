// Command stress_flow_table pushes synthetic connections through the
// worker pool and pipeline to exercise the flow table under contention.
package main

import (
	"flag"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/baiwei0427/Lurker/pkg/core"
	"github.com/baiwei0427/Lurker/pkg/flow"
	"github.com/baiwei0427/Lurker/pkg/hook"
	"github.com/baiwei0427/Lurker/pkg/logging"
	"github.com/baiwei0427/Lurker/pkg/pipeline"
	"github.com/baiwei0427/Lurker/pkg/tcp"
	"github.com/baiwei0427/Lurker/pkg/tcp/tcptest"
)

func main() {
	// Flags
	var (
		flows   = flag.Int("flows", 2000, "number of simulated connections (max 65536)")
		perFlow = flag.Int("per", 20, "data segments per connection")
		bits    = flag.Uint("bits", 8, "flow table bits")
		workers = flag.Int("workers", 4, "processor workers")
		qcap    = flag.Int("qcap", 1024, "processor queue capacity")
		keep    = flag.Bool("keep", false, "leave connections open (no FIN)")
	)
	flag.Parse()
	if *flows > 1<<16 {
		*flows = 1 << 16
	}

	// Quieter logs by default
	logging.SetLevel(logging.WarnLevel)

	table, err := flow.NewTable(uint8(*bits))
	if err != nil {
		logging.Fatalf("flow table: %v", err)
	}
	defer table.Teardown()

	var misses, dups uint64
	p := pipeline.New(table, pipeline.DefaultPolicy(), pipeline.WithObserver(pipeline.ObserverFunc(func(ev pipeline.Event) {
		switch ev.Kind {
		case pipeline.EventLookupMiss:
			atomic.AddUint64(&misses, 1)
		case pipeline.EventDuplicateInsert:
			atomic.AddUint64(&dups, 1)
		}
	})))

	proc := hook.NewProcessor(p, *workers, *qcap)
	if err := proc.Start(); err != nil {
		logging.Fatalf("processor start: %v", err)
	}
	defer proc.Stop()

	segment := func(i int, flags tcp.Flags) []byte {
		return tcptest.Build(tcptest.Spec{
			Src:     net.IPv4(10, 0, 0, 1),
			Dst:     net.IPv4(10, 1, byte(i>>8), byte(i)),
			SrcPort: 5001,
			DstPort: 40000,
			Flags:   flags,
			Window:  65535,
		})
	}

	// Each phase completes before the next so no data segment overtakes
	// its SYN in the worker pool.
	var rewritten uint64
	phase := func(name string, count int, build func(n int) []byte) {
		var wg sync.WaitGroup
		start := time.Now()
		wg.Add(count)
		for n := 0; n < count; n++ {
			proc.Submit(core.NewPacket(build(n), ""), func(_ core.Packet, v core.Verdict) {
				if v == core.VerdictAcceptModified {
					atomic.AddUint64(&rewritten, 1)
				}
				wg.Done()
			})
		}
		wg.Wait()
		d := time.Since(start)
		fmt.Printf("%-5s %8d pkts in %v (%.0f pkt/s), live=%d\n",
			name, count, d, float64(count)/d.Seconds(), table.Len())
	}

	phase("syn", *flows, func(n int) []byte { return segment(n, tcp.FlagSYN|tcp.FlagACK) })
	nflows := *flows
	phase("data", nflows*(*perFlow), func(n int) []byte { return segment(n%nflows, tcp.FlagACK|tcp.FlagPSH) })
	if !*keep {
		phase("fin", *flows, func(n int) []byte { return segment(n, tcp.FlagFIN|tcp.FlagACK) })
	}

	m := proc.Metrics()
	fmt.Printf("Processor: processed=%d rewritten=%d errors=%d bypass=%d\n",
		m.PacketsProcessed, m.PacketsRewritten, m.ProcessErrors, m.QueueFullBypass)
	fmt.Printf("Pipeline: rewritten=%d misses=%d dups=%d live=%d\n",
		atomic.LoadUint64(&rewritten), atomic.LoadUint64(&misses), atomic.LoadUint64(&dups), table.Len())

	// Basic assertion-like outcomes (non-fatal)
	if m.QueueFullBypass > 0 {
		fmt.Println("WARN: queue overflowed and packets bypassed the pipeline; raise qcap or workers")
	}
	if !*keep && table.Len() != 0 && m.QueueFullBypass == 0 {
		fmt.Println("ERROR: flows left in the table after every FIN was processed")
	}
}
