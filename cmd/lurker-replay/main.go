// Command lurker-replay runs a pcap capture through the window-capping
// pipeline and writes the rewritten capture.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/baiwei0427/Lurker/pkg/config"
	"github.com/baiwei0427/Lurker/pkg/events"
	"github.com/baiwei0427/Lurker/pkg/flow"
	"github.com/baiwei0427/Lurker/pkg/hook"
	"github.com/baiwei0427/Lurker/pkg/logging"
	"github.com/baiwei0427/Lurker/pkg/pipeline"
)

func main() {
	var (
		in         = flag.String("in", "", "input pcap file")
		out        = flag.String("out", "", "output pcap file")
		configPath = flag.String("config", "", "path to a YAML or JSON config file")
		jsonOut    = flag.Bool("json", false, "print replay statistics as JSON")
	)
	flag.Parse()

	if *in == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "usage: lurker-replay -in capture.pcap -out capped.pcap [-config lurker.yaml]")
		os.Exit(2)
	}

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

	table, err := flow.NewTable(cfg.Table.Bits)
	if err != nil {
		logging.Fatalf("flow table: %v", err)
	}
	defer table.Teardown()

	// Captures carry no output interface, so only the port filter applies.
	filter := cfg.Filter
	filter.Interface = ""
	p := pipeline.New(table, cfg.Policy,
		pipeline.WithFilter(pipeline.NewFilter(filter)),
		pipeline.WithObserver(events.NewLogSink()),
	)

	inFile, err := os.Open(*in)
	if err != nil {
		logging.Fatalf("open input: %v", err)
	}
	defer inFile.Close()

	outFile, err := os.Create(*out)
	if err != nil {
		logging.Fatalf("create output: %v", err)
	}

	st, err := hook.Replay(inFile, outFile, p)
	if cerr := outFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		logging.Fatalf("replay: %v", err)
	}

	if *jsonOut {
		b, _ := json.Marshal(st)
		fmt.Println(string(b))
		return
	}
	fmt.Printf("frames=%d ipv4=%d rewritten=%d errors=%d flows_left=%d\n",
		st.Frames, st.IPv4, st.Rewritten, st.Errors, table.Len())
}
