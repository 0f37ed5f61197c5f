// Command bridge runs the PDU bridge daemon: it loads a bridge
// config and an endpoints config, builds a BridgeCore for a node, and
// drives it until SIGINT.
//
// Usage: bridge <config> <delta_us> <endpoints_config> [node_name]
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/bridge"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/config"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/endpoint"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/metrics"
	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/timesource"
)

var (
	metricsAddrFlag = flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
	watchConfigFlag = flag.Bool("watch-config", false, "hot-reload the bridge config on change (logs new connection set, does not yet re-splice a running core)")
)

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) < 3 {
		fmt.Fprintln(os.Stderr, "ERROR: usage: bridge <config> <delta_us> <endpoints_config> [node_name]")
		os.Exit(1)
	}

	configPath := args[0]
	deltaUs, err := parseDeltaUs(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	endpointsConfigPath := args[2]
	nodeName := defaultNodeName()
	if len(args) >= 4 {
		nodeName = args[3]
	}

	if err := run(configPath, deltaUs, endpointsConfigPath, nodeName); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, deltaUs uint64, endpointsConfigPath, nodeName string) error {
	endpointsFile, err := config.LoadEndpoints(endpointsConfigPath)
	if err != nil {
		return err
	}
	endpoints, err := endpoint.BuildRegistry(endpointsFile)
	if err != nil {
		return err
	}
	if err := endpoints.Initialize(); err != nil {
		return err
	}
	if err := endpoints.StartAll(); err != nil {
		return err
	}

	ts, err := buildTimeSource(configPath, deltaUs)
	if err != nil {
		return err
	}

	var recorder metrics.Recorder = metrics.Noop{}
	if *metricsAddrFlag != "" {
		recorder = metrics.NewPrometheus(nil)
		go serveMetrics(*metricsAddrFlag)
	}

	result := bridge.BuildWithMetrics(configPath, nodeName, ts, endpoints, recorder)
	if !result.OK() {
		return fmt.Errorf("%s", result.ErrorMessage)
	}
	core := result.Core

	if *watchConfigFlag {
		watcher, err := config.NewWatcher(configPath)
		if err != nil {
			return err
		}
		watcher.OnReload = func(*config.BridgeConfig) {
			glog.Infof("bridge: config change detected at %s; restart to apply", configPath)
		}
		defer watcher.Close()
		go watcher.Run()
	}

	core.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		glog.Infof("bridge: received shutdown signal, stopping")
		core.Stop()
	}()

	core.Run()
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		glog.Errorf("bridge: metrics server stopped: %v", err)
	}
}

func parseDeltaUs(raw string) (uint64, error) {
	var v uint64
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
		return 0, fmt.Errorf("invalid delta_us %q: %w", raw, err)
	}
	return v, nil
}

func buildTimeSource(configPath string, deltaUs uint64) (timesource.Source, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	switch cfg.TimeSourceType {
	case config.TimeSourceReal, "":
		return timesource.NewReal(deltaUs), nil
	case config.TimeSourceVirtual:
		return timesource.NewVirtual(deltaUs), nil
	case config.TimeSourceHakoniwa:
		return nil, fmt.Errorf("time_source_type %q requires host integration, not available in this build", cfg.TimeSourceType)
	default:
		return nil, fmt.Errorf("unknown time_source_type %q", cfg.TimeSourceType)
	}
}

func defaultNodeName() string {
	host, err := os.Hostname()
	if err != nil {
		return "default"
	}
	return host
}
