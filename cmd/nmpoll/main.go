package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"nmpoll/pkg/client"
	"nmpoll/pkg/config"
	"nmpoll/pkg/observability"
	"nmpoll/pkg/outcome"
	"nmpoll/pkg/protocol"
)

func main() {
	cfgPath := flag.String("config", "", "path to config file (optional)")
	kind := flag.String("kind", "", "transport kind override: udp|quic|mem")
	addr := flag.String("addr", "", "agent address override")
	op := flag.String("op", "get", "operation: get|getnext|set")
	vars := flag.String("vars", "sys.descr", "comma-separated variable names; for set, name=value pairs")
	contentType := flag.String("codec", "", "content type override")
	timeout := flag.Duration("timeout", 0, "per-attempt timeout override")
	retries := flag.Int("retries", -1, "retransmit count override")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	if *kind != "" {
		cfg.Client.Transport = *kind
	}
	if *addr != "" {
		cfg.Client.Target = *addr
	}
	if *contentType != "" {
		cfg.Client.ContentType = *contentType
	}
	if *timeout > 0 {
		cfg.Client.Timeout = *timeout
	}
	if *retries >= 0 {
		cfg.Client.Retries = *retries
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		fatalf("setup logger: %v", err)
	}
	defer logger.Sync()

	tr, err := client.ByKind(cfg.Client.Transport)
	if err != nil {
		fatalf("transport: %v", err)
	}

	var factory outcome.Factory = outcome.DefaultFactory{}
	if cfg.Client.Metrics {
		factory = observability.NewMetricsFactory(factory, nil)
	}
	factory = observability.NewLoggingFactory(factory, logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Client.Timeout*time.Duration(cfg.Client.Retries+2))
	defer cancel()

	c, err := client.Dial(ctx, tr, cfg.Client.Target, client.Options{
		Source:      cfg.SourceID,
		ContentType: cfg.Client.ContentType,
		Timeout:     cfg.Client.Timeout,
		Retries:     cfg.Client.Retries,
		Factory:     factory,
		Logger:      logger,
	})
	if err != nil {
		fatalf("dial: %v", err)
	}
	defer c.Close()

	req, err := buildRequest(*op, *vars)
	if err != nil {
		fatalf("%v", err)
	}

	rec, err := c.Send(ctx, req, *op)
	if err != nil {
		fatalf("send: %v", err)
	}
	printOutcome(rec)
	if !rec.OK() {
		os.Exit(1)
	}
}

func buildRequest(op, vars string) (*protocol.PDU, error) {
	names := strings.Split(vars, ",")
	switch op {
	case "get":
		return protocol.NewGet(names...), nil
	case "getnext":
		return protocol.NewGetNext(names...), nil
	case "set":
		var bindings []protocol.Binding
		for _, nv := range names {
			name, value, ok := strings.Cut(nv, "=")
			if !ok {
				return nil, fmt.Errorf("set needs name=value pairs, got %q", nv)
			}
			bindings = append(bindings, protocol.Binding{Name: name, Value: value})
		}
		return protocol.NewSet(bindings...), nil
	default:
		return nil, fmt.Errorf("unknown op: %q", op)
	}
}

func printOutcome(rec *outcome.Record) {
	switch {
	case rec.OK():
		fmt.Printf("reply from %s in %s\n", rec.PeerAddr(), rec.Elapsed())
		for _, b := range rec.Response().Bindings {
			fmt.Printf("  %s = %v\n", b.Name, b.Value)
		}
		if rec.Response().ErrorCode != protocol.ErrCodeNone {
			fmt.Printf("  agent error code %d at index %d\n", rec.Response().ErrorCode, rec.Response().ErrorIndex)
		}
	case rec.TimedOut():
		fmt.Printf("timeout after %s\n", rec.Elapsed())
	default:
		fmt.Printf("error: %v\n", rec.Err())
	}
	zap.L().Info("request resolved",
		zap.Uint32("request_id", rec.Request().RequestID),
		zap.Bool("ok", rec.OK()))
}

func fatalf(format string, a ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
