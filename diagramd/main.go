package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"syscall"

	"github.com/docopt/docopt-go"

	"github.com/golang/glog"

	"github.com/diagramworks/diagram/diagram"
)

const DefaultListen = "127.0.0.1:8080"

const Version = "0.1.0"

func main() {
	usage := fmt.Sprintf(
		`Diagram model server.

Serves the diagram session protocol over websocket at /diagram.

Usage:
    diagramd serve [--config=<config>]
        [--listen=<listen>]
        [--snapshot_dir=<snapshot_dir>]
        [-v...]

Options:
    -h --help                      Show this screen.
    --version                      Show version.
    --config=<config>              Diagram configuration yaml. Uses the
                                   built-in workflow config when omitted.
    --listen=<listen>              Listen address [default: %s].
    --snapshot_dir=<snapshot_dir>  Directory for model snapshots. Snapshots
                                   are disabled when omitted.
    -v                             Verbose logging. Repeat for more.`,
		DefaultListen,
	)

	opts, err := docopt.ParseArgs(usage, os.Args[1:], Version)
	if err != nil {
		panic(err)
	}

	initGlog(opts)

	if serve_, _ := opts.Bool("serve"); serve_ {
		serve(opts)
	}
}

func initGlog(opts docopt.Opts) {
	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "INFO")
	if verboseCount, err := opts.Int("-v"); err == nil {
		flag.Set("v", strconv.Itoa(verboseCount))
	}
	flag.CommandLine.Parse([]string{})
}

func serve(opts docopt.Opts) {
	listen := DefaultListen
	if listenAny := opts["--listen"]; listenAny != nil {
		listen = listenAny.(string)
	}

	config := diagram.DefaultDiagramConfig()
	if configAny := opts["--config"]; configAny != nil {
		var err error
		config, err = diagram.LoadDiagramConfig(configAny.(string))
		if err != nil {
			glog.Errorf("config error = %s\n", err)
			os.Exit(1)
		}
	}

	var store diagram.Store
	if snapshotDirAny := opts["--snapshot_dir"]; snapshotDirAny != nil {
		snapshotStore, err := diagram.NewSnapshotStore(snapshotDirAny.(string))
		if err != nil {
			glog.Errorf("snapshot dir error = %s\n", err)
			os.Exit(1)
		}
		store = snapshotStore
	}

	event := diagram.NewEventWithContext(context.Background())
	event.SetOnSignals(syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	ctx := event.Ctx()

	engine := diagram.NewEngine(ctx, config, store, nil, diagram.DefaultEngineSettings())
	wsServer := diagram.NewWsServerWithDefaults(ctx, engine)

	mux := http.NewServeMux()
	mux.Handle("/diagram", wsServer)

	server := &http.Server{
		Addr:    listen,
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	fmt.Printf("diagram: %s\n", config.Name)
	fmt.Printf("listening on ws://%s/diagram\n", listen)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		glog.Errorf("serve error = %s\n", err)
		os.Exit(1)
	}
}
