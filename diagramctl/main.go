package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"

	"github.com/golang/glog"

	"github.com/gorilla/websocket"

	"github.com/diagramworks/diagram/diagram"
	"github.com/diagramworks/diagram/protocol"
)

const DefaultUrl = "ws://127.0.0.1:8080/diagram"

const Version = "0.1.0"

func main() {
	usage := fmt.Sprintf(
		`Diagram protocol client.

The default url is:
    url: %s

Usage:
    diagramctl watch [--url=<url>] [--client_id=<client_id>] [-v...]
    diagramctl send <action_json> [--url=<url>] [--client_id=<client_id>] [-v...]

Options:
    -h --help                  Show this screen.
    --version                  Show version.
    --url=<url>
    --client_id=<client_id>    Session client id. A new one is generated
                               when omitted.
    -v                         Verbose logging. Repeat for more.`,
		DefaultUrl,
	)

	opts, err := docopt.ParseArgs(usage, os.Args[1:], Version)
	if err != nil {
		panic(err)
	}

	initGlog(opts)

	if watch_, _ := opts.Bool("watch"); watch_ {
		watch(opts)
	} else if send_, _ := opts.Bool("send"); send_ {
		send(opts)
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

func connect(opts docopt.Opts) (context.Context, *websocket.Conn, string) {
	url := DefaultUrl
	if urlAny := opts["--url"]; urlAny != nil {
		url = urlAny.(string)
	}
	clientId := diagram.NewId().String()
	if clientIdAny := opts["--client_id"]; clientIdAny != nil {
		clientId = clientIdAny.(string)
	}

	event := diagram.NewEventWithContext(context.Background())
	event.SetOnSignals(syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	ctx := event.Ctx()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		glog.Errorf("dial error = %s\n", err)
		os.Exit(1)
	}
	go func() {
		<-ctx.Done()
		ws.Close()
	}()

	fmt.Printf("client_id: %s\n", clientId)
	return ctx, ws, clientId
}

func writeEnvelope(ws *websocket.Conn, clientId string, action protocol.Action) {
	envelope := &protocol.Envelope{
		ClientId: clientId,
		Action:   action,
	}
	message, err := json.Marshal(envelope)
	if err != nil {
		glog.Errorf("marshal error = %s\n", err)
		os.Exit(1)
	}
	if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
		glog.Errorf("write error = %s\n", err)
		os.Exit(1)
	}
}

func printReplies(ctx context.Context, ws *websocket.Conn, idleTimeout time.Duration) {
	for {
		if 0 < idleTimeout {
			ws.SetReadDeadline(time.Now().Add(idleTimeout))
		}
		_, message, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !os.IsTimeout(err) {
				glog.V(1).Infof("read error = %s\n", err)
			}
			return
		}
		fmt.Printf("%s\n", message)
	}
}

func watch(opts docopt.Opts) {
	ctx, ws, clientId := connect(opts)

	writeEnvelope(ws, clientId, &protocol.RequestModel{})
	writeEnvelope(ws, clientId, &protocol.RequestTools{})
	writeEnvelope(ws, clientId, &protocol.RequestLayers{})
	writeEnvelope(ws, clientId, &protocol.RequestTypeHints{})

	printReplies(ctx, ws, 0)
}

func send(opts docopt.Opts) {
	ctx, ws, clientId := connect(opts)

	actionJson, _ := opts.String("<action_json>")
	action, err := protocol.DecodeAction([]byte(actionJson))
	if err != nil {
		glog.Errorf("action error = %s\n", err)
		os.Exit(1)
	}

	// open the session before the action so edits are accepted
	writeEnvelope(ws, clientId, &protocol.RequestModel{})
	writeEnvelope(ws, clientId, &protocol.RequestTools{})
	writeEnvelope(ws, clientId, &protocol.RequestLayers{})
	writeEnvelope(ws, clientId, action)

	printReplies(ctx, ws, 2*time.Second)
}
