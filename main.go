package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/alexcesaro/log"
	"github.com/alexcesaro/log/golog"
	flags "github.com/jessevdk/go-flags"

	"github.com/postlink/postlink/peerrpc"
	"github.com/postlink/postlink/peerrpc/ws/gorilla"
)

// Version of the binary, assigned during build.
var Version string = "dev"

var dialTimeout = time.Second * 5

// Options contains the flag options
type Options struct {
	Verbose []bool `short:"v" long:"verbose" description:"Show verbose logging."`
	Version bool   `long:"version" description:"Print version and exit."`

	Serve struct {
		Bind   string `long:"bind" description:"Address and port to listen on." default:"0.0.0.0:8080"`
		Origin string `long:"origin" description:"Only accept messages from this sender identity." default:"*"`
	} `command:"serve" description:"Listen for websocket peers and expose the demo functions."`

	Dial struct {
		Args struct {
			URL string `positional-arg-name:"url" description:"ws:// URL of a serving peer."`
		} `positional-args:"yes" required:"yes"`
		Call      string   `long:"call" description:"Remote method to invoke after the handshake."`
		CallArgs  []string `long:"arg" description:"JSON-encoded positional argument, repeatable."`
		KeepAlive int      `long:"keepalive" description:"Keep-alive interval in seconds." default:"30"`
	} `command:"dial" description:"Connect to a serving peer and call a remote method."`
}

const dialUsage = `Examples:
* Call the demo adder on a serving peer:
  $ postlink dial ws://localhost:8080/ --call add --arg 2 --arg 3

* List what the peer exposes:
  $ postlink dial ws://localhost:8080/
`

var logLevels = []log.Level{
	log.Warning,
	log.Info,
	log.Debug,
}

// demoFuncs is the registry a serving peer exposes.
func demoFuncs() map[string]interface{} {
	return map[string]interface{}{
		"echo": func(s string) string { return s },
		"add":  func(x, y float64) float64 { return x + y },
		"now":  func() string { return time.Now().UTC().Format(time.RFC3339) },
	}
}

func runServe(options Options) error {
	origin := peerrpc.Origin(options.Serve.Origin)
	handler := gorilla.Handler(func(transport peerrpc.Transport) (*peerrpc.Peer, error) {
		peer, err := peerrpc.New(transport, demoFuncs())
		if err != nil {
			return nil, err
		}
		peer.Origin = origin
		return peer, nil
	})
	logger.Infof("Starting postlink (version %s), listening on: ws://%s", Version, options.Serve.Bind)
	return http.ListenAndServe(options.Serve.Bind, handler)
}

func runDial(options Options) error {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	transport, err := gorilla.Dial(ctx, options.Dial.Args.URL)
	cancel()
	if err != nil {
		return ErrExplain{err, "Failed to reach the serving peer. Is it running?"}
	}

	peer, err := peerrpc.New(transport, nil)
	if err != nil {
		return err
	}
	peer.KeepAliveInterval = time.Duration(options.Dial.KeepAlive) * time.Second

	errChan := make(chan error, 1)
	go func() {
		errChan <- peer.Serve()
	}()

	connectCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		logger.Info("Shutting down...")
		cancel()
	}()

	if err := peer.Connect(connectCtx); err != nil {
		return ErrExplain{err, "Handshake with the peer never completed."}
	}
	logger.Infof("Connected, session %s", peer.SessionID())

	if options.Dial.Call == "" {
		fmt.Println(strings.Join(peer.RemoteMethods(), "\n"))
		return nil
	}

	fn, err := peer.Proxy(options.Dial.Call)
	if err != nil {
		return ErrExplain{err, fmt.Sprintf("The peer exposes: %s", strings.Join(peer.RemoteMethods(), ", "))}
	}

	params := make([]interface{}, 0, len(options.Dial.CallArgs))
	for _, raw := range options.Dial.CallArgs {
		var arg interface{}
		if err := json.Unmarshal([]byte(raw), &arg); err != nil {
			return ErrExplain{err, fmt.Sprintf("Arguments must be JSON-encoded, got: %q", raw)}
		}
		params = append(params, arg)
	}

	var result interface{}
	if err := fn(context.Background(), &result, params...); err != nil {
		return err
	}
	out, err := json.Marshal(result)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func subcommand(cmd string, options Options) error {
	switch cmd {
	case "serve":
		return runServe(options)
	case "dial":
		return runDial(options)
	}
	return nil
}

func main() {
	options := Options{}
	parser := flags.NewParser(&options, flags.Default)
	parser.SubcommandsOptional = true
	p, err := parser.Parse()
	if err != nil {
		if p == nil {
			fmt.Println(err)
		}
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp && parser.Active != nil {
			// Print additional usage help when run with --help
			switch parser.Active.Name {
			case "dial":
				exit(0, dialUsage)
			}
		}
		return
	}

	if options.Version {
		fmt.Println(Version)
		os.Exit(0)
	}

	// Figure out the log level
	numVerbose := len(options.Verbose)
	if numVerbose > len(logLevels) {
		numVerbose = len(logLevels) - 1
	}

	logLevel := logLevels[numVerbose]
	logWriter := os.Stderr

	SetLogger(golog.New(logWriter, logLevel))
	if logLevel == log.Debug {
		// Enable logging from subpackages
		peerrpc.SetLogger(logWriter)
	}

	cmd := "dial"
	if parser.Active != nil {
		cmd = parser.Active.Name
	}
	err = subcommand(cmd, options)
	if err == nil {
		return
	}

	if err == io.EOF {
		exit(3, "Connection closed.\n")
	}

	switch err.(type) {
	case net.Error:
		err = ErrExplain{err, `Disconnected from the peer unexpectedly. Could be a connectivity issue or the peer is down. Try again?`}
	case peerrpc.CallTimeoutError:
		err = ErrExplain{err, `The peer never answered the call. It may have dropped the message, or the exposed function hung.`}
	case ErrExplain:
		// All good.
	default:
		err = ErrExplain{err, fmt.Sprintf(`Error type %T is missing an explanation. Please open an issue at https://github.com/postlink/postlink`, err)}
	}

	exit(2, "%s failed: %s\n", cmd, err)
}

func exit(code int, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(code)
}

// ErrExplain annotates an error with an explanation.
type ErrExplain struct {
	Cause       error
	Explanation string
}

func (err ErrExplain) Error() string {
	return fmt.Sprintf("%s\n -> %s", err.Cause, err.Explanation)
}
