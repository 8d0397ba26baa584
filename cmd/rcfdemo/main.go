package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rcf-project/rcf/rcf"
)

var help = `
  Usage: rcfdemo [command] [--help]

  Commands:
    server - runs an rcf demo server
    client - calls the rcf demo server's Echo interface

  Read more:
    https://github.com/rcf-project/rcf

`

func sigIntHandler(ctx context.Context, cancel context.CancelFunc) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT)
	for {
		select {
		case <-sig:
			fmt.Fprintln(os.Stderr, "SIGINT received; cancelling main ctx")
		case <-ctx.Done():
		}
		signal.Stop(sig)
		cancel()
	}
}

func main() {
	ctx, ctxCancel := context.WithCancel(context.Background())
	defer ctxCancel()

	flag.Bool("help", false, "")
	flag.Bool("h", false, "")
	flag.Usage = func() {}
	flag.Parse()

	args := flag.Args()
	subcmd := ""
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "server":
		go sigIntHandler(ctx, ctxCancel)
		runServer(ctx, args)
	case "client":
		go sigIntHandler(ctx, ctxCancel)
		runClient(ctx, args)
	default:
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
}

var serverHelp = `
  Usage: rcfdemo server [options]

  Options:

    --addr, TCP address to listen on (defaults to 127.0.0.1:9001)

    -v, Enable debug logging

    --help, This help text

`

func runServer(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("server", flag.ContinueOnError)
	addr := flags.String("addr", "127.0.0.1:9001", "")
	verbose := flags.Bool("v", false, "")
	flags.Usage = func() { fmt.Print(serverHelp); os.Exit(1) }
	flags.Parse(args)

	logLevel := rcf.LogLevelInfo
	if *verbose {
		logLevel = rcf.LogLevelDebug
	}
	logger := rcf.NewLogger("rcfdemo", logLevel)

	ep, err := rcf.ParseEndpoint("tcp://" + *addr)
	if err != nil {
		logger.Fatalf("invalid --addr %q: %s", *addr, err)
	}
	ln, err := rcf.ListenTCP(ep, logger)
	if err != nil {
		logger.Fatalf("listen failed: %s", err)
	}

	dispatcher := rcf.NewDispatcher()
	dispatcher.Register(newEchoBinding())

	pool := rcf.NewBufferPool(16)
	chain := rcf.NewChain()
	srv := rcf.NewServer(logger, dispatcher, rcf.ServerConfig{Chain: chain, BufferPool: pool})
	srv.ShutdownOnContext(ctx)

	logger.ILogf("listening on %s", ln.Addr())
	if err := srv.Serve(ctx, ln); err != nil {
		logger.ELogf("serve exited: %s", err)
	}
	srv.WaitShutdown()
}

var clientHelp = `
  Usage: rcfdemo client [options] <message>

  Options:

    --addr, TCP address of the rcfdemo server (defaults to 127.0.0.1:9001)

    --later, Call the deferred-completion SayLater method instead of Say

    --help, This help text

`

func runClient(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("client", flag.ContinueOnError)
	addr := flags.String("addr", "127.0.0.1:9001", "")
	later := flags.Bool("later", false, "")
	flags.Usage = func() { fmt.Print(clientHelp); os.Exit(1) }
	flags.Parse(args)

	rest := flags.Args()
	message := "hello"
	if len(rest) > 0 {
		message = rest[0]
	}

	logger := rcf.NewLogger("rcfdemo", rcf.LogLevelInfo)
	ep, err := rcf.ParseEndpoint("tcp://" + *addr)
	if err != nil {
		logger.Fatalf("invalid --addr %q: %s", *addr, err)
	}
	dialer, err := rcf.DialTCP(ep, logger)
	if err != nil {
		logger.Fatalf("dialer setup failed: %s", err)
	}

	pool := rcf.NewBufferPool(16)
	chain := rcf.NewChain()
	stub := rcf.NewClientStub(logger, dialer, pool, chain, rcf.ClientStubConfig{KeepAlive: 0})
	if err := stub.Connect(ctx); err != nil {
		logger.Fatalf("connect failed: %s", err)
	}
	defer stub.Close()

	methodID := echoMethodSay
	if *later {
		methodID = echoMethodSayLater
	}

	var reply echoReply
	archive := rcf.ArchiveForProtocol(rcf.SerializationProtocolText)
	if err := stub.Call(ctx, "Echo", methodID, 1, archive, &echoArgs{Message: message}, &reply); err != nil {
		logger.Fatalf("call failed: %s", err)
	}
	fmt.Println(reply.Message)
}
