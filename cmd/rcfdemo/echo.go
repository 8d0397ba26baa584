package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rcf-project/rcf/rcf"
)

// echoArgs/echoReply are the argument and reply types shared by both of the
// demo Echo interface's methods (Say and SayLater), standing in for the generated stub/skeleton pair a real RCF interface
// definition would produce.
type echoArgs struct {
	Message string `json:"message"`
}

type echoReply struct {
	Message string `json:"message"`
}

const (
	echoMethodSay      uint32 = 1
	echoMethodSayLater uint32 = 2
)

// newEchoBinding builds the server-side InterfaceBinding for the demo Echo
// interface, reflecting spec.md section 4.B's interface/method-id binding
// directly rather than through any code-generation step.
func newEchoBinding() *rcf.InterfaceBinding {
	b := rcf.NewInterfaceBinding("Echo")
	b.Bind(echoMethodSay, func(ctx context.Context, archive rcf.Archive, raw []byte) ([]byte, error) {
		var args echoArgs
		if err := archive.Unmarshal(raw, &args); err != nil {
			return nil, rcf.NewRemoteError(rcf.ErrorKindApplication, err)
		}
		reply := echoReply{Message: "echo: " + args.Message}
		out, err := archive.Marshal(&reply)
		if err != nil {
			return nil, rcf.NewRemoteError(rcf.ErrorKindApplication, err)
		}
		return out, nil
	})
	// SayLater demonstrates spec.md section 4.G's deferred completion path:
	// it answers from a background goroutine instead of returning
	// synchronously, exercising Session.Defer/RemoteCallContext.
	b.Bind(echoMethodSayLater, func(ctx context.Context, archive rcf.Archive, raw []byte) ([]byte, error) {
		var args echoArgs
		if err := archive.Unmarshal(raw, &args); err != nil {
			return nil, rcf.NewRemoteError(rcf.ErrorKindApplication, err)
		}
		session, ok := rcf.SessionFromContext(ctx)
		if !ok {
			return nil, rcf.NewRemoteError(rcf.ErrorKindApplication, fmt.Errorf("no session in context"))
		}
		requestID, ok := rcf.RequestIDFromContext(ctx)
		if !ok {
			return nil, rcf.NewRemoteError(rcf.ErrorKindApplication, fmt.Errorf("no request id in context"))
		}
		rcc := session.Defer(requestID)
		go func() {
			time.Sleep(100 * time.Millisecond)
			rcc.Complete(archive, &echoReply{Message: "delayed echo: " + args.Message})
		}()
		return nil, rcf.ErrCallDeferred
	})
	return b
}
