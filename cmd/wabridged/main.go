package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pedrozc90/wabridge/internal/daemon"
	"github.com/pedrozc90/wabridge/internal/session"
	"go.uber.org/fx"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	autoConnect := flag.Bool("connect", true, "connect to WhatsApp on startup")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			SessionName: sessionName,
			AutoConnect: *autoConnect,
		}),
	)

	app.Run()
}
