// Command relay runs the chat relay server and its companion tools.
//
//	relay server                      serve the websocket relay
//	relay client                      join a room from the terminal
//	relay rooms                       list the room catalog
//	relay create-room -name general -a 1 -b 2
//	relay inspect -prefix msg:7:      dump the embedded store
package main

import (
	"chat-relay/internal"
	"fmt"
	"os"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run(args []string) (int, error) {
	if len(args) == 0 {
		return exitConfig, fmt.Errorf("missing command, expected one of server, client, rooms, create-room, inspect")
	}
	_ = godotenv.Load()

	command, args := args[0], args[1:]

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	switch command {
	case "client":
		var clientConfig internal.ClientConfig
		if _, err := env.UnmarshalFromEnviron(&clientConfig); err != nil {
			return exitConfig, fmt.Errorf("config error: %w", err)
		}
		if err := clientConfig.Validate(); err != nil {
			return exitConfig, err
		}
		return runClient(config, clientConfig, logger)
	case "server":
		return runServer(config, logger)
	case "rooms":
		return runRooms(config, logger)
	case "create-room":
		return runCreateRoom(config, logger, args)
	case "inspect":
		return runInspect(config, args)
	default:
		return exitConfig, fmt.Errorf("unknown command %q", command)
	}
}
