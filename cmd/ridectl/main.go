// Command ridectl is the ride client front end. Each subcommand is one
// screen action; `serve` runs the local view server for a thin UI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/example/ride-client/internal/config"
	"github.com/example/ride-client/internal/logging"
)

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":            {"login -email E -password P [-role user|captain|admin]", cmdLogin},
	"logout":           {"logout", cmdLogout},
	"whoami":           {"whoami", cmdWhoami},
	"register":         {"register -first F -last L -email E -password P", cmdRegister},
	"register-captain": {"register-captain -first F -last L -email E -password P -vehicle moto|auto|car -color C -plate P -capacity N", cmdRegisterCaptain},
	"fare":             {"fare -pickup P -destination D", cmdFare},
	"book":             {"book -pickup P -destination D -vehicle moto|auto|car [-schedule]", cmdBook},
	"status":           {"status", cmdStatus},
	"watch":            {"watch", cmdWatch},
	"captain":          {"captain (reads accept/reject from stdin)", cmdCaptain},
	"start":            {"start -otp OTP", cmdStart},
	"chat":             {"chat (reads messages from stdin)", cmdChat},
	"end":              {"end [-stop S ...]", cmdEnd},
	"pay":              {"pay", cmdPay},
	"summary":          {"summary", cmdSummary},
	"history":          {"history [-ride ID] (needs PG_DSN)", cmdHistory},
	"route":            {"route -from P -to D", cmdRoute},
	"dashboard":        {"dashboard", cmdDashboard},
	"profile":          {"profile (captain documents and verification)", cmdProfile},
	"online":           {"online", cmdOnline},
	"offline":          {"offline", cmdOffline},
	"admin":            {"admin stats|users|captains|rides|captain ID|verify ID|delete-user ID", cmdAdmin},
	"serve":            {"serve", cmdServe},
}

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		printUsage(stderr)
		return errUsage
	}

	cfg, err := config.LoadClientConfig()
	if err != nil {
		return err
	}
	logger := logging.New(stderr, cfg.LogLevel, cfg.LogFormat)
	a, err := newApp(cfg, logger, stdout)
	if err != nil {
		return err
	}
	defer a.close()
	return cmd.run(ctx, a, args[1:])
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("usage: ridectl <command> [flags]\n\n")
	for _, n := range names {
		b.WriteString("  " + commands[n].usage + "\n")
	}
	fmt.Fprint(w, b.String())
}
