// Command viewer opens a video material from the terminal: it logs a student in, starts the
// access window and renders the countdown, then offers an extension request once it expires.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/masomo-materials/core"
	logsvc "github.com/trezcool/masomo-materials/services/logger"
)

var readPasswordFunc = term.ReadPassword // mockable

type options struct {
	apiURL     string
	username   string
	materialID string
	timeout    time.Duration
}

func parseOptions(args []string, conf *core.Config, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.apiURL, "api", defaultAPIURL(conf), "API base URL")
	fs.StringVar(&opts.username, "username", "", "student username or email")
	fs.StringVar(&opts.materialID, "material", "", "video material ID")
	fs.DurationVar(&opts.timeout, "timeout", 10*time.Second, "HTTP request timeout")
	if err := fs.Parse(args[1:]); err != nil {
		return opts, err
	}
	if opts.username == "" || opts.materialID == "" {
		fs.Usage()
		return opts, flag.ErrHelp
	}
	return opts, nil
}

func defaultAPIURL(conf *core.Config) string {
	_, port, err := net.SplitHostPort(conf.Server.Address)
	if err != nil || port == "" {
		port = "8000"
	}
	return "http://" + net.JoinHostPort(conf.Server.Host, port)
}

func main() {
	conf := core.NewConfig()
	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("viewer"), conf)
	defer logger.Sync()

	opts, err := parseOptions(os.Args, conf, os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	fmt.Print("password: ")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		logger.Fatal("reading password", err)
	}

	// closing the viewer stops the countdown, the window keeps running server side
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := newAPIClient(opts.apiURL, opts.timeout)
	if err = api.login(ctx, opts.username, string(pwd)); err != nil {
		fmt.Printf("error: %s\n", userMessage(err))
		os.Exit(1)
	}

	v := &viewer{api: api, in: bufio.NewReader(os.Stdin), out: os.Stdout, now: time.Now}
	if err = v.watch(ctx, opts.materialID); err != nil && !interrupted(err) {
		logger.Error("watching material", err)
		fmt.Printf("\nerror: %s\n", userMessage(err))
		logger.Sync()
		os.Exit(1)
	}
}

// interrupted tells whether err comes from the viewer being closed.
func interrupted(err error) bool { return errors.Is(err, context.Canceled) }

func userMessage(err error) string {
	if apiErr, ok := errors.Cause(err).(*apiError); ok && apiErr.serverFailed() {
		return "something went wrong on the server, please try again"
	}
	return err.Error()
}
