package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line flags
type AppOptions struct {
	ConfigFile  string
	MqttMode    bool
	HttpMode    bool
	HttpPort    int
	Solve       bool
	B1          string
	B2          string
	OutputFile  string
	InspectFile string
}

// Runner is the set of entry points main dispatches to
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunSolve() error
	RunInspect(path string) error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp(os.Stdout)); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("planalign", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run MQTT service mode (hit and command topics)")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable HTTP and WebSocket server")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "HTTP server port (default from config, else 8080)")
	fs.BoolVar(&opts.Solve, "solve", false, "Solve the configured plan anchors against -b1/-b2 and exit")
	fs.StringVar(&opts.B1, "b1", "", "Captured origin anchor as \"x,z\" (with -solve)")
	fs.StringVar(&opts.B2, "b2", "", "Captured direction anchor as \"x,z\" (with -solve)")
	fs.StringVar(&opts.OutputFile, "output", "", "Write the solved alignment record to this JSON file")
	fs.StringVar(&opts.InspectFile, "inspect", "", "Print the transform and residuals of an alignment record")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "planalign version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.InspectFile != "":
		return app.RunInspect(opts.InspectFile)
	case opts.Solve:
		return app.RunSolve()
	case opts.MqttMode || opts.HttpMode:
		return app.RunService()
	}

	fmt.Fprintln(out, "Use --solve --b1 x,z --b2 x,z to solve an alignment once")
	fmt.Fprintln(out, "Use --inspect FILE to check a saved alignment")
	fmt.Fprintln(out, "Use --mqtt to run MQTT service mode")
	fmt.Fprintln(out, "Use --http to run HTTP server mode")
	fmt.Fprintln(out, "Use --mqtt --http to run both MQTT and HTTP together")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - plan anchors, MQTT and HTTP settings")
	return nil
}
