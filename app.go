package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/kwv/planalign/align"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *align.Config
	Logger     *zap.Logger
	Node       *align.SceneNode
	Controller *align.Controller
	Hub        *Hub
	MQTTClient *align.MQTTClient
	Publisher  *align.Publisher

	// CLI Flags (effectively dependencies)
	ConfigFile string
	OutputFile string
	B1         string
	B2         string
	HttpPort   int
	MqttMode   bool
	HttpMode   bool

	out io.Writer
}

// NewApp creates a new App instance printing to out
func NewApp(out io.Writer) *App {
	return &App{out: out}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.OutputFile = opts.OutputFile
	a.B1 = opts.B1
	a.B2 = opts.B2
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// loadConfig reads the config file and builds the logger, unless both are already set
func (a *App) loadConfig() error {
	if a.Config == nil {
		config, err := align.LoadConfig(a.ConfigFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		a.Config = config
	}
	if a.Logger == nil {
		logger, err := align.NewLogger(a.Config.Log)
		if err != nil {
			return err
		}
		a.Logger = logger
	}
	return nil
}

// RunSolve solves the configured plan anchors against the -b1/-b2 positions
func (a *App) RunSolve() error {
	if err := a.loadConfig(); err != nil {
		return err
	}

	b1, err := parsePoint(a.B1)
	if err != nil {
		return fmt.Errorf("-b1: %w", err)
	}
	b2, err := parsePoint(a.B2)
	if err != nil {
		return fmt.Errorf("-b2: %w", err)
	}

	rec, err := align.NewAlignmentRecord(a.Config.Plan.Name, a.Config.PlanAnchors(),
		align.Vec3{X: b1.X, Z: b1.Z}, align.Vec3{X: b2.X, Z: b2.Z})
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, rec.Status)
	pose := a.Config.Applier().Pose(align.IdentityPose(), rec.Transform)
	q := pose.Quaternion()
	fmt.Fprintf(a.out, "node scale=%s rotation=(%.4f, %.4f, %.4f, %.4f)\n", pose.Scale, q.X, q.Y, q.Z, q.W)

	if a.OutputFile != "" {
		if err := align.SaveAlignment(a.OutputFile, rec); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Saved alignment to %s\n", a.OutputFile)
	}
	return nil
}

// RunInspect prints a saved alignment and how well it reproduces its anchors
func (a *App) RunInspect(path string) error {
	rec, err := align.LoadAlignment(path)
	if err != nil {
		return err
	}

	if rec.Plan != "" {
		fmt.Fprintf(a.out, "Plan: %s\n", rec.Plan)
	}
	if rec.CreatedAt != 0 {
		fmt.Fprintf(a.out, "Created: %s\n", time.Unix(rec.CreatedAt, 0).UTC().Format(time.RFC3339))
	}
	fmt.Fprintln(a.out, rec.Transform.String())

	r1, r2 := rec.Residuals()
	fmt.Fprintf(a.out, "A1 (%.3f, %.3f) -> %s, residual %.6f\n", rec.Anchors.A1.X, rec.Anchors.A1.Z, rec.Transform.Apply(rec.Anchors.A1), r1)
	fmt.Fprintf(a.out, "A2 (%.3f, %.3f) -> %s, residual %.6f\n", rec.Anchors.A2.X, rec.Anchors.A2.Z, rec.Transform.Apply(rec.Anchors.A2), r2)
	if r1 > align.Epsilon || r2 > align.Epsilon {
		fmt.Fprintln(a.out, "Warning: recorded anchors no longer match the transform")
	}
	return nil
}

// RunService runs the MQTT and/or HTTP front ends until interrupted
func (a *App) RunService() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.serve(ctx)
}

// setup builds the scene node, controller and websocket hub
func (a *App) setup() {
	a.Node = align.NewSceneNode("plan-root")
	a.Controller = align.NewController(a.Config.PlanAnchors(), a.Node,
		align.WithLogger(a.Logger.With(zap.String("component", "controller"))),
		align.WithApplier(a.Config.Applier()))
	a.Hub = NewHub(a.Controller, a.Logger)
	a.Controller.Subscribe(a.Hub.Observe)
}

func (a *App) serve(ctx context.Context) error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	defer a.Logger.Sync()
	a.setup()

	plan := a.Config.PlanAnchors()
	a.Logger.Info("starting planalign service",
		zap.String("version", Version),
		zap.String("plan", a.Config.Plan.Name),
		zap.String("session", a.Controller.Snapshot().SessionID),
		zap.Float64("baseline", align.Distance(plan.A1, plan.A2)))

	g, ctx := errgroup.WithContext(ctx)

	if a.MqttMode {
		mqttClient, err := align.InitMQTT(ctx, a.Config, a.Controller, a.Logger)
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if mqttClient == nil {
			return errors.New("MQTT broker not configured in config.yaml")
		}
		a.MQTTClient = mqttClient
		a.Publisher = align.NewPublisher(mqttClient.GetClient(), a.Config.MQTT.PublishPrefix, a.Logger)
		a.Controller.Subscribe(a.Publisher.Observe)

		g.Go(func() error {
			<-ctx.Done()
			a.MQTTClient.Disconnect()
			return nil
		})
	}

	port := a.HttpPort
	if port == 0 {
		port = a.Config.HTTP.GetPort()
	}

	if a.HttpMode {
		srv := &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", port),
			Handler:           newHTTPServer(a.Controller, a.Hub, a.Logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			a.Logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			a.Hub.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	a.printServiceInfo(port)

	err := g.Wait()
	a.Logger.Info("service stopped")
	return err
}

func (a *App) printServiceInfo(port int) {
	fmt.Fprintln(a.out, "\nService Running")
	fmt.Fprintln(a.out, "===============")

	if a.MqttMode {
		hit, cmd := a.MQTTClient.Topics()
		fmt.Fprintln(a.out, "\nMQTT:")
		fmt.Fprintf(a.out, "  Hit topic:     %s\n", hit)
		fmt.Fprintf(a.out, "  Command topic: %s\n", cmd)
		fmt.Fprintf(a.out, "  Publishing to: %s, %s\n", a.Publisher.StatusTopic(), a.Publisher.TransformTopic())
	}

	if a.HttpMode {
		fmt.Fprintf(a.out, "\nHTTP endpoints (port %d):\n", port)
		fmt.Fprintln(a.out, "  GET    /health          - Health check")
		fmt.Fprintln(a.out, "  GET    /status          - Capture status")
		fmt.Fprintln(a.out, "  PUT    /hit             - Latest hit-test result")
		fmt.Fprintln(a.out, "  DELETE /hit             - No surface found")
		fmt.Fprintln(a.out, "  POST   /anchors/{B1|B2} - Capture an anchor")
		fmt.Fprintln(a.out, "  POST   /reset           - Clear captured anchors")
		fmt.Fprintln(a.out, "  GET    /pose            - Plan root pose")
		fmt.Fprintln(a.out, "  GET    /ws              - Live status and commands")
	}

	fmt.Fprintln(a.out, "\nPress Ctrl+C to stop")
}

// parsePoint parses a horizontal position given as "x,z"
func parsePoint(s string) (align.Point2, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return align.Point2{}, fmt.Errorf("want \"x,z\", got %q", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return align.Point2{}, fmt.Errorf("parsing x: %w", err)
	}
	z, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return align.Point2{}, fmt.Errorf("parsing z: %w", err)
	}
	return align.Point2{X: x, Z: z}, nil
}
