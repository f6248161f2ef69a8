package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/meshmap-dev/meshmap/internal/api"
	"github.com/meshmap-dev/meshmap/internal/config"
	"github.com/meshmap-dev/meshmap/internal/db"
	"github.com/meshmap-dev/meshmap/internal/heatmap"
	"github.com/meshmap-dev/meshmap/internal/monitoring"
	"github.com/meshmap-dev/meshmap/internal/serialmux"
	"github.com/meshmap-dev/meshmap/internal/version"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: meshmap <command> [flags]

Commands:
  serve           run the HTTP server (and optional serial ingestion)
  init-db         create the database and apply all migrations
  ingest          load samples from a JSON file
  export-heatmap  render an aggregated heatmap to an HTML file
  migrate         run schema migrations (up, down, status, force)
  version         print the build version

Run 'meshmap <command> -h' for command flags.
`)
}

func main() {
	// Optional .env next to the binary; absence is not an error.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: could not load .env: %v", err)
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	settings, err := config.FromEnv()
	if err != nil {
		log.Fatalf("invalid environment configuration: %v", err)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:], settings)
	case "init-db":
		runInitDB(os.Args[2:], settings)
	case "ingest":
		runIngest(os.Args[2:], settings)
	case "export-heatmap":
		runExportHeatmap(os.Args[2:], settings)
	case "migrate":
		runMigrate(os.Args[2:], settings)
	case "version":
		fmt.Println(version.String())
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func runServe(args []string, settings config.Settings) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := fs.String("listen", settings.Listen, "HTTP listen address")
	dbPath := fs.String("db", settings.DatabasePath, "path to the SQLite database file")
	devMode := fs.Bool("dev", false, "replay serial fixtures instead of opening a real port")
	serialPort := fs.String("serial-port", "", "serial device to ingest node telemetry from (empty: HTTP only)")
	serialBaud := fs.Int("serial-baud", 115200, "serial baud rate")
	fixtures := fs.String("fixtures", "fixtures.txt", "fixture file replayed in dev mode, one JSON sample per line")
	fs.Parse(args)

	settings.Listen = *listen
	settings.DatabasePath = *dbPath
	if err := settings.Validate(); err != nil {
		log.Fatalf("invalid settings: %v", err)
	}

	database, err := db.NewDB(settings.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	var mux serialmux.SerialMuxInterface
	switch {
	case *devMode:
		data, err := os.ReadFile(*fixtures)
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		var lines [][]byte
		for _, line := range strings.Split(string(data), "\n") {
			if strings.TrimSpace(line) != "" {
				lines = append(lines, []byte(line))
			}
		}
		mux, _ = serialmux.NewMockSerialMux(lines, time.Second)
	case *serialPort != "":
		opts := serialmux.PortOptions{BaudRate: *serialBaud}
		m, err := serialmux.NewRealSerialMux(*serialPort, opts)
		if err != nil {
			log.Fatalf("failed to open serial port %s: %v", *serialPort, err)
		}
		mux = m
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	if mux != nil {
		defer mux.Close()
		if err := mux.Initialize(); err != nil {
			log.Printf("serial initialization failed: %v", err)
		}

		// Pump lines off the serial port.
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mux.Monitor(ctx); err != nil && err != context.Canceled {
				monitoring.Logf("serial monitor stopped: %v", err)
			}
		}()

		// Parse each line as a sample and store it.
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, c := mux.Subscribe()
			defer mux.Unsubscribe(id)
			for {
				select {
				case line := <-c:
					if err := ingestSerialLine(database, line); err != nil {
						monitoring.Logf("serial sample rejected: %v", err)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		httpMux := api.NewServer(database, settings).ServeMux()
		database.AttachAdminRoutes(httpMux)

		server := &http.Server{
			Addr:    settings.Listen,
			Handler: api.LoggingMiddleware(httpMux),
		}

		go func() {
			monitoring.Logf("listening on %s (db %s)", settings.Listen, database.Path())
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	monitoring.Logf("shutdown complete")
}

// ingestSerialLine parses one line of node telemetry as a JSON sample and
// stores it. Lines that are not JSON objects are ignored; nodes also emit
// plain status text on the same port.
func ingestSerialLine(database *db.DB, line string) error {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return nil
	}

	var in db.SampleInput
	if err := json.Unmarshal([]byte(line), &in); err != nil {
		monitoring.IngestErrors.WithLabelValues("serial").Inc()
		return fmt.Errorf("failed to unmarshal sample: %w", err)
	}
	if err := in.Validate(); err != nil {
		monitoring.IngestErrors.WithLabelValues("serial").Inc()
		return err
	}

	// Leave the timestamp zero unless the node supplied one; InsertSample
	// stamps it from the store's clock, same as the HTTP path.
	sample := in.Sample(time.Time{})
	if err := database.InsertSample(sample); err != nil {
		monitoring.IngestErrors.WithLabelValues("serial").Inc()
		return fmt.Errorf("failed to store sample: %w", err)
	}

	monitoring.SamplesIngested.WithLabelValues("serial").Inc()
	monitoring.Logf("stored serial sample %d from %s", sample.ID, sample.OriginNodeID)
	return nil
}

func runInitDB(args []string, settings config.Settings) {
	fs := flag.NewFlagSet("init-db", flag.ExitOnError)
	dbPath := fs.String("db", settings.DatabasePath, "path to the SQLite database file")
	fs.Parse(args)

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer database.Close()

	fmt.Printf("database ready at %s\n", database.Path())
}

func runIngest(args []string, settings config.Settings) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	dbPath := fs.String("db", settings.DatabasePath, "path to the SQLite database file")
	fs.Parse(args)

	if fs.NArg() != 1 {
		log.Fatal("usage: meshmap ingest [-db path] <file>")
	}

	inputs, err := readSampleFile(fs.Arg(0))
	if err != nil {
		log.Fatalf("failed to read samples: %v", err)
	}

	now := time.Now()
	samples := make([]*db.Sample, 0, len(inputs))
	for i := range inputs {
		if err := inputs[i].Validate(); err != nil {
			log.Fatalf("sample %d: %v", i, err)
		}
		samples = append(samples, inputs[i].Sample(now))
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if err := database.InsertSamples(samples); err != nil {
		log.Fatalf("failed to store samples: %v", err)
	}
	monitoring.SamplesIngested.WithLabelValues("file").Add(float64(len(samples)))

	fmt.Printf("stored %d samples\n", len(samples))
}

// readSampleFile accepts either a JSON array of samples or a single sample
// object.
func readSampleFile(path string) ([]db.SampleInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var inputs []db.SampleInput
		if err := json.Unmarshal(data, &inputs); err != nil {
			return nil, fmt.Errorf("invalid sample list in %s: %w", path, err)
		}
		return inputs, nil
	}

	var in db.SampleInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("invalid sample in %s: %w", path, err)
	}
	return []db.SampleInput{in}, nil
}

func runExportHeatmap(args []string, settings config.Settings) {
	fs := flag.NewFlagSet("export-heatmap", flag.ExitOnError)
	output := fs.String("output", "", "path of the HTML file to write (required)")
	metricName := fs.String("metric", string(db.MetricRSSI), "metric to aggregate: "+strings.Join(db.MetricNames(), ", "))
	hours := fs.Int("hours", 0, "restrict to samples from the last N hours (0: all samples)")
	hardwareModel := fs.String("hardware-model", "", "restrict to one hardware model")
	antennaModel := fs.String("antenna-model", "", "restrict to one antenna model")
	dbPath := fs.String("db", settings.DatabasePath, "path to the SQLite database file")
	fs.Parse(args)

	if *output == "" {
		log.Fatal("export-heatmap requires -output")
	}

	metric, err := db.ParseMetric(*metricName)
	if err != nil {
		log.Fatalf("%v", err)
	}

	filter := db.HeatmapFilter{
		Hours:         *hours,
		HardwareModel: *hardwareModel,
		AntennaModel:  *antennaModel,
	}
	if err := filter.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	points, err := database.AggregateHeatmap(metric, filter)
	if err != nil {
		log.Fatalf("aggregation failed: %v", err)
	}

	if err := heatmap.WriteFile(*output, metric, points); err != nil {
		log.Fatalf("failed to write heatmap: %v", err)
	}

	fmt.Printf("wrote %s with %d points\n", *output, len(points))
}

func runMigrate(args []string, settings config.Settings) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db", settings.DatabasePath, "path to the SQLite database file")
	fs.Parse(args)

	db.RunMigrateCommand(fs.Args(), *dbPath)
}
