package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.temporal.io/sdk/client"

	"github.com/leowmjw/go-temporal-forecast/pkg/experiment"
	"github.com/leowmjw/go-temporal-forecast/pkg/forecast"
	"github.com/leowmjw/go-temporal-forecast/pkg/hcl"
	"github.com/leowmjw/go-temporal-forecast/pkg/temporal"
	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	var (
		experimentPath string
		dataPath       string
		displayJSON    bool
		useTemporal    bool
		address        string
		namespace      string
		taskQueue      string
		concurrency    int
	)

	flag.StringVar(&experimentPath, "experiment", "", "Path to an HCL or JSON experiment file, or a directory of HCL files (required)")
	flag.StringVar(&dataPath, "data", "", "Path to observations as a JSON array or JSON lines (required)")
	flag.BoolVar(&displayJSON, "json", false, "Display the report as JSON")
	flag.BoolVar(&useTemporal, "temporal", false, "Run the evaluation as a Temporal workflow instead of locally")
	flag.StringVar(&address, "address", "localhost:7233", "Address of Temporal server")
	flag.StringVar(&namespace, "namespace", "default", "Temporal namespace")
	flag.StringVar(&taskQueue, "task-queue", temporal.TaskQueue, "Temporal task queue")
	flag.IntVar(&concurrency, "concurrency", 0, "Strategies evaluated at once in local mode (0 means all)")
	flag.Parse()

	if experimentPath == "" || dataPath == "" {
		logger.Error("Both -experiment and -data are required")
		flag.Usage()
		os.Exit(1)
	}

	exp, err := loadExperiment(experimentPath)
	if err != nil {
		logger.Error("Failed to load experiment", "path", experimentPath, "error", err)
		os.Exit(1)
	}

	observations, err := loadObservations(dataPath)
	if err != nil {
		logger.Error("Failed to load observations", "path", dataPath, "error", err)
		os.Exit(1)
	}
	logger.Info("Loaded inputs", "experiment", exp.Name, "strategies", len(exp.Strategies), "observations", len(observations))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var report *experiment.Report
	if useTemporal {
		report, err = runOnTemporal(ctx, address, namespace, taskQueue, *exp, observations, logger)
	} else {
		report, err = experiment.NewRunner(forecast.DefaultRegistry(), logger, concurrency).Run(ctx, observations, *exp)
	}
	if err != nil {
		logger.Error("Evaluation failed", "error", err)
		os.Exit(1)
	}

	displayReport(os.Stdout, report, displayJSON, logger)
}

// loadExperiment reads an HCL file or directory, or a JSON file
func loadExperiment(path string) (*experiment.Experiment, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var exp experiment.Experiment
		if err := json.Unmarshal(content, &exp); err != nil {
			return nil, fmt.Errorf("failed to parse JSON experiment: %w", err)
		}
		return &exp, nil
	}
	return hcl.ParseExperimentPath(path)
}

// loadObservations reads raw records from a file and decodes them
func loadObservations(path string) ([]timeline.Observation, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	records, err := splitRecords(content)
	if err != nil {
		return nil, err
	}
	return timeline.NewObservationDecoder().DecodeAll(records)
}

// splitRecords accepts a JSON array of objects or one object per line
func splitRecords(content []byte) ([][]byte, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse JSON array: %w", err)
		}
		records := make([][]byte, len(raw))
		for i, r := range raw {
			records[i] = []byte(r)
		}
		return records, nil
	}

	var records [][]byte
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		records = append(records, append([]byte(nil), line...))
	}
	return records, scanner.Err()
}

// runOnTemporal executes the evaluation workflow with the observations inline
func runOnTemporal(ctx context.Context, address, namespace, taskQueue string, exp experiment.Experiment, observations []timeline.Observation, logger *slog.Logger) (*experiment.Report, error) {
	c, err := client.Dial(client.Options{
		HostPort:  address,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create Temporal client: %w", err)
	}
	defer c.Close()

	options := client.StartWorkflowOptions{
		ID:        temporal.GenerateEvaluationWorkflowID(exp.SeriesID),
		TaskQueue: taskQueue,
	}
	logger.Info("Executing evaluation workflow", "workflow_id", options.ID, "task_queue", taskQueue)

	run, err := c.ExecuteWorkflow(ctx, options, temporal.EvaluationWorkflow, temporal.EvaluationRequest{
		Experiment:   exp,
		Observations: observations,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute evaluation workflow: %w", err)
	}

	var report *experiment.Report
	if err := run.Get(ctx, &report); err != nil {
		return nil, fmt.Errorf("failed to get evaluation result: %w", err)
	}
	return report, nil
}

// displayReport shows the report in human-readable or JSON format
func displayReport(w io.Writer, report *experiment.Report, jsonOutput bool, logger *slog.Logger) {
	if jsonOutput {
		reportJSON, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			logger.Error("Failed to marshal report to JSON", "error", err)
			fmt.Fprintf(w, "%+v\n", report)
		} else {
			fmt.Fprintln(w, string(reportJSON))
		}
		return
	}

	fmt.Fprintf(w, "Experiment: %s (%s)\n", report.Experiment, report.ID)
	fmt.Fprintf(w, "  Cutoff: %s  Train: %d  Test: %d\n", report.Cutoff.Format("2006-01-02"), report.TrainSize, report.TestSize)
	fmt.Fprintln(w, "Leaderboard:")
	for i, record := range report.Leaderboard {
		fmt.Fprintf(w, "  %d. %-16s RMSE %12.4f  MAE %12.4f  MAPE %7.3f%%\n", i+1, record.Model, record.RMSE, record.MAE, record.MAPE)
	}
	for _, res := range report.Results {
		if res.Succeeded() {
			continue
		}
		if res.FailedStep != nil {
			fmt.Fprintf(w, "  failed: %s at step %d: %s\n", res.Strategy, *res.FailedStep, res.Error)
		} else {
			fmt.Fprintf(w, "  failed: %s: %s\n", res.Strategy, res.Error)
		}
	}
	if report.Best != "" {
		fmt.Fprintf(w, "Best model: %s\n", report.Best)
	}
}
