package temporal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/leowmjw/go-temporal-forecast/pkg/experiment"
	"github.com/leowmjw/go-temporal-forecast/pkg/timeline"
)

const (
	// TaskQueue is the default task queue of the forecasting worker
	TaskQueue = "forecast-task-queue"

	// Workflow IDs
	IngestionWorkflowIDPrefix  = "series-"
	EvaluationWorkflowIDPrefix = "evaluation-"

	// Signal names
	ObservationSignalName = "observations-signal"

	// Activity names
	AppendObservationsActivityName = "AppendObservationsActivity"
	LoadSeriesActivityName         = "LoadSeriesActivity"
	RunStrategyActivityName        = "RunStrategyActivity"
	RankActivityName               = "RankActivity"

	// Default values
	DefaultContinueAsNewThreshold = 1000 // observations before ContinueAsNew
	DefaultStrategyTimeout        = 10 * time.Minute
)

// noRetry makes every activity failure final
var noRetry = &temporal.RetryPolicy{MaximumAttempts: 1}

// ObservationSignal carries raw JSON observation records for one series
type ObservationSignal struct {
	Records [][]byte `json:"records"`
}

// IngestionRequest starts the ingestion workflow of a series
type IngestionRequest struct {
	SeriesID               string `json:"series_id"`
	ContinueAsNewThreshold int    `json:"continue_as_new_threshold,omitempty"`
}

// IngestionWorkflowState represents the state of an ingestion workflow
type IngestionWorkflowState struct {
	SeriesID         string    `json:"series_id"`
	ObservationCount int       `json:"observation_count"`
	Rejected         int       `json:"rejected"`
	LastAppendAt     time.Time `json:"last_append_at"`
}

// EvaluationRequest asks for an experiment to be run. Observations, when
// present, are used instead of the stored series.
type EvaluationRequest struct {
	Experiment   experiment.Experiment  `json:"experiment"`
	Observations []timeline.Observation `json:"observations,omitempty"`
}

// LoadedSeries is the validated input of an evaluation
type LoadedSeries struct {
	Observations []timeline.Observation `json:"observations"`
	Report       *experiment.Report     `json:"report"`
}

// StrategyRequest runs one strategy of an experiment
type StrategyRequest struct {
	Experiment   experiment.Experiment  `json:"experiment"`
	Observations []timeline.Observation `json:"observations"`
	Strategy     experiment.Strategy    `json:"strategy"`
}

// GenerateIngestionWorkflowID returns the stable workflow ID of a series
func GenerateIngestionWorkflowID(seriesID string) string {
	return IngestionWorkflowIDPrefix + seriesID
}

// GenerateEvaluationWorkflowID returns a unique workflow ID for one evaluation run
func GenerateEvaluationWorkflowID(seriesID string) string {
	if seriesID == "" {
		return EvaluationWorkflowIDPrefix + uuid.NewString()
	}
	return fmt.Sprintf("%s%s-%s", EvaluationWorkflowIDPrefix, seriesID, uuid.NewString())
}

// IngestionWorkflow appends the observations signalled for one series
func IngestionWorkflow(ctx workflow.Context, request IngestionRequest) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting ingestion workflow", "seriesID", request.SeriesID)

	threshold := request.ContinueAsNewThreshold
	if threshold <= 0 {
		threshold = DefaultContinueAsNewThreshold
	}

	state := IngestionWorkflowState{
		SeriesID:     request.SeriesID,
		LastAppendAt: workflow.Now(ctx),
	}

	ao := workflow.ActivityOptions{
		ScheduleToCloseTimeout: 30 * time.Second,
		RetryPolicy:            noRetry,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	signalChan := workflow.GetSignalChannel(ctx, ObservationSignalName)

	appendBatch := func(signal ObservationSignal) {
		logger.Info("Received observations", "count", len(signal.Records))

		err := workflow.ExecuteActivity(ctx, AppendObservationsActivityName, request.SeriesID, signal.Records).Get(ctx, nil)
		if err != nil {
			// a bad batch must not stop ingestion of the series
			logger.Error("Failed to append observations", "error", err)
			state.Rejected += len(signal.Records)
			return
		}

		state.ObservationCount += len(signal.Records)
		state.LastAppendAt = workflow.Now(ctx)
	}

	for {
		var signal ObservationSignal
		signalChan.Receive(ctx, &signal)
		appendBatch(signal)

		if state.ObservationCount >= threshold {
			// signals still buffered would be lost by continue-as-new
			for {
				var pending ObservationSignal
				if !signalChan.ReceiveAsync(&pending) {
					break
				}
				appendBatch(pending)
			}

			logger.Info("Continuing as new", "observationCount", state.ObservationCount, "rejected", state.Rejected)
			return workflow.NewContinueAsNewError(ctx, IngestionWorkflow, request)
		}
	}
}

// EvaluationWorkflow runs every strategy of an experiment as its own activity
// and ranks the results. A failed strategy is recorded in the report.
func EvaluationWorkflow(ctx workflow.Context, request EvaluationRequest) (*experiment.Report, error) {
	logger := workflow.GetLogger(ctx)
	exp := request.Experiment
	logger.Info("Starting evaluation workflow", "experiment", exp.Name, "strategies", len(exp.Strategies))

	ao := workflow.ActivityOptions{
		ScheduleToCloseTimeout: 2 * time.Minute,
		RetryPolicy:            noRetry,
	}
	loadCtx := workflow.WithActivityOptions(ctx, ao)

	var loaded LoadedSeries
	reportID := workflow.GetInfo(ctx).WorkflowExecution.ID
	err := workflow.ExecuteActivity(loadCtx, LoadSeriesActivityName, reportID, request).Get(ctx, &loaded)
	if err != nil {
		// returned as is so the application error type reaches the caller
		logger.Error("Failed to load series", "seriesID", exp.SeriesID, "error", err)
		return nil, err
	}
	report := loaded.Report

	strategyCtx := workflow.WithActivityOptions(ctx, strategyActivityOptions(exp, report.TestSize))
	futures := make([]workflow.Future, len(exp.Strategies))
	for i, strategy := range exp.Strategies {
		futures[i] = workflow.ExecuteActivity(strategyCtx, RunStrategyActivityName, StrategyRequest{
			Experiment:   exp,
			Observations: loaded.Observations,
			Strategy:     strategy,
		})
	}

	report.Results = make([]experiment.StrategyResult, len(futures))
	for i, future := range futures {
		var result *experiment.StrategyResult
		if err := future.Get(ctx, &result); err != nil || result == nil {
			strategy := exp.Strategies[i]
			logger.Error("Strategy activity failed", "strategy", strategy.Name, "error", err)
			report.Results[i] = experiment.StrategyResult{
				Strategy: strategy.Name,
				Kind:     strategy.Kind,
				Error:    activityErrorMessage(err),
			}
			continue
		}
		report.Results[i] = *result
	}

	var ranked *experiment.Report
	err = workflow.ExecuteActivity(loadCtx, RankActivityName, *report).Get(ctx, &ranked)
	if err != nil {
		logger.Error("Failed to rank report", "report", report.ID, "error", err)
		return nil, err
	}

	logger.Info("Completed evaluation workflow", "experiment", exp.Name, "best", ranked.Best)
	return ranked, nil
}

// strategyActivityOptions sizes the strategy timeout from the step budget.
// Heartbeats are only required when a step budget bounds the time between steps.
func strategyActivityOptions(exp experiment.Experiment, testSize int) workflow.ActivityOptions {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: DefaultStrategyTimeout,
		RetryPolicy:         noRetry,
	}
	if exp.StepBudget > 0 {
		ao.StartToCloseTimeout = time.Duration(testSize+1)*exp.StepBudget + time.Minute
		ao.HeartbeatTimeout = 2*exp.StepBudget + 30*time.Second
	}
	return ao
}

func activityErrorMessage(err error) string {
	if err == nil {
		return "strategy activity returned no result"
	}
	return err.Error()
}
