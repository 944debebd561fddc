package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

func (c *Client) refreshAction(id string) *client.ScheduleWorkflowAction {
	return &client.ScheduleWorkflowAction{
		ID:        id,
		Workflow:  RefreshEligibleUsersWorkflow,
		TaskQueue: c.taskQueue,
		Args:      []interface{}{RefreshEligibleUsersInput{}},
	}
}

// UpsertRefreshSchedule creates the refresh schedule, or updates its interval
// when it already exists.
func (c *Client) UpsertRefreshSchedule(ctx context.Context, interval time.Duration) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, RefreshScheduleID)
	if _, err := handle.Describe(ctx); err != nil {
		c.logger.Debug("schedule not found, creating new one", "schedule_id", RefreshScheduleID, "error", err)

		_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
			ID: RefreshScheduleID,
			Spec: client.ScheduleSpec{
				Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
			},
			Action: c.refreshAction(RefreshScheduleID),
			Memo: map[string]interface{}{
				"created_by": "cashback",
			},
		})
		if err != nil {
			c.logger.Error("failed to create schedule", "schedule_id", RefreshScheduleID, "error", err)
			return fmt.Errorf("failed to create schedule %q: %w", RefreshScheduleID, err)
		}

		c.logger.Info("refresh schedule created", "schedule_id", RefreshScheduleID, "interval", interval)
		return nil
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			input.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{{Every: interval}}
			return &client.ScheduleUpdate{Schedule: &input.Description.Schedule}, nil
		},
	})
	if err != nil {
		c.logger.Error("failed to update schedule", "schedule_id", RefreshScheduleID, "error", err)
		return fmt.Errorf("failed to update schedule %q: %w", RefreshScheduleID, err)
	}

	c.logger.Info("refresh schedule updated", "schedule_id", RefreshScheduleID, "interval", interval)
	return nil
}

// DeleteRefreshSchedule deletes the refresh schedule.
func (c *Client) DeleteRefreshSchedule(ctx context.Context) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, RefreshScheduleID)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule", "schedule_id", RefreshScheduleID, "error", err)
		return fmt.Errorf("failed to delete schedule %q: %w", RefreshScheduleID, err)
	}

	c.logger.Info("refresh schedule deleted", "schedule_id", RefreshScheduleID)
	return nil
}

// TriggerRefresh starts one refresh run outside the schedule.
func (c *Client) TriggerRefresh(ctx context.Context) (string, error) {
	id := fmt.Sprintf("%s-manual-%d", RefreshScheduleID, time.Now().UnixNano())
	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: c.taskQueue,
	}, RefreshEligibleUsersWorkflow, RefreshEligibleUsersInput{})
	if err != nil {
		return "", fmt.Errorf("failed to start refresh workflow: %w", err)
	}

	c.logger.Info("refresh workflow started", "workflow_id", run.GetID(), "run_id", run.GetRunID())
	return run.GetID(), nil
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
