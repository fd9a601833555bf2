package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/easildur24/investorcenter.ai-sub015/configs"
	"github.com/easildur24/investorcenter.ai-sub015/internal/domain"
	process2 "github.com/easildur24/investorcenter.ai-sub015/pkg/process"
)

// The worker agent polls the service over HTTP: claim, execute the mapped
// skill, post the result, close the task. It holds no database connection;
// the claim endpoint is its only source of work.

type apiClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func newAPIClient(cfg configs.WorkerConfig) *apiClient {
	return &apiClient{
		baseURL: cfg.ServerURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *apiClient) do(method, path string, payload interface{}, out interface{}) (int, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, a.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		err = resp.Body.Close()
		if err != nil {
			slog.Error("Error occurred while closing response body", "error", err.Error())
		}
	}()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

type taskEnvelope struct {
	Success bool        `json:"success"`
	Data    domain.Task `json:"data"`
}

// claimNext returns (nil, nil) when the backlog is empty.
func (a *apiClient) claimNext(taskType string) (*domain.Task, error) {
	payload := map[string]interface{}{}
	if taskType != "" {
		payload["task_type"] = taskType
	}

	var envelope taskEnvelope
	status, err := a.do(http.MethodPost, "/worker/next-task", payload, &envelope)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return &envelope.Data, nil
	case http.StatusNoContent:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected status %d from next-task", status)
	}
}

func (a *apiClient) updateStatus(taskID string, to domain.TaskStatus, retryIncrement bool) error {
	status, err := a.do(http.MethodPut, "/worker/tasks/"+taskID+"/status", map[string]interface{}{
		"status":          string(to),
		"retry_increment": retryIncrement,
	}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("unexpected status %d from status update", status)
	}
	return nil
}

func (a *apiClient) postResult(taskID string, result map[string]interface{}) error {
	status, err := a.do(http.MethodPost, "/worker/tasks/"+taskID+"/result", map[string]interface{}{
		"result": result,
	}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("unexpected status %d from result post", status)
	}
	return nil
}

func (a *apiClient) heartbeat() error {
	status, err := a.do(http.MethodPost, "/worker/heartbeat", nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("unexpected status %d from heartbeat", status)
	}
	return nil
}

func runTask(api *apiClient, task *domain.Task) {
	slog.Info("Task is claimed", "task_id", task.ID, "priority", task.Priority)

	if task.TaskType == nil {
		slog.Error("Claimed task has no type, releasing it back to pending", "task_id", task.ID)
		if err := api.updateStatus(task.ID, domain.Pending, true); err != nil {
			slog.Error("Error occurred while releasing task", "task_id", task.ID, "error", err.Error())
		}
		return
	}

	process, err := process2.NewProcess(task.TaskType.Name)
	if err != nil {
		slog.Error("No skill registered for the task type, marking task as failed", "task_id", task.ID, "task_type", task.TaskType.Name, "error", err.Error())
		if err := api.updateStatus(task.ID, domain.Failed, true); err != nil {
			slog.Error("Error occurred while failing task", "task_id", task.ID, "error", err.Error())
		}
		return
	}

	params := map[string]interface{}{}
	if len(task.Params) > 0 {
		if err := json.Unmarshal(task.Params, &params); err != nil {
			slog.Error("Failed to unmarshal task params, marking task as failed", "task_id", task.ID, "error", err.Error())
			if err := api.updateStatus(task.ID, domain.Failed, true); err != nil {
				slog.Error("Error occurred while failing task", "task_id", task.ID, "error", err.Error())
			}
			return
		}
	}

	var result map[string]interface{}
	operation := func() error {
		var execErr error
		result, execErr = process.Execute(params)
		return execErr
	}

	// Retrial of the skill in case of transient failure
	err = backoff.Retry(operation, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3))
	if err != nil {
		slog.Error("Error has happened while doing the task", "task_id", task.ID, "task_type", task.TaskType.Name, "error", err.Error())
		if err := api.updateStatus(task.ID, domain.Failed, true); err != nil {
			slog.Error("Error occurred while failing task", "task_id", task.ID, "error", err.Error())
		}
		return
	}

	if err := api.postResult(task.ID, result); err != nil {
		slog.Error("Error occurred while posting task result, releasing task", "task_id", task.ID, "error", err.Error())
		if err := api.updateStatus(task.ID, domain.Pending, true); err != nil {
			slog.Error("Error occurred while releasing task", "task_id", task.ID, "error", err.Error())
		}
		return
	}

	if err := api.updateStatus(task.ID, domain.Completed, false); err != nil {
		slog.Error("Error occurred while completing task", "task_id", task.ID, "error", err.Error())
		return
	}
	slog.Info("Task running has been successfully finished", "task_id", task.ID, "task_type", task.TaskType.Name)
}

func main() {
	cfg := configs.InitConfig()
	if cfg.Worker.Token == "" {
		log.Fatal("WORKER_TOKEN must be set")
		return
	}

	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(h))

	api := newAPIClient(cfg.Worker)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	pollInterval := time.Duration(cfg.Worker.PollIntervalSeconds) * time.Second
	pollTicker := time.NewTicker(pollInterval)
	defer pollTicker.Stop()

	heartbeatTicker := time.NewTicker(2 * time.Minute)
	defer heartbeatTicker.Stop()

	slog.Info("Worker is running. To exit press CTRL+C", "server_url", cfg.Worker.ServerURL, "poll_interval", pollInterval, "task_type_filter", cfg.Worker.TaskTypeFilter)

	for {
		select {
		case <-sigChan:
			slog.Info("Worker is shutting down...")
			return
		case <-heartbeatTicker.C:
			if err := api.heartbeat(); err != nil {
				slog.Error("Error occurred while sending heartbeat", "error", err.Error())
			}
		case <-pollTicker.C:
			task, err := api.claimNext(cfg.Worker.TaskTypeFilter)
			if err != nil {
				slog.Error("Error occurred while claiming next task", "error", err.Error())
				continue
			}
			if task == nil {
				continue
			}
			runTask(api, task)
		}
	}
}
