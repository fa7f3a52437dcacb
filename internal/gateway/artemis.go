package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"cthulhu/internal/domain"
)

// ArtemisClient manages the artemis runtime: the task YAML and the task-unit source tree.
type ArtemisClient struct {
	baseClient
}

func NewArtemisClient(baseURL string, hc *http.Client) *ArtemisClient {
	return &ArtemisClient{baseClient: newBaseClient(baseURL, hc)}
}

func (c *ArtemisClient) ListTasks(ctx context.Context) ([]domain.ArtemisTask, error) {
	var out struct {
		Tasks []domain.ArtemisTask `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("list artemis tasks: %w", err)
	}
	return nonNil(out.Tasks), nil
}

func (c *ArtemisClient) GetTaskYAML(ctx context.Context) (domain.TaskYAML, error) {
	var out domain.TaskYAML
	if err := c.do(ctx, http.MethodGet, "/runtime/task-yaml", nil, nil, &out); err != nil {
		return domain.TaskYAML{}, fmt.Errorf("get task yaml: %w", err)
	}
	return out, nil
}

func (c *ArtemisClient) UpdateTaskYAML(ctx context.Context, content string) (domain.TaskYAML, error) {
	var out domain.TaskYAML
	if err := c.do(ctx, http.MethodPut, "/runtime/task-yaml", nil, domain.TaskYAML{Content: content}, &out); err != nil {
		return domain.TaskYAML{}, fmt.Errorf("update task yaml: %w", err)
	}
	return out, nil
}

func (c *ArtemisClient) GetTaskUnitsTree(ctx context.Context) (domain.TaskUnitsTree, error) {
	var out domain.TaskUnitsTree
	if err := c.do(ctx, http.MethodGet, "/runtime/task-units/tree", nil, nil, &out); err != nil {
		return domain.TaskUnitsTree{}, fmt.Errorf("get task units tree: %w", err)
	}
	out.Items = nonNil(out.Items)
	return out, nil
}

func (c *ArtemisClient) GetTaskUnitFile(ctx context.Context, path string) (domain.TaskUnitFile, error) {
	var out domain.TaskUnitFile
	if err := c.do(ctx, http.MethodGet, "/runtime/task-units/file", pathQuery(path), nil, &out); err != nil {
		return domain.TaskUnitFile{}, fmt.Errorf("get task unit %q: %w", path, err)
	}
	return out, nil
}

func (c *ArtemisClient) UpdateTaskUnitFile(ctx context.Context, path, content string) (domain.TaskUnitFile, error) {
	return c.writeFile(ctx, http.MethodPut, path, content)
}

func (c *ArtemisClient) CreateTaskUnitFile(ctx context.Context, path, content string) (domain.TaskUnitFile, error) {
	return c.writeFile(ctx, http.MethodPost, path, content)
}

func (c *ArtemisClient) writeFile(ctx context.Context, method, path, content string) (domain.TaskUnitFile, error) {
	var out domain.TaskUnitFile
	in := domain.TaskUnitFile{Path: path, Content: content}
	if err := c.do(ctx, method, "/runtime/task-units/file", nil, in, &out); err != nil {
		return domain.TaskUnitFile{}, fmt.Errorf("write task unit %q: %w", path, err)
	}
	return out, nil
}

// RegisterTaskUnit returns the backend answer untouched; its shape is not fixed.
func (c *ArtemisClient) RegisterTaskUnit(ctx context.Context, req domain.TaskUnitRegisterRequest) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/runtime/task-units/register", nil, req, &out); err != nil {
		return nil, fmt.Errorf("register task unit %s: %w", req.TaskCode, err)
	}
	return out, nil
}

func (c *ArtemisClient) ListUnregisteredTasks(ctx context.Context) ([]domain.UnregisteredTask, error) {
	var out struct {
		Tasks []domain.UnregisteredTask `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/tasks/unregistered", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("list unregistered tasks: %w", err)
	}
	return nonNil(out.Tasks), nil
}

func (c *ArtemisClient) UnregisterTask(ctx context.Context, taskCode string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/tasks/unregister/"+url.PathEscape(taskCode), nil, struct{}{}, &out); err != nil {
		return nil, fmt.Errorf("unregister task %s: %w", taskCode, err)
	}
	return out, nil
}

func (c *ArtemisClient) RenameTaskUnit(ctx context.Context, oldPath, newPath string) (json.RawMessage, error) {
	in := struct {
		OldPath string `json:"old_path"`
		NewPath string `json:"new_path"`
	}{oldPath, newPath}
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/runtime/task-units/rename", nil, in, &out); err != nil {
		return nil, fmt.Errorf("rename task unit %q: %w", oldPath, err)
	}
	return out, nil
}

func (c *ArtemisClient) DeleteTaskUnit(ctx context.Context, path string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodDelete, "/runtime/task-units/file", pathQuery(path), nil, &out); err != nil {
		return nil, fmt.Errorf("delete task unit %q: %w", path, err)
	}
	return out, nil
}

func pathQuery(path string) url.Values {
	return url.Values{"path": []string{path}}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
