// Package googletasks implements the remote.Gateway interface using the
// Google Tasks API.
package googletasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"github.com/dori/tasca/internal/model"
	"github.com/dori/tasca/internal/remote"
)

const (
	// PageSize is the number of tasks fetched per page.
	PageSize = 100

	// DefaultTimeout bounds each API call; a hang becomes a TransientError.
	DefaultTimeout = 30 * time.Second
)

// Client implements remote.Gateway using the Google Tasks API.
type Client struct {
	svc     *tasks.Service
	timeout time.Duration
}

// New creates a gateway from a caller-supplied token source. Token
// acquisition and refresh belong to the auth collaborator, not here.
func New(ctx context.Context, ts oauth2.TokenSource, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := oauth2.NewClient(ctx, ts)
	svc, err := tasks.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks service: %w", err)
	}

	return &Client{svc: svc, timeout: timeout}, nil
}

// FetchChanges lists tasks updated since the cursor, tombstones included.
// The cursor is an RFC3339 updatedMin timestamp; empty means full listing.
func (c *Client) FetchChanges(ctx context.Context, tasklistID, cursor string) ([]remote.RemoteTask, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	call := c.svc.Tasks.List(tasklistID).
		MaxResults(PageSize).
		ShowCompleted(true).
		ShowHidden(true).
		ShowDeleted(true).
		Context(ctx)
	if cursor != "" {
		call = call.UpdatedMin(cursor)
	}

	newCursor := cursor
	var result []remote.RemoteTask
	var pageToken string

	for {
		resp, err := call.PageToken(pageToken).Do()
		if err != nil {
			return nil, "", classify("fetch_changes", err)
		}

		for _, item := range resp.Items {
			rt := toRemoteTask(tasklistID, item)
			result = append(result, rt)
			if stamp := rt.UpdatedAt.Format(time.RFC3339); stamp > newCursor {
				newCursor = stamp
			}
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	if newCursor == "" {
		newCursor = time.Now().UTC().Format(time.RFC3339)
	}

	return result, newCursor, nil
}

// Create pushes a new task and returns the remote id and updated_at
func (c *Client) Create(ctx context.Context, t model.Task) (string, time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	created, err := c.svc.Tasks.Insert(t.TasklistID, toAPITask(t)).Context(ctx).Do()
	if err != nil {
		return "", time.Time{}, classify("create", err)
	}

	return created.Id, parseStamp(created.Updated), nil
}

// Update pushes an edit to an existing remote task
func (c *Client) Update(ctx context.Context, t model.Task) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	updated, err := c.svc.Tasks.Patch(t.TasklistID, t.ID, toAPITask(t)).Context(ctx).Do()
	if err != nil {
		return time.Time{}, classify("update", err)
	}

	return parseStamp(updated.Updated), nil
}

// Delete removes a task on the remote
func (c *Client) Delete(ctx context.Context, tasklistID, remoteID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.svc.Tasks.Delete(tasklistID, remoteID).Context(ctx).Do(); err != nil {
		return classify("delete", err)
	}
	return nil
}

// ListTasklists returns all tasklists known to the remote
func (c *Client) ListTasklists(ctx context.Context) ([]model.Tasklist, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var lists []model.Tasklist
	err := c.svc.Tasklists.List().MaxResults(PageSize).Pages(ctx, func(resp *tasks.TaskLists) error {
		for _, item := range resp.Items {
			lists = append(lists, model.Tasklist{
				ID:        item.Id,
				Title:     item.Title,
				SyncState: model.StateSynced,
				UpdatedAt: parseStamp(item.Updated),
			})
		}
		return nil
	})
	if err != nil {
		return nil, classify("list_tasklists", err)
	}

	return lists, nil
}

func toRemoteTask(tasklistID string, item *tasks.Task) remote.RemoteTask {
	rt := remote.RemoteTask{
		ID:         item.Id,
		TasklistID: tasklistID,
		Title:      item.Title,
		Notes:      item.Notes,
		Completed:  item.Status == "completed",
		Position:   item.Position,
		Deleted:    item.Deleted,
		UpdatedAt:  parseStamp(item.Updated),
	}
	if item.Due != "" {
		if due, err := time.Parse(time.RFC3339, item.Due); err == nil {
			rt.Due = &due
		}
	}
	if item.Completed != nil {
		if done, err := time.Parse(time.RFC3339, *item.Completed); err == nil {
			rt.CompletedAt = &done
		}
	}
	return rt
}

func toAPITask(t model.Task) *tasks.Task {
	api := &tasks.Task{
		Id:     t.ID,
		Title:  t.Title,
		Notes:  t.Notes,
		Status: "needsAction",
	}
	if t.IsLocalOnly() {
		api.Id = ""
	}
	if t.Completed {
		api.Status = "completed"
	}
	if t.Due != nil {
		api.Due = t.Due.UTC().Format(time.RFC3339)
	}
	return api
}

func parseStamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// classify maps API failures onto the gateway error taxonomy
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &remote.TransientError{Op: op, Err: err}
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 401:
			return &remote.AuthError{Op: op, Err: err}
		case gerr.Code == 403 && isRateLimited(gerr):
			return &remote.TransientError{Op: op, Err: err}
		case gerr.Code == 403:
			return &remote.AuthError{Op: op, Err: err}
		case gerr.Code == 404:
			return &remote.NotFoundError{Op: op}
		case gerr.Code == 429 || gerr.Code >= 500:
			return &remote.TransientError{Op: op, Err: err}
		}
	}

	// Network-level failures arrive as plain errors
	return &remote.TransientError{Op: op, Err: err}
}

func isRateLimited(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		if strings.Contains(strings.ToLower(item.Reason), "ratelimit") {
			return true
		}
	}
	return false
}
