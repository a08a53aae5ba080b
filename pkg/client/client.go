package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/logrusorgru/aurora"
	"github.com/mitchellh/mapstructure"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/config"
	"github.com/vltest/vltest/pkg/logging"
	"github.com/vltest/vltest/pkg/rpc"
	"github.com/vltest/vltest/pkg/task"
)

// Client is the API client that performs all operations against a vltest
// daemon.
type Client struct {
	// client used to send and receive http requests.
	client   *http.Client
	endpoint string
	user     string
}

// New initializes a new API client from the environment configuration.
func New(cfg *config.EnvConfig) *Client {
	logging.S().Debugw("vltest client initialized", "addr", cfg.Client.Endpoint)

	return &Client{
		client:   &http.Client{},
		endpoint: cfg.Client.Endpoint,
		user:     cfg.Client.User,
	}
}

// User returns the identity requests are attributed to.
func (c *Client) User() string {
	return c.user
}

// Close the transport used by the client.
func (c *Client) Close() error {
	if t, ok := c.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}

// Run sends a `run` request to the daemon.
//
// The Body in the response implements an io.ReadCloser and it's up to the
// caller to close it. The response is a stream of rpc chunks; see
// ParseRunResponse for specifics.
func (c *Client) Run(ctx context.Context, r *api.RunRequest) (io.ReadCloser, error) {
	return c.request(ctx, "POST", "/run", r)
}

// Build sends a `build` request to the daemon. Build tasks compile the
// requested cases without evaluating their log assertions.
func (c *Client) Build(ctx context.Context, r *api.BuildRequest) (io.ReadCloser, error) {
	return c.request(ctx, "POST", "/build", r)
}

// CollectOutputs sends an `outputs` request to the daemon. The run's output
// tree arrives as binary chunks carrying a gzipped tarball.
func (c *Client) CollectOutputs(ctx context.Context, r *api.OutputsRequest) (io.ReadCloser, error) {
	return c.request(ctx, "POST", "/outputs", r)
}

// Kill sends a `kill` request to the daemon, canceling a scheduled or
// running task.
func (c *Client) Kill(ctx context.Context, r *api.KillRequest) (io.ReadCloser, error) {
	return c.request(ctx, "POST", "/kill", r)
}

// Healthcheck sends a `healthcheck` request to the daemon.
func (c *Client) Healthcheck(ctx context.Context, r *api.HealthcheckRequest) (io.ReadCloser, error) {
	return c.request(ctx, "POST", "/healthcheck", r)
}

// List sends a `list` request to the daemon, enumerating the suites and
// cases imported on the daemon side.
func (c *Client) List(ctx context.Context) (io.ReadCloser, error) {
	return c.request(ctx, "GET", "/list", nil)
}

// Describe sends a `describe` request to the daemon.
func (c *Client) Describe(ctx context.Context, r *api.DescribeRequest) (io.ReadCloser, error) {
	return c.request(ctx, "GET", "/describe", r)
}

// Tasks sends a `tasks` request to the daemon.
func (c *Client) Tasks(ctx context.Context, r *api.TasksRequest) (io.ReadCloser, error) {
	return c.request(ctx, "GET", "/tasks", r)
}

// Logs sends a `logs` request to the daemon.
func (c *Client) Logs(ctx context.Context, r *api.LogsRequest) (io.ReadCloser, error) {
	return c.request(ctx, "GET", "/logs", r)
}

func (c *Client) request(ctx context.Context, method string, path string, body interface{}) (io.ReadCloser, error) {
	var rd io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
		rd = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://"+c.endpoint+path, rd)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// parseGeneric walks the chunk stream of a response, dispatching each chunk
// to the appropriate callback. It returns on the first result or error
// chunk.
func parseGeneric(r io.ReadCloser, fnProgress, fnBinary, fnResult func(interface{}) error) error {
	var chunk rpc.Chunk
	var once sync.Once

	for dec := json.NewDecoder(r); ; {
		err := dec.Decode(&chunk)
		if err != nil {
			return err
		}

		switch chunk.Type {
		case rpc.ChunkTypeProgress:
			once.Do(func() {
				fmt.Println(aurora.Bold(aurora.Cyan("\n>>> Server output:\n")))
			})

			err = fnProgress(chunk.Payload)
			if err != nil {
				return err
			}

		case rpc.ChunkTypeError:
			fmt.Println(aurora.Bold(aurora.BrightRed("\n>>> Error:\n")))
			return errors.New(chunk.Error.Msg)

		case rpc.ChunkTypeResult:
			fmt.Println(aurora.Bold(aurora.BrightGreen("\n>>> Result:\n")))
			return fnResult(chunk.Payload)

		case rpc.ChunkTypeBinary:
			err := fnBinary(chunk.Payload)
			if err != nil {
				return err
			}

		default:
			return errors.New("unknown message type")
		}
	}
}

// printProgress writes a progress payload to stdout. Payloads are []byte on
// the daemon side, so they arrive base64-encoded.
func printProgress(progress interface{}) error {
	m, err := base64.StdEncoding.DecodeString(progress.(string))
	if err != nil {
		return err
	}

	fmt.Print(string(m))
	return nil
}

// decode maps a result payload onto out, honoring json struct tags and
// parsing RFC3339 timestamps back into time.Time fields.
func decode(payload interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     out,
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	return dec.Decode(payload)
}

// ParseRunResponse parses a response from a `run` call.
func ParseRunResponse(r io.ReadCloser) (api.RunResponse, error) {
	var resp api.RunResponse
	err := parseGeneric(
		r,
		printProgress,
		nil,
		func(result interface{}) error {
			return decode(result, &resp)
		},
	)
	return resp, err
}

// ParseBuildResponse parses a response from a `build` call. Build and run
// requests queue the same kind of task, so the responses share a shape.
func ParseBuildResponse(r io.ReadCloser) (api.RunResponse, error) {
	return ParseRunResponse(r)
}

// ParseCollectResponse parses a response from an `outputs` call, writing the
// archive carried in binary chunks to file.
func ParseCollectResponse(r io.ReadCloser, file io.Writer) (api.CollectResponse, error) {
	var resp api.CollectResponse
	err := parseGeneric(
		r,
		printProgress,
		func(payload interface{}) error {
			m, err := base64.StdEncoding.DecodeString(payload.(string))
			if err != nil {
				return err
			}

			_, err = file.Write(m)
			return err
		},
		func(result interface{}) error {
			exists, ok := result.(bool)
			if !ok {
				return fmt.Errorf("unexpected result payload: %v", result)
			}
			resp.Exists = exists
			return nil
		},
	)
	return resp, err
}

// ParseKillResponse parses a response from a `kill` call.
func ParseKillResponse(r io.ReadCloser) error {
	return parseGeneric(
		r,
		printProgress,
		nil,
		func(result interface{}) error {
			return nil
		},
	)
}

// ParseHealthcheckResponse parses a response from a `healthcheck` call.
func ParseHealthcheckResponse(r io.ReadCloser) (api.HealthcheckResponse, error) {
	var resp api.HealthcheckResponse
	err := parseGeneric(
		r,
		printProgress,
		nil,
		func(result interface{}) error {
			return decode(result, &resp)
		},
	)
	return resp, err
}

// ParseListResponse parses a response from a `list` call.
func ParseListResponse(r io.ReadCloser) error {
	return parseGeneric(
		r,
		printProgress,
		nil,
		func(result interface{}) error {
			return nil
		},
	)
}

// ParseDescribeResponse parses a response from a `describe` call.
func ParseDescribeResponse(r io.ReadCloser) (string, error) {
	var out string
	err := parseGeneric(
		r,
		printProgress,
		nil,
		func(result interface{}) error {
			s, ok := result.(string)
			if !ok {
				return fmt.Errorf("unexpected result payload: %v", result)
			}
			out = s
			return nil
		},
	)
	return out, err
}

// ParseTasksResponse parses a response from a `tasks` call.
func ParseTasksResponse(r io.ReadCloser) ([]task.Task, error) {
	var tasks []task.Task
	err := parseGeneric(
		r,
		printProgress,
		nil,
		func(result interface{}) error {
			return decode(result, &tasks)
		},
	)
	return tasks, err
}

// ParseLogsResponse parses a response from a `logs` call, writing the
// streamed log lines to w. The result is the task record as of the end of
// the stream.
func ParseLogsResponse(w io.Writer, r io.ReadCloser) (task.Task, error) {
	var tsk task.Task
	err := parseGeneric(
		r,
		func(progress interface{}) error {
			m, err := base64.StdEncoding.DecodeString(progress.(string))
			if err != nil {
				return err
			}
			_, err = w.Write(m)
			return err
		},
		nil,
		func(result interface{}) error {
			return decode(result, &tsk)
		},
	)
	return tsk, err
}

// ParseStatusResponse parses a response from a `logs` call issued without
// follow, discarding the log body and keeping the task record.
func ParseStatusResponse(r io.ReadCloser) (task.Task, error) {
	return ParseLogsResponse(io.Discard, r)
}
