package daemon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/client"
	"github.com/vltest/vltest/pkg/config"
	"github.com/vltest/vltest/pkg/data"
	"github.com/vltest/vltest/pkg/task"
)

const banner = "- V e r i l a t o r: fake compiler"

// startDaemon brings up a daemon on a random port, with its home in a temp
// dir and task storage in memory, and returns a client bound to it.
func startDaemon(t *testing.T, compilerBin string) (*client.Client, *config.EnvConfig) {
	t.Helper()
	t.Setenv(config.EnvVltestHomeDir, t.TempDir())

	cfg := &config.EnvConfig{}
	require.NoError(t, cfg.Load())
	cfg.Daemon.Listen = "127.0.0.1:0"
	cfg.Daemon.TasksInMemory = true
	cfg.Compiler.Bin = compilerBin

	d, err := New(cfg)
	require.NoError(t, err)

	go func() { _ = d.Serve() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Shutdown(ctx)
	})

	cfg.Client.Endpoint = d.Addr()
	return client.New(cfg), cfg
}

// importSuite writes a one-case suite into the daemon's home and returns its
// manifest.
func importSuite(t *testing.T, cfg *config.EnvConfig, suite, caseName string) *api.TestSuiteManifest {
	t.Helper()

	dir := filepath.Join(cfg.Dirs().Suites(), suite)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "t"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "t", caseName+".v"), []byte("module t; endmodule\n"), 0644))

	m := &api.TestSuiteManifest{
		Name: suite,
		Cases: []*api.TestCase{
			{
				Name:      caseName,
				Top:       "t/" + caseName + ".v",
				Scenarios: []string{"vlt"},
				ExpectLog: []string{`V e r i l a t`},
			},
		},
	}
	require.NoError(t, api.WriteManifestToFile(m, filepath.Join(dir, api.ManifestFilename)))
	return m
}

func fakeCompiler(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "verilator")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho \""+banner+"\"\n"), 0755))
	return path
}

func TestListAndDescribe(t *testing.T) {
	cl, cfg := startDaemon(t, fakeCompiler(t))
	importSuite(t, cfg, "fixture", "smoke")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	r, err := cl.List(ctx)
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, client.ParseListResponse(r))

	r, err = cl.Describe(ctx, &api.DescribeRequest{Suite: "fixture"})
	require.NoError(t, err)
	defer r.Close()

	desc, err := client.ParseDescribeResponse(r)
	require.NoError(t, err)
	require.Contains(t, desc, "fixture")
	require.Contains(t, desc, "smoke")
}

func TestDescribeUnknownSuite(t *testing.T) {
	cl, _ := startDaemon(t, fakeCompiler(t))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	r, err := cl.Describe(ctx, &api.DescribeRequest{Suite: "no-such-suite"})
	require.NoError(t, err)
	defer r.Close()

	_, err = client.ParseDescribeResponse(r)
	require.Error(t, err)
}

func TestRunToCompletion(t *testing.T) {
	cl, cfg := startDaemon(t, fakeCompiler(t))
	m := importSuite(t, cfg, "fixture", "smoke")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	r, err := cl.Run(ctx, &api.RunRequest{
		Suite:    "fixture",
		Scenario: "vlt",
		Runner:   "local:exec",
		Manifest: *m,
	})
	require.NoError(t, err)
	defer r.Close()

	resp, err := client.ParseRunResponse(r)
	require.NoError(t, err)
	require.NotEmpty(t, resp.TaskID)

	tsk := awaitTask(ctx, t, cl, resp.TaskID)

	outcome, err := data.DecodeTaskOutcome(&tsk)
	require.NoError(t, err)
	require.Equal(t, task.OutcomeSuccess, outcome)
}

func TestRunUnknownScenarioRejected(t *testing.T) {
	cl, cfg := startDaemon(t, fakeCompiler(t))
	m := importSuite(t, cfg, "fixture", "smoke")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	r, err := cl.Run(ctx, &api.RunRequest{
		Suite:    "fixture",
		Scenario: "bogus",
		Runner:   "local:exec",
		Manifest: *m,
	})
	require.NoError(t, err)
	defer r.Close()

	_, err = client.ParseRunResponse(r)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown scenario")
}

// slowCompiler returns a fake compiler that hangs long enough for the task to
// be canceled mid-compile.
func slowCompiler(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "verilator")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nsleep 30\n"), 0755))
	return path
}

func TestKillRunningTask(t *testing.T) {
	cl, cfg := startDaemon(t, slowCompiler(t))
	m := importSuite(t, cfg, "fixture", "slow")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	r, err := cl.Run(ctx, &api.RunRequest{
		Suite:    "fixture",
		Scenario: "vlt",
		Runner:   "local:exec",
		Manifest: *m,
	})
	require.NoError(t, err)
	defer r.Close()

	resp, err := client.ParseRunResponse(r)
	require.NoError(t, err)

	awaitProcessing(ctx, t, cl, resp.TaskID)

	kr, err := cl.Kill(ctx, &api.KillRequest{TaskID: resp.TaskID})
	require.NoError(t, err)
	require.NoError(t, client.ParseKillResponse(kr))
	_ = kr.Close()

	tsk := awaitTask(ctx, t, cl, resp.TaskID)
	require.Equal(t, task.StateCanceled, tsk.State().State)

	outcome, err := data.DecodeTaskOutcome(&tsk)
	require.NoError(t, err)
	require.Equal(t, task.OutcomeCanceled, outcome)
}

func TestKillScheduledTask(t *testing.T) {
	cl, cfg := startDaemon(t, slowCompiler(t))
	m := importSuite(t, cfg, "fixture", "slow")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// The first task occupies the single worker; the second stays scheduled
	// and must be withdrawn from the queue without ever running.
	var ids []string
	for i := 0; i < 2; i++ {
		r, err := cl.Run(ctx, &api.RunRequest{
			Suite:    "fixture",
			Scenario: "vlt",
			Runner:   "local:exec",
			Manifest: *m,
		})
		require.NoError(t, err)

		resp, err := client.ParseRunResponse(r)
		_ = r.Close()
		require.NoError(t, err)
		ids = append(ids, resp.TaskID)
	}

	awaitProcessing(ctx, t, cl, ids[0])

	kr, err := cl.Kill(ctx, &api.KillRequest{TaskID: ids[1]})
	require.NoError(t, err)
	require.NoError(t, client.ParseKillResponse(kr))
	_ = kr.Close()

	// The withdrawn task has no log file, so its state is observed through
	// the tasks listing.
	for {
		select {
		case <-ctx.Done():
			t.Fatalf("task %s was not canceled in time", ids[1])
		case <-time.After(250 * time.Millisecond):
		}

		tr, err := cl.Tasks(ctx, &api.TasksRequest{States: []task.State{task.StateCanceled}})
		require.NoError(t, err)

		tsks, err := client.ParseTasksResponse(tr)
		_ = tr.Close()
		require.NoError(t, err)

		found := false
		for _, tsk := range tsks {
			if tsk.ID == ids[1] {
				found = true
				require.Equal(t, task.StateCanceled, tsk.State().State)
			}
		}
		if found {
			break
		}
	}

	// Unblock the worker.
	kr, err = cl.Kill(ctx, &api.KillRequest{TaskID: ids[0]})
	require.NoError(t, err)
	require.NoError(t, client.ParseKillResponse(kr))
	_ = kr.Close()
}

func TestLogsFollowCancelKillsTask(t *testing.T) {
	cl, cfg := startDaemon(t, slowCompiler(t))
	m := importSuite(t, cfg, "fixture", "slow")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	r, err := cl.Run(ctx, &api.RunRequest{
		Suite:    "fixture",
		Scenario: "vlt",
		Runner:   "local:exec",
		Manifest: *m,
	})
	require.NoError(t, err)
	defer r.Close()

	resp, err := client.ParseRunResponse(r)
	require.NoError(t, err)

	awaitProcessing(ctx, t, cl, resp.TaskID)

	// Follow the log with a request context we abandon; the daemon must
	// treat the disconnect as a kill.
	fctx, fcancel := context.WithCancel(ctx)
	fr, err := cl.Logs(fctx, &api.LogsRequest{
		TaskID:            resp.TaskID,
		Follow:            true,
		CancelWithContext: true,
	})
	require.NoError(t, err)

	time.Sleep(500 * time.Millisecond)
	fcancel()
	_ = fr.Close()

	tsk := awaitTask(ctx, t, cl, resp.TaskID)
	require.Equal(t, task.StateCanceled, tsk.State().State)

	outcome, err := data.DecodeTaskOutcome(&tsk)
	require.NoError(t, err)
	require.Equal(t, task.OutcomeCanceled, outcome)
}

func TestDashboardRendersRecordedMeasurements(t *testing.T) {
	influx := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		q := r.FormValue("q")
		switch {
		case strings.HasPrefix(q, "SHOW MEASUREMENTS"):
			fmt.Fprint(w, `{"results":[{"series":[{"name":"measurements","columns":["name"],"values":[["results.fixture.durations"]]}]}]}`)
		case strings.HasPrefix(q, "SHOW TAG KEYS"):
			fmt.Fprint(w, `{"results":[{"series":[{"name":"results.fixture.durations","columns":["tagKey"],"values":[["case"],["run"],["runner"]]}]}]}`)
		case strings.HasPrefix(q, "SHOW TAG VALUES"):
			fmt.Fprint(w, `{"results":[{"series":[{"name":"results.fixture.durations","columns":["key","value"],"values":[["case","smoke"]]}]}]}`)
		case strings.Contains(q, "SELECT last"):
			fmt.Fprint(w, `{"results":[{"series":[{"name":"results.fixture.durations","tags":{"run":"r1"},"columns":["time","last","run"],"values":[["2026-08-30T00:00:00Z",1,"r1"]]}]}]}`)
		default:
			fmt.Fprint(w, `{"results":[{"series":[{"name":"results.fixture.durations","tags":{"case":"smoke","run":"r1"},"columns":["time","mean"],"values":[["2026-08-30T00:00:00Z",1]]}]}]}`)
		}
	}))
	defer influx.Close()

	t.Setenv(config.EnvVltestHomeDir, t.TempDir())

	cfg := &config.EnvConfig{}
	require.NoError(t, cfg.Load())
	cfg.Daemon.Listen = "127.0.0.1:0"
	cfg.Daemon.TasksInMemory = true
	cfg.Daemon.InfluxDBEndpoint = influx.URL
	cfg.Compiler.Bin = fakeCompiler(t)

	d, err := New(cfg)
	require.NoError(t, err)

	go func() { _ = d.Serve() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Shutdown(ctx)
	})

	importSuite(t, cfg, "fixture", "smoke")

	body := httpGet(t, "http://"+d.Addr()+"/dashboard?suite=fixture")
	require.Contains(t, body, "results.fixture.durations")
	require.Contains(t, body, "case: smoke")

	body = httpGet(t, "http://"+d.Addr()+"/dashboard/data?series=results.fixture.durations")
	require.Contains(t, body, "run,time,case=smoke")
	require.Contains(t, body, "r1,2026-08-30T00:00:00Z,1")
}

func httpGet(t *testing.T, url string) string {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

// awaitProcessing polls until a worker has claimed the task.
func awaitProcessing(ctx context.Context, t *testing.T, cl *client.Client, id string) {
	t.Helper()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("task %s was not claimed in time", id)
		case <-time.After(100 * time.Millisecond):
		}

		r, err := cl.Logs(ctx, &api.LogsRequest{TaskID: id})
		if err != nil {
			continue
		}

		tsk, err := client.ParseStatusResponse(r)
		_ = r.Close()
		if err != nil {
			continue
		}

		if tsk.State().State == task.StateProcessing {
			return
		}
	}
}

// awaitTask polls the logs endpoint until the task reaches a terminal state.
func awaitTask(ctx context.Context, t *testing.T, cl *client.Client, id string) task.Task {
	t.Helper()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("task %s did not complete in time", id)
		case <-time.After(250 * time.Millisecond):
		}

		r, err := cl.Logs(ctx, &api.LogsRequest{TaskID: id})
		if err != nil {
			continue
		}

		tsk, err := client.ParseStatusResponse(r)
		_ = r.Close()
		if err != nil {
			// The task log does not exist until a worker claims the task.
			if strings.Contains(err.Error(), "no such file") {
				continue
			}
			continue
		}

		switch tsk.State().State {
		case task.StateComplete, task.StateCanceled:
			return tsk
		}
	}
}
