package runner

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/config"
	"github.com/vltest/vltest/pkg/rpc"
	"github.com/vltest/vltest/pkg/rpc/rpctest"
	"github.com/vltest/vltest/pkg/task"
)

const banner = "- V e r i l a t o r: fake compiler"

// fakeTool drops an executable shell script into a temp dir and returns its
// path. Scripts stand in for the compiler under test.
func fakeTool(t *testing.T, name, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755))
	return path
}

func testEnvConfig(t *testing.T, compilerBin string) config.EnvConfig {
	t.Helper()
	t.Setenv(config.EnvVltestHomeDir, t.TempDir())

	cfg := config.EnvConfig{}
	require.NoError(t, cfg.Load())
	cfg.Compiler.Bin = compilerBin
	return cfg
}

func passingCase(name string) *api.TestCase {
	return &api.TestCase{
		Name:      name,
		Top:       "t/" + name + ".v",
		Scenarios: []string{"vlt"},
		ExpectLog: []string{`V e r i l a t`},
	}
}

func newRunInput(t *testing.T, compilerBin string, cases ...*api.TestCase) *api.RunInput {
	t.Helper()
	return &api.RunInput{
		RunID:        "testrun",
		EnvConfig:    testEnvConfig(t, compilerBin),
		RunnerConfig: &LocalExecRunnerConfig{},
		SuiteName:    "fixture",
		SuiteDir:     t.TempDir(),
		Scenario:     "vlt",
		Cases:        cases,
	}
}

func TestRunAllPass(t *testing.T) {
	bin := fakeTool(t, "verilator", `echo "`+banner+`"`)
	input := newRunInput(t, bin, passingCase("alpha"), passingCase("beta"))

	r := &LocalExecRunner{}
	out, err := r.Run(context.Background(), input, rpc.Discard())
	require.NoError(t, err)

	res := out.(*Result)
	require.Equal(t, task.OutcomeSuccess, res.Outcome)
	require.Len(t, res.Outcomes, 2)

	for _, name := range []string{"alpha", "beta"} {
		co := res.Outcomes[name]
		require.NotNil(t, co)
		require.Equal(t, task.OutcomeSuccess, co.Outcome)
		require.FileExists(t, co.CompileLog)
		require.Equal(t, string(task.OutcomeSuccess), res.Journal.Events[name])
	}

	// work dirs hang off <outputs>/<suite>/<run id>/<case>.
	dir := filepath.Join(input.EnvConfig.Dirs().Outputs(), "fixture", "testrun", "alpha")
	require.DirExists(t, dir)
}

func TestRunAggregatesFailure(t *testing.T) {
	bin := fakeTool(t, "verilator", `
for a in "$@"; do
  case "$a" in */bad.v) echo "%Error: does not compile"; exit 3;; esac
done
echo "`+banner+`"`)

	bad := passingCase("bad")
	input := newRunInput(t, bin, passingCase("good"), bad)

	r := &LocalExecRunner{}
	out, err := r.Run(context.Background(), input, rpc.Discard())
	require.NoError(t, err)

	res := out.(*Result)
	require.Equal(t, task.OutcomeFailure, res.Outcome)
	require.Equal(t, task.OutcomeSuccess, res.Outcomes["good"].Outcome)
	require.Equal(t, task.OutcomeFailure, res.Outcomes["bad"].Outcome)
	require.Contains(t, res.Outcomes["bad"].Reason, "exit")

	passed, failed, skipped := res.counts()
	require.Equal(t, 1, passed)
	require.Equal(t, 1, failed)
	require.Equal(t, 0, skipped)
}

func TestRunStopOnFailure(t *testing.T) {
	bin := fakeTool(t, "verilator", `exit 1`)

	input := newRunInput(t, bin, passingCase("first"), passingCase("second"))
	input.RunnerConfig = &LocalExecRunnerConfig{Parallelism: 1, StopOnFailure: true}

	r := &LocalExecRunner{}
	out, err := r.Run(context.Background(), input, rpc.Discard())
	require.NoError(t, err)

	res := out.(*Result)
	require.Equal(t, task.OutcomeFailure, res.Outcome)
	require.Contains(t, res.Outcomes, "first")
	require.NotContains(t, res.Outcomes, "second")
}

func TestRunSkippedOnly(t *testing.T) {
	bin := fakeTool(t, "verilator", `echo "`+banner+`"`)

	tc := passingCase("mt-only")
	tc.Scenarios = []string{"vltmt"}
	input := newRunInput(t, bin, tc)

	r := &LocalExecRunner{}
	out, err := r.Run(context.Background(), input, rpc.Discard())
	require.NoError(t, err)

	res := out.(*Result)
	require.Equal(t, task.OutcomeSkipped, res.Outcome)
	require.Equal(t, task.OutcomeSkipped, res.Outcomes["mt-only"].Outcome)

	// a skipped case never invokes the compiler.
	require.NoFileExists(t, res.Outcomes["mt-only"].CompileLog)
}

func TestRunUnknownScenario(t *testing.T) {
	bin := fakeTool(t, "verilator", `exit 0`)
	input := newRunInput(t, bin, passingCase("any"))
	input.Scenario = "no-such-mode"

	r := &LocalExecRunner{}
	_, err := r.Run(context.Background(), input, rpc.Discard())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no-such-mode")
}

func TestRunRejectsForeignConfig(t *testing.T) {
	bin := fakeTool(t, "verilator", `exit 0`)
	input := newRunInput(t, bin, passingCase("any"))
	input.RunnerConfig = struct{}{}

	r := &LocalExecRunner{}
	_, err := r.Run(context.Background(), input, rpc.Discard())
	require.Error(t, err)
}

func TestRunCaseTimeoutIsAFailure(t *testing.T) {
	bin := fakeTool(t, "verilator", `sleep 5`)

	tc := passingCase("hog")
	tc.Timeout = config.Duration{Duration: 250 * time.Millisecond}
	input := newRunInput(t, bin, tc)

	r := &LocalExecRunner{}
	out, err := r.Run(context.Background(), input, rpc.Discard())
	require.NoError(t, err)

	res := out.(*Result)
	require.Equal(t, task.OutcomeFailure, res.Outcome)
	require.Equal(t, task.OutcomeFailure, res.Outcomes["hog"].Outcome)
	require.Contains(t, res.Outcomes["hog"].Reason, "timeout")
}

func TestRunCanceledPropagates(t *testing.T) {
	bin := fakeTool(t, "verilator", `sleep 5`)
	input := newRunInput(t, bin, passingCase("slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	r := &LocalExecRunner{}
	_, err := r.Run(ctx, input, rpc.Discard())
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRunParallel(t *testing.T) {
	bin := fakeTool(t, "verilator", `echo "`+banner+`"`)

	cases := []*api.TestCase{
		passingCase("p0"), passingCase("p1"), passingCase("p2"), passingCase("p3"),
	}
	input := newRunInput(t, bin, cases...)
	input.RunnerConfig = &LocalExecRunnerConfig{Parallelism: 3}

	r := &LocalExecRunner{}
	out, err := r.Run(context.Background(), input, rpc.Discard())
	require.NoError(t, err)

	res := out.(*Result)
	require.Equal(t, task.OutcomeSuccess, res.Outcome)
	require.Len(t, res.Outcomes, 4)
}

func TestCollectOutputs(t *testing.T) {
	bin := fakeTool(t, "verilator", `echo "`+banner+`"`)
	input := newRunInput(t, bin, passingCase("keeper"))

	r := &LocalExecRunner{}
	_, err := r.Run(context.Background(), input, rpc.Discard())
	require.NoError(t, err)

	rec, ow := rpctest.NewRecordedOutputWriter("collect-test")
	err = r.CollectOutputs(context.Background(), &api.CollectionInput{
		EnvConfig: input.EnvConfig,
		RunID:     "testrun",
		RunnerID:  r.ID(),
	}, ow)
	require.NoError(t, err)
	ow.Flush()

	names := untarNames(t, decodeBinaryChunks(t, rec.Body))
	require.Contains(t, names, filepath.Join("keeper", "compile.log"))
}

func TestCollectOutputsUnknownRun(t *testing.T) {
	bin := fakeTool(t, "verilator", `exit 0`)
	input := newRunInput(t, bin, passingCase("any"))

	_, ow := rpctest.NewRecordedOutputWriter("collect-test")
	r := &LocalExecRunner{}
	err := r.CollectOutputs(context.Background(), &api.CollectionInput{
		EnvConfig: input.EnvConfig,
		RunID:     "never-ran",
		RunnerID:  r.ID(),
	}, ow)
	require.Error(t, err)
}

// decodeBinaryChunks reassembles the payload of the 'b' chunks in a recorded
// response body.
func decodeBinaryChunks(t *testing.T, body *bytes.Buffer) []byte {
	t.Helper()

	var out []byte
	dec := json.NewDecoder(bytes.NewReader(body.Bytes()))
	for dec.More() {
		var c rpc.Chunk
		require.NoError(t, dec.Decode(&c))
		if c.Type != rpc.ChunkTypeBinary {
			continue
		}
		s, ok := c.Payload.(string)
		require.True(t, ok, "binary chunk payload should be a base64 string")
		b, err := base64.StdEncoding.DecodeString(s)
		require.NoError(t, err)
		out = append(out, b...)
	}
	return out
}

func untarNames(t *testing.T, gzipped []byte) []string {
	t.Helper()

	gz, err := gzip.NewReader(bytes.NewReader(gzipped))
	require.NoError(t, err)
	defer gz.Close()

	var names []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
		_, err = io.Copy(io.Discard, tr)
		require.NoError(t, err)
	}
	return names
}
