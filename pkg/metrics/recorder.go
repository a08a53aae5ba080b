package metrics

import (
	"fmt"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"
)

// database is the InfluxDB database all measurements are written to and read
// from.
const database = "vltest"

// Recorder sinks completed runs into a time series store, so that outcome and
// timing regressions can be tracked across runs.
type Recorder interface {
	RecordRun(m *RunMeasurement) error
	Close() error
}

// RunMeasurement is a completed run, flattened for recording.
type RunMeasurement struct {
	TaskID   string
	Suite    string
	Scenario string
	Runner   string
	Cases    []CaseMeasurement
}

// CaseMeasurement is one case outcome within a run.
type CaseMeasurement struct {
	Name    string
	Outcome string
	Took    time.Duration
}

// InfluxRecorder writes measurements to an InfluxDB 1.x endpoint. Each case
// becomes a point in results.<suite>.durations, tagged with the case,
// scenario, runner and outcome, with the wall-clock duration as the value.
type InfluxRecorder struct {
	cl client.Client
}

var _ Recorder = (*InfluxRecorder)(nil)

func NewInfluxRecorder(endpoint string) (*InfluxRecorder, error) {
	cl, err := client.NewHTTPClient(client.HTTPConfig{
		Addr: endpoint,
	})
	if err != nil {
		return nil, err
	}
	return &InfluxRecorder{cl: cl}, nil
}

func (r *InfluxRecorder) RecordRun(m *RunMeasurement) error {
	bp, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database:  database,
		Precision: "ms",
	})
	if err != nil {
		return err
	}

	now := time.Now()
	series := fmt.Sprintf("results.%s.durations", m.Suite)

	for _, c := range m.Cases {
		tags := map[string]string{
			"run":      m.TaskID,
			"case":     c.Name,
			"scenario": m.Scenario,
			"runner":   m.Runner,
			"outcome":  c.Outcome,
		}
		fields := map[string]interface{}{
			"value": c.Took.Seconds(),
		}

		pt, err := client.NewPoint(series, tags, fields, now)
		if err != nil {
			return err
		}
		bp.AddPoint(pt)
	}

	return r.cl.Write(bp)
}

func (r *InfluxRecorder) Close() error {
	return r.cl.Close()
}
