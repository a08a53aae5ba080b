package metrics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	client "github.com/influxdata/influxdb1-client/v2"

	"github.com/vltest/vltest/pkg/config"
)

// tagsIgnoreList holds the tags that identify a point rather than describe
// it; they never form table columns.
var tagsIgnoreList = map[string]struct{}{
	"run":    {},
	"runner": {},
}

// previousDays bounds how far back queries reach.
var previousDays = "7d"

// Viewer reads back the measurements written by the InfluxRecorder and
// arranges them as a run-by-variation table, one row per run.
type Viewer struct {
	db string
	cl client.Client
}

// Row is the measurement data of a single run.
type Row struct {
	Run       string
	Timestamp string
	Fields    map[string]json.Number // tag variation -> value
}

func NewViewer(cfg *config.EnvConfig) (*Viewer, error) {
	cl, err := client.NewHTTPClient(client.HTTPConfig{
		Addr: cfg.Daemon.InfluxDBEndpoint,
	})
	if err != nil {
		return nil, err
	}
	return &Viewer{db: database, cl: cl}, nil
}

// Measurements returns the series recorded for a suite.
func (v *Viewer) Measurements(suite string) ([]string, error) {
	cmd := fmt.Sprintf("SHOW MEASUREMENTS ON %s WITH MEASUREMENT =~ /results.%s.*/ LIMIT 20", v.db, suite)

	response, err := v.query(cmd)
	if err != nil {
		return nil, err
	}

	if response.Results == nil || len(response.Results[0].Series) == 0 {
		return nil, nil
	}

	var measurements []string
	for _, s := range response.Results[0].Series[0].Values {
		measurements = append(measurements, s[0].(string))
	}

	return measurements, nil
}

// Tags returns the variation tags of a series, with identity tags filtered
// out.
func (v *Viewer) Tags(series string) ([]string, error) {
	cmd := fmt.Sprintf("SHOW TAG KEYS ON %s FROM \"%s\"", v.db, series)

	response, err := v.query(cmd)
	if err != nil {
		return nil, err
	}

	var tags []string
	for _, val := range response.Results[0].Series[0].Values {
		vs := val[0].(string)

		if _, ok := tagsIgnoreList[vs]; ok {
			continue
		}

		tags = append(tags, vs)
	}

	return tags, nil
}

// TagValues returns the values each tag has taken recently.
func (v *Viewer) TagValues(tags []string) (map[string][]string, error) {
	tagValues := map[string][]string{}

	for _, t := range tags {
		cmd := fmt.Sprintf("SHOW TAG VALUES ON %s WITH KEY = \"%s\" WHERE time > now()-%s", v.db, t, previousDays)

		response, err := v.query(cmd)
		if err != nil {
			return nil, err
		}

		for _, val := range response.Results[0].Series[0].Values {
			key := val[0].(string)
			value := val[1].(string)

			tagValues[key] = append(tagValues[key], value)
		}
	}

	return tagValues, nil
}

// Data assembles the table: one row per run, one column per tag variation,
// values averaged within a run. It returns the rows keyed by run ID, the
// sorted column names and the runs in recording order.
func (v *Viewer) Data(series string, tags []string) (map[string]Row, []string, []string, error) {
	rows := map[string]Row{}
	var orderedRuns []string

	// Establish the runs and their timestamps.
	{
		cmd := fmt.Sprintf("SELECT last(\"value\"), \"run\" FROM \"%s\" WHERE time > now()-%s GROUP BY \"run\"", series, previousDays)

		response, err := v.query(cmd)
		if err != nil {
			return nil, nil, nil, err
		}

		for _, row := range response.Results[0].Series {
			r := Row{
				Run:       row.Tags["run"],
				Timestamp: row.Values[0][0].(string),
				Fields:    make(map[string]json.Number),
			}

			rows[r.Run] = r
			orderedRuns = append(orderedRuns, r.Run)
		}
	}

	var lastRun string

	// Fill in the value of every tag variation, per run.
	{
		quoted := make([]string, 0, len(tags)+1)
		for _, t := range tags {
			quoted = append(quoted, "\""+t+"\"")
		}
		quoted = append(quoted, "\"run\"")

		cmd := fmt.Sprintf("SELECT mean(\"value\") FROM \"%s\" WHERE time > now()-%s GROUP BY %s", series, previousDays, strings.Join(quoted, ","))

		response, err := v.query(cmd)
		if err != nil {
			return nil, nil, nil, err
		}

		for _, row := range response.Results[0].Series {
			run := row.Tags["run"]

			if _, ok := rows[run]; !ok {
				return nil, nil, nil, fmt.Errorf("series %s has run %s outside the query window", series, run)
			}

			val := row.Values[0][1].(json.Number)
			variation := marshalTags(row.Tags)

			if variation == "" {
				variation = "value"
			}

			rows[run].Fields[variation] = val

			lastRun = run
		}
	}

	// Column names, from the most recent run.
	var columns []string
	for k := range rows[lastRun].Fields {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	return rows, columns, orderedRuns, nil
}

func (v *Viewer) Close() error {
	return v.cl.Close()
}

func (v *Viewer) query(cmd string) (*client.Response, error) {
	q := client.Query{
		Command:  cmd,
		Database: v.db,
	}

	response, err := v.cl.Query(q)
	if err != nil {
		return nil, err
	}
	if response.Error() != nil {
		return nil, response.Error()
	}

	return response, nil
}

// marshalTags flattens a tag set into a stable column name, omitting the run
// identity tag.
func marshalTags(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var result []string
	for _, k := range keys {
		if k == "run" {
			continue
		}
		result = append(result, fmt.Sprintf("%s=%s", k, m[k]))
	}

	return strings.Join(result, ",")
}
