package daemon

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/logging"
	"github.com/vltest/vltest/pkg/metrics"
)

// dashboardHandler lists the measurement series recorded for a suite, with
// each series' variation tags and their recently seen values.
func (d *Daemon) dashboardHandler(engine api.Engine) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logging.S().With("req_id", r.Header.Get("X-Request-ID"))

		log.Debugw("handle request", "command", "dashboard")
		defer log.Debugw("request handled", "command", "dashboard")

		w.Header().Set("Content-Type", "text/plain")

		suite := r.URL.Query().Get("suite")
		if suite == "" {
			fmt.Fprintf(w, "query param `suite` is missing")
			return
		}

		suiteDir := filepath.Join(engine.EnvConfig().Dirs().Suites(), suite)
		if fi, err := os.Stat(suiteDir); err != nil || !fi.IsDir() {
			fmt.Fprintf(w, "suite %q is not imported", suite)
			return
		}

		measurements, err := d.mv.Measurements(suite)
		if err != nil {
			fmt.Fprintf(w, "failed to get measurements for suite %s: %s", suite, err)
			return
		}

		if measurements == nil {
			fmt.Fprintf(w, "no measurements recorded for suite %s", suite)
			return
		}

		for _, m := range measurements {
			fmt.Fprintln(w, m)

			tags, err := d.mv.Tags(m)
			if err != nil {
				fmt.Fprintf(w, "failed to get tags for series %s: %s", m, err)
				return
			}

			values, err := d.mv.TagValues(tags)
			if err != nil {
				fmt.Fprintf(w, "failed to get tag values for series %s: %s", m, err)
				return
			}

			for _, tag := range tags {
				fmt.Fprintf(w, "  %s: %s\n", tag, strings.Join(values[tag], ", "))
			}
		}

		log.Debugw("done listing measurements", "suite", suite)
	}
}

// dashboardDataHandler renders the run-by-variation table of one series as
// CSV, one row per run.
func (d *Daemon) dashboardDataHandler() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logging.S().With("req_id", r.Header.Get("X-Request-ID"))

		log.Debugw("handle request", "command", "dashboard data")
		defer log.Debugw("request handled", "command", "dashboard data")

		w.Header().Set("Content-Type", "text/plain")

		series := r.URL.Query().Get("series")
		if series == "" {
			fmt.Fprintf(w, "query param `series` is missing")
			return
		}

		tags, err := d.mv.Tags(series)
		if err != nil {
			fmt.Fprintf(w, "failed to get tags for series %s: %s", series, err)
			return
		}

		data, columns, orderedRuns, err := d.mv.Data(series, tags)
		if err != nil {
			fmt.Fprintf(w, "failed to get data for series %s: %s", series, err)
			return
		}

		cw := csv.NewWriter(w)
		for _, row := range dashboardCsv(data, orderedRuns, columns) {
			_ = cw.Write(row)
		}
		cw.Flush()

		log.Debugw("done rendering series", "series", series)
	}
}

// dashboardCsv assembles the CSV rows: a header line, then one line per run
// with its timestamp and the value of every variation column. Runs with no
// values in the window are omitted.
func dashboardCsv(data map[string]metrics.Row, runs []string, columns []string) [][]string {
	result := [][]string{append([]string{"run", "time"}, columns...)}

	for _, r := range runs {
		v := data[r]

		line := []string{v.Run, v.Timestamp}

		allEmpty := true
		for _, c := range columns {
			entry, ok := v.Fields[c]
			if !ok {
				line = append(line, "")
			} else {
				line = append(line, entry.String())
				allEmpty = false
			}
		}

		if !allEmpty {
			result = append(result, line)
		}
	}

	return result
}
