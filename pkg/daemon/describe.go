package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/logging"
	"github.com/vltest/vltest/pkg/rpc"
)

func (d *Daemon) describeHandler(engine api.Engine) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logging.S().With("req_id", r.Header.Get("X-Request-ID"))

		log.Debugw("handle request", "command", "describe")
		defer log.Debugw("request handled", "command", "describe")

		ow := rpc.NewOutputWriter(w, r)

		var req api.DescribeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			ow.WriteError("cannot json decode request body", "err", err)
			return
		}

		suiteDir := filepath.Join(engine.EnvConfig().Dirs().Suites(), req.Suite)
		if fi, err := os.Stat(suiteDir); err != nil || !fi.IsDir() {
			ow.WriteError(fmt.Sprintf("suite not found: %s", req.Suite))
			return
		}

		manifest, err := api.LoadManifest(suiteDir)
		if err != nil {
			ow.WriteError("could not load suite manifest", "err", err)
			return
		}

		var sb strings.Builder
		manifest.Describe(&sb)
		sb.WriteString("TEST CASES:\n----------\n\n")

		for _, tc := range manifest.Cases {
			tc.Describe(&sb)
		}

		ow.WriteResult(sb.String())
	}
}
