package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/logging"
	"github.com/vltest/vltest/pkg/rpc"
)

func (d *Daemon) healthcheckHandler(engine api.Engine) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logging.S().With("req_id", r.Header.Get("X-Request-ID"))

		log.Debugw("handle request", "command", "healthcheck")
		defer log.Debugw("request handled", "command", "healthcheck")

		ow := rpc.NewOutputWriter(w, r)

		var req api.HealthcheckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			ow.WriteError("cannot json decode request body", "err", err)
			return
		}

		report, err := engine.DoHealthcheck(r.Context(), req.Runner, req.Fix, ow)
		if err != nil {
			ow.WriteError("healthcheck error", "err", err)
			return
		}

		ow.WriteResult(report)
	}
}
