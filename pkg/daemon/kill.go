package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/logging"
	"github.com/vltest/vltest/pkg/rpc"
)

func (d *Daemon) killHandler(engine api.Engine) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logging.S().With("req_id", r.Header.Get("X-Request-ID"))

		log.Debugw("handle request", "command", "kill task")
		defer log.Debugw("request handled", "command", "kill task")

		ow := rpc.NewOutputWriter(w, r)

		var req api.KillRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			ow.WriteError("cannot json decode request body", "err", err)
			return
		}

		if req.TaskID == "" {
			ow.WriteError("no task_id supplied")
			return
		}

		if err := engine.Kill(req.TaskID); err != nil {
			ow.WriteError("could not kill task", "task_id", req.TaskID, "err", err)
			return
		}

		ow.WriteResult("killed " + req.TaskID)
	}
}
