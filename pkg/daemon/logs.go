package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/logging"
	"github.com/vltest/vltest/pkg/rpc"
)

func (d *Daemon) logsHandler(engine api.Engine) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logging.S().With("req_id", r.Header.Get("X-Request-ID"))

		log.Debugw("handle request", "command", "logs")
		defer log.Debugw("request handled", "command", "logs")

		ow := rpc.NewOutputWriter(w, r)

		var req api.LogsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			ow.WriteError("cannot json decode request body", "err", err)
			return
		}

		tsk, err := engine.Logs(r.Context(), req.TaskID, req.Follow, req.CancelWithContext, ow)
		if err != nil {
			ow.WriteError("error while fetching logs", "task_id", req.TaskID, "err", err)
			return
		}

		ow.WriteResult(tsk)
	}
}
