package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/logging"
	"github.com/vltest/vltest/pkg/rpc"
)

func (d *Daemon) tasksHandler(engine api.Engine) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logging.S().With("req_id", r.Header.Get("X-Request-ID"))

		log.Debugw("handle request", "command", "tasks")
		defer log.Debugw("request handled", "command", "tasks")

		ow := rpc.NewOutputWriter(w, r)

		var req api.TasksRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			ow.WriteError("cannot json decode request body", "err", err)
			return
		}

		tsks, err := engine.Tasks(api.TasksFilters{
			Types:  req.Types,
			States: req.States,
		})
		if err != nil {
			ow.WriteError("could not list tasks", "err", err)
			return
		}

		ow.WriteResult(tsks)
	}
}
