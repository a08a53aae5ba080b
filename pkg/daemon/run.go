package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/logging"
	"github.com/vltest/vltest/pkg/rpc"
)

func (d *Daemon) runHandler(engine api.Engine) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logging.S().With("req_id", r.Header.Get("X-Request-ID"))

		log.Infow("handle request", "command", "run")
		defer log.Infow("request handled", "command", "run")

		ow := rpc.NewOutputWriter(w, r)

		var req api.RunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			ow.WriteError("cannot json decode request body", "err", err)
			return
		}

		id, err := engine.QueueRun(&req)
		if err != nil {
			ow.WriteError("could not queue run", "err", err)
			return
		}

		ow.WriteResult(api.RunResponse{TaskID: id})
	}
}
