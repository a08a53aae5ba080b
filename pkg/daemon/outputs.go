package daemon

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/logging"
	"github.com/vltest/vltest/pkg/rpc"
	"github.com/vltest/vltest/pkg/runner"
)

func (d *Daemon) outputsHandler(engine api.Engine) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logging.S().With("req_id", r.Header.Get("X-Request-ID"))

		log.Debugw("handle request", "command", "collect outputs")
		defer log.Debugw("request handled", "command", "collect outputs")

		ow := rpc.NewOutputWriter(w, r)

		var req api.OutputsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			ow.WriteError("cannot json decode request body", "err", err)
			return
		}

		err := engine.DoCollectOutputs(r.Context(), req.Runner, req.RunID, ow)
		switch {
		case err == nil:
			ow.WriteResult(true)
		case errors.Is(err, runner.ErrRunNotFound):
			ow.WriteResult(false)
		default:
			ow.WriteError("error while collecting outputs", "err", err)
		}
	}
}
