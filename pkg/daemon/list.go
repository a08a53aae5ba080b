package daemon

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/mattn/go-zglob"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/logging"
	"github.com/vltest/vltest/pkg/rpc"
)

func (d *Daemon) listHandler(engine api.Engine) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logging.S().With("req_id", r.Header.Get("X-Request-ID"))

		log.Debugw("handle request", "command", "list")
		defer log.Debugw("request handled", "command", "list")

		ow := rpc.NewOutputWriter(w, r)

		suitesDir := engine.EnvConfig().Dirs().Suites()
		manifests, err := zglob.GlobFollowSymlinks(filepath.Join(suitesDir, "**", api.ManifestFilename))
		if err != nil {
			ow.WriteError("failed to discover test suites", "err", err)
			return
		}

		count := 0
		for _, file := range manifests {
			var manifest api.TestSuiteManifest
			if _, err := toml.DecodeFile(file, &manifest); err != nil {
				ow.Warnw("skipping unparseable manifest", "path", file, "err", err)
				continue
			}

			for _, tc := range manifest.Cases {
				if _, err := ow.WriteProgress([]byte(fmt.Sprintf("%s/%s\n", manifest.Name, tc.Name))); err != nil {
					log.Errorw("could not write response back", "err", err)
					return
				}
				count++
			}
		}

		ow.WriteResult(count)
	}
}
