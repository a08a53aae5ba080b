package runner

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/rpc"
)

// ErrRunNotFound signals a collection request for a run ID with no output
// directory on this host.
var ErrRunNotFound = errors.New("run not found")

// gzipRunOutputs streams the run's output tree (the per-case work
// directories with their compile and build logs) as a gzipped tarball into
// the output writer's binary channel. basedir is the outputs root; the run
// directory is located at <basedir>/<suite>/<run id>, with the suite globbed
// since collection requests carry only the run id.
func gzipRunOutputs(ctx context.Context, basedir string, input *api.CollectionInput, ow *rpc.OutputWriter) error {
	pattern := filepath.Join(basedir, "*", input.RunID)

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}

	if len(matches) != 1 {
		return fmt.Errorf("%w: run ID %s with runner %s", ErrRunNotFound, input.RunID, input.RunnerID)
	}

	dir := filepath.Clean(matches[0])

	if fi, err := os.Stat(dir); err != nil {
		return err
	} else if !fi.IsDir() {
		return fmt.Errorf("internal error: not a directory when accessing run outputs")
	}

	gz := gzip.NewWriter(ow.BinaryWriter())
	defer gz.Close()

	tw := tar.NewWriter(gz)
	defer tw.Close()

	walker := func(file string, finfo os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(finfo, finfo.Name())
		if err != nil {
			return err
		}

		relFilePath := file
		if filepath.IsAbs(dir) {
			relFilePath, err = filepath.Rel(dir, file)
			if err != nil {
				return err
			}
		}

		hdr.Name = relFilePath

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if finfo.Mode().IsDir() {
			return nil
		}

		srcFile, err := os.Open(file)
		if err != nil {
			return err
		}
		defer srcFile.Close()

		_, err = io.Copy(tw, srcFile)
		return err
	}

	return filepath.Walk(dir, walker)
}
