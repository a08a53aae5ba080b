package healthcheck

import (
	"os"
)

// DirExistsFixer returns a Fixer that creates a directory and any parent
// directories as appropriate.
func DirExistsFixer(path string) Fixer {
	return func() (string, error) {
		err := os.MkdirAll(path, os.ModePerm)
		if err != nil {
			return "directory not created successfully.", err
		}
		return "directory created successfully.", nil
	}
}

// And returns a Fixer that runs the given fixers in order, stopping at the
// first error. Use when several fixes must all apply to mitigate a single
// failed check.
func And(fixers ...Fixer) Fixer {
	return func() (string, error) {
		for _, fxr := range fixers {
			msg, err := fxr()
			if err != nil {
				return msg, err
			}
		}
		return "all fixes applied.", nil
	}
}
