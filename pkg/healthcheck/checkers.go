package healthcheck

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
)

// DirExistsChecker returns a Checker that verifies a directory exists. A true
// value means the directory exists. A false value means it does not exist, or
// that the path does not point to a directory. Aside from ErrNotExist, which
// is the error we expect to handle, any file permission or I/O errors will be
// returned to the caller.
func DirExistsChecker(path string) Checker {
	return func() (bool, string, error) {
		fi, err := os.Stat(path)
		if err != nil {
			// ErrNotExist is the error we expect to see (and handle with
			// DirExistsFixer). Any other kind of error will be returned.
			if os.IsNotExist(err) {
				return false, "directory does not exist. can recreate.", nil
			}
			return false, "filesystem error. cannot recreate.", err
		}
		if fi.IsDir() {
			return true, "directory already exists.", nil
		}
		return false, "expected directory. found regular file. please fix manually.", fmt.Errorf("not a directory")
	}
}

// DirWritableChecker returns a Checker that verifies the given directory
// accepts writes, by creating and removing a probe file inside it.
func DirWritableChecker(path string) Checker {
	return func() (bool, string, error) {
		probe := filepath.Join(path, ".vltest-probe")
		f, err := os.Create(probe)
		if err != nil {
			return false, "directory is not writable.", nil
		}
		_ = f.Close()
		_ = os.Remove(probe)
		return true, "directory is writable.", nil
	}
}

// BinaryResolvableChecker returns a Checker that verifies the named binary
// resolves on the PATH, or exists when given as a path. There is no
// programmatic fix: installing a compiler is on the user.
func BinaryResolvableChecker(bin string) Checker {
	return func() (bool, string, error) {
		path, err := exec.LookPath(bin)
		if err != nil {
			return false, fmt.Sprintf("binary %q not found; install it or point the env config at it.", bin), nil
		}
		return true, fmt.Sprintf("binary resolves to %s.", path), nil
	}
}

// DialableChecker returns a Checker that tells us whether an address is
// dialable. For TCP sockets, a false return could mean the network is
// unreachable, or that the socket is closed. For UDP sockets, being
// connectionless, it may return a false positive if the network is reachable.
func DialableChecker(protocol string, address string) Checker {
	return func() (bool, string, error) {
		c, err := net.Dial(protocol, address)
		if err != nil {
			return false, "address not dialable.", nil
		}
		_ = c.Close()
		return true, "address is dialable.", nil
	}
}
