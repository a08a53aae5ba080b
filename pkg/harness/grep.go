package harness

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/msoap/byline"
)

// FileGrep asserts that pattern, a regular expression, matches somewhere in
// the file at path. A single matching line anywhere is sufficient.
func (t *Test) FileGrep(path string, pattern string) error {
	if t.phase != PhaseAsserting {
		return fmt.Errorf("%w: file_grep in phase %s", ErrPhase, t.phase)
	}

	matches, err := grepFile(path, pattern)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return &GrepError{Path: path, Pattern: pattern}
	}

	t.log.Debugw("log pattern matched", "pattern", pattern, "line", strings.TrimSpace(matches[0]))
	return nil
}

// FileGrepNot asserts that pattern matches nowhere in the file at path.
func (t *Test) FileGrepNot(path string, pattern string) error {
	if t.phase != PhaseAsserting {
		return fmt.Errorf("%w: file_grep_not in phase %s", ErrPhase, t.phase)
	}

	matches, err := grepFile(path, pattern)
	if err != nil {
		return err
	}
	if len(matches) > 0 {
		t.log.Debugw("forbidden log pattern matched", "pattern", pattern, "line", strings.TrimSpace(matches[0]))
		return &GrepError{Path: path, Pattern: pattern, Negated: true}
	}

	return nil
}

func grepFile(path string, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad log pattern %q: %w", pattern, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &GrepError{Path: path, Pattern: pattern, Err: err}
	}
	defer f.Close()

	matches, err := byline.NewReader(f).GrepByRegexp(re).ReadAllSliceString()
	if err != nil {
		return nil, &GrepError{Path: path, Pattern: pattern, Err: err}
	}
	return matches, nil
}
