package version

// GitCommit is the commit hash this binary was built from. Injected at build
// time via -ldflags.
var GitCommit string
