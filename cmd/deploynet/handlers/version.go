package handlers

import (
	"fmt"
	"io"
	"runtime"
)

// version is overridden at build time via -ldflags.
var version = "dev"

// Version writes build information to w.
func Version(w io.Writer) {
	fmt.Fprintf(w, "deploynet %s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH)
}
