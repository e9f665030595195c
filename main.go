package main

import (
	"github.com/nextlevelbuilder/omegagate/cmd"
	"github.com/nextlevelbuilder/omegagate/internal/sandbox"
)

func main() {
	// Intercepts re-exec'd Landlock pre-exec invocations (Linux only; a
	// no-op everywhere else) before any cobra command parsing happens.
	sandbox.MaybeReexec()
	cmd.Execute()
}
