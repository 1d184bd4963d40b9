package clitest

import (
	"testing"

	"github.com/coder/serpent"
)

// HandlersOK asserts that all commands have a handler.
// Without a handler, the command has no default behavior. Even for
// non-root commands, a handler is required.
func HandlersOK(t testing.TB, cmd *serpent.Command) {
	cmd.Walk(func(cmd *serpent.Command) {
		if cmd.Handler == nil {
			// If you see this error, make the Handler a helper invoker.
			//   Handler: func(inv *serpent.Invocation) error {
			//	   return inv.Command.HelpHandler(inv)
			//	 },
			t.Errorf("command %q has no handler, change to a helper invoker using: 'inv.Command.HelpHandler(inv)'", cmd.Name())
		}
	})
}
