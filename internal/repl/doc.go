// Package repl runs an interactive interpreter session behind an
// "execute text, get result" contract.
//
// # Sessions
//
// A Session owns exactly one interpreter process and the cdp connection over
// its standard streams. Creating a Session spawns the process and starts the
// initialize handshake in the background; callers that need a working channel
// wait for it with EnsureConnected.
//
// Standard error produced before the handshake completes is held in a
// pre-connection buffer. If the process dies first, the buffer is flushed to
// the error output so the user sees why; once the handshake succeeds, later
// lines go straight to the error output.
//
// When the process exits without being asked to, the session writes
//
//	The interactive session has exited.
//
// exactly once, cancels every pending request, and refuses further work.
//
// # Evaluator
//
// Evaluator owns the current Session and decides when to create a new one:
// lazily on first use, on Reset, and after a crash when auto-reconnect is
// enabled and the restart budget allows.
//
//	ev := repl.NewEvaluator(cfg, out, repl.WithLogger(log))
//	defer ev.Dispose()
//
//	result, err := ev.ExecuteText(ctx, "1 + 1")
//
// # State Machine
//
//	Disconnected -> Spawning -> Connecting -> Ready -> Exited
//
// Disposed is reachable from every state.
package repl
