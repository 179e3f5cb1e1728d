package repl

import "fmt"

// User-facing messages written to the error output.
const (
	msgInterpreterNotFound = "The interpreter could not be found."
	msgScriptNotFound      = "The interactive companion script could not be found."
	msgSessionExited       = "The interactive session has exited."
)

func msgNotConfigured(name string) string {
	return fmt.Sprintf("Interpreter is not configured for %s.", name)
}

func msgStartError(detail string) string {
	return fmt.Sprintf("Error starting interactive process: %s", detail)
}

func msgUnknownCommand(text string) string {
	return fmt.Sprintf("Unknown command '%s'", text)
}
