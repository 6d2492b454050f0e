package validation

import "regexp"

// MaxProcedurePathLength is the maximum length of an RPC procedure path.
const MaxProcedurePathLength = 255

// procedurePathPattern matches dotted identifiers such as "todo.getTodos".
var procedurePathPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]*(\.[a-zA-Z][a-zA-Z0-9]*)*$`)

// IsValidProcedurePath returns true if path is a well-formed procedure path.
// Procedure paths are case-sensitive.
func IsValidProcedurePath(path string) bool {
	return len(path) <= MaxProcedurePathLength && procedurePathPattern.MatchString(path)
}
