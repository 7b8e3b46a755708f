// Package prompt holds the fixed texts sent to the model: the system
// instructions built from the reference documents and the wrapper applied to
// every user request.
package prompt

import "fmt"

// ValidationTool is the helper capability the model is told to call before
// answering.
const ValidationTool = "validate_sql"

const instructionsTemplate = `You help to compose an SQL statement for the EMQX Rule Engine.

The following are the documents for the SQL statements:
%s
`

const requestTemplate = `Please help to compose an SQL statement for the EMQX Rule Engine:
%s

Use the %s tool to validate the SQL statement before providing the final answer.

For validation with %s tool, provide samples that are expected to match
and samples that are expected to not match the SQL statement.

In case of composing an SQL statement, provide concise answer, without any additional text.
`

// Instructions returns the agent's system instructions for the given syntax
// reference.
func Instructions(syntax string) string {
	return fmt.Sprintf(instructionsTemplate, syntax)
}

// Extend wraps a raw user request in the validation template.
func Extend(userInput string) string {
	return fmt.Sprintf(requestTemplate, userInput, ValidationTool, ValidationTool)
}
