package entities

// FunctionCallRequest is a tool invocation requested by the upstream agent.
// ClientSide controls whether execution is delegated to the connected client
// or to the HTTP function backend; the correlation logic is shared either way.
type FunctionCallRequest struct {
	ID            string
	Name          string
	ArgumentsJSON string
	ClientSide    bool
}

// FunctionCallResponse carries the result of one function call back upstream.
// Exactly one of ContentJSON or ErrorMessage is set.
type FunctionCallResponse struct {
	ID           string
	Name         string
	ContentJSON  string
	ErrorMessage string
}

// Failed reports whether the response carries an error instead of content.
func (r FunctionCallResponse) Failed() bool {
	return r.ErrorMessage != ""
}
