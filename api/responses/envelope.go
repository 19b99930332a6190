package responses

// Envelope wraps every successful payload under "data".
type Envelope struct {
	Data any `json:"data"`
}

// ErrorBody is the client-facing part of a failure. Details only carries
// content for codes whose metadata allows it.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}
