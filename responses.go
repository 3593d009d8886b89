package rest

const StatusSuccess = "success"

// Envelope is the body of every successful response.
type Envelope struct {
	Status  string `json:"status"`
	Results *int   `json:"results,omitempty"`
	Token   string `json:"token,omitempty"`
	Data    any    `json:"data"`
} // @name Envelope

type MessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
} // @name MessageResponse

// DocumentEnvelope wraps a single document as {status, data: {data: doc}}.
func DocumentEnvelope(doc any) Envelope {
	return Envelope{
		Status: StatusSuccess,
		Data:   map[string]any{"data": doc},
	}
}

// ListEnvelope wraps a list and reports how many items it holds.
func ListEnvelope[T any](docs []T) Envelope {
	if docs == nil {
		docs = []T{}
	}
	results := len(docs)
	return Envelope{
		Status:  StatusSuccess,
		Results: &results,
		Data:    map[string]any{"data": docs},
	}
}

// EmptyEnvelope answers deletions with data set to null.
func EmptyEnvelope() Envelope {
	return Envelope{Status: StatusSuccess}
}

func Message(message string) MessageResponse {
	return MessageResponse{Status: StatusSuccess, Message: message}
}
