package handler

// SingleRequestResponseDTO is returned by GET /.
type SingleRequestResponseDTO struct {
	// Hint about what the http.client span should show
	Message string `json:"message"`
	// Status code returned by the remote endpoint
	StatusCode int `json:"status_code"`
	// The remote endpoint that was called
	ExternalURL string `json:"external_url"`
}

// RequestResultDTO is one entry of GET /multiple-requests.
type RequestResultDTO struct {
	// One-based position of the call in the sequence
	Request int `json:"request"`
	// Status code returned by the remote endpoint
	Status int `json:"status"`
}

// MultipleRequestsResponseDTO is returned by GET /multiple-requests.
type MultipleRequestsResponseDTO struct {
	Message string             `json:"message"`
	Results []RequestResultDTO `json:"results"`
}
