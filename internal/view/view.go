package view

// Response is the envelope every JSON endpoint returns.
type Response[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// MessageResponse documents a data-less success body.
type MessageResponse struct {
	Data    any    `json:"data"`
	Message string `json:"message"`
}

// ErrorResponse documents a failure body.
type ErrorResponse struct {
	Data    any    `json:"data"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Payload any    `json:"payload,omitempty"`
}

func CreateResponse[T any](data T, err error, payload any, message string) Response[T] {
	res := Response[T]{
		Data:    data,
		Message: message,
		Payload: payload,
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}
