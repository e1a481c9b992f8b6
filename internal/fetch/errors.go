package fetch

import "fmt"

const excerptLimit = 200

// excerpt truncates text to the first 200 characters.
func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLimit {
		return text
	}
	return string(runes[:excerptLimit])
}

// TransportError is returned for anything that went wrong below the JSON layer: a
// rejected status, an unparseable body or a network fault.
type TransportError struct {
	Method string
	Url    string
	// Status is 0 when no response was received.
	Status int
	// Excerpt holds at most the first 200 characters of the response body.
	Excerpt string
	// Title is the page title when the body was html.
	Title   string
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}
	return e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func statusError(method, url string, status int, body string) *TransportError {
	return &TransportError{
		Method:  method,
		Url:     url,
		Status:  status,
		Excerpt: excerpt(body),
		Title:   htmlTitle(body),
		Message: fmt.Sprintf("HTTP %d: %s", status, excerpt(body)),
	}
}

func invalidJsonError(method, url string, status int, body string) *TransportError {
	return &TransportError{
		Method:  method,
		Url:     url,
		Status:  status,
		Excerpt: excerpt(body),
		Title:   htmlTitle(body),
		Message: fmt.Sprintf("Invalid JSON response: %s", excerpt(body)),
	}
}

func unexpectedStatusError(method, url string, status int, body string) *TransportError {
	return &TransportError{
		Method:  method,
		Url:     url,
		Status:  status,
		Excerpt: excerpt(body),
		Title:   htmlTitle(body),
		Message: fmt.Sprintf(
			"sending a request to the institute server returned with status code %d",
			status,
		),
	}
}

func networkError(method, url string, err error) *TransportError {
	return &TransportError{
		Method:  method,
		Url:     url,
		Message: fmt.Sprintf("%s %s", method, url),
		Err:     err,
	}
}
