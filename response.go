package httpcore

import (
	"bufio"
)

// Response status codes the serving loop and handlers use.
const (
	StatusContinue                = 100
	StatusOK                      = 200
	StatusNoContent               = 204
	StatusBadRequest              = 400
	StatusNotFound                = 404
	StatusRequestTimeout          = 408
	StatusRequestEntityTooLarge   = 413
	StatusExpectationFailed       = 417
	StatusInternalServerError     = 500
	StatusNotImplemented          = 501
	StatusHTTPVersionNotSupported = 505
)

// StatusMessage returns the canonical reason phrase for statusCode.
func StatusMessage(statusCode int) string {
	switch statusCode {
	case StatusContinue:
		return "Continue"
	case StatusOK:
		return "OK"
	case StatusNoContent:
		return "No Content"
	case StatusBadRequest:
		return "Bad Request"
	case StatusNotFound:
		return "Not Found"
	case StatusRequestTimeout:
		return "Request Timeout"
	case StatusRequestEntityTooLarge:
		return "Request Entity Too Large"
	case StatusExpectationFailed:
		return "Expectation Failed"
	case StatusInternalServerError:
		return "Internal Server Error"
	case StatusNotImplemented:
		return "Not Implemented"
	case StatusHTTPVersionNotSupported:
		return "HTTP Version Not Supported"
	}
	return "Unknown Status Code"
}

// Response is the outgoing side of a request exchange. It is deliberately
// minimal: a status code, a content type and a byte body. Body bytes are
// copied in, so handlers may reuse their buffers after setting them.
type Response struct {
	statusCode      int
	contentType     []byte
	body            []byte
	connectionClose bool
}

// Reset clears the response for reuse.
func (resp *Response) Reset() {
	resp.statusCode = 0
	resp.contentType = resp.contentType[:0]
	resp.body = resp.body[:0]
	resp.connectionClose = false
}

// StatusCode returns the response status code, defaulting to 200.
func (resp *Response) StatusCode() int {
	if resp.statusCode == 0 {
		return StatusOK
	}
	return resp.statusCode
}

// SetStatusCode sets the response status code.
func (resp *Response) SetStatusCode(statusCode int) {
	resp.statusCode = statusCode
}

// SetContentType sets the response Content-Type.
func (resp *Response) SetContentType(contentType string) {
	resp.contentType = append(resp.contentType[:0], contentType...)
}

// SetContentTypeBytes sets the response Content-Type.
//
// It is safe modifying contentType after the call returns.
func (resp *Response) SetContentTypeBytes(contentType []byte) {
	resp.contentType = append(resp.contentType[:0], contentType...)
}

// Body returns the response body.
func (resp *Response) Body() []byte {
	return resp.body
}

// SetBody sets the response body to a copy of body.
func (resp *Response) SetBody(body []byte) {
	resp.body = append(resp.body[:0], body...)
}

// SetBodyString sets the response body to body.
func (resp *Response) SetBodyString(body string) {
	resp.body = append(resp.body[:0], body...)
}

// AppendBody appends p to the response body.
func (resp *Response) AppendBody(p []byte) {
	resp.body = append(resp.body, p...)
}

// ConnectionClose returns true if the response carries
// `Connection: close`.
func (resp *Response) ConnectionClose() bool {
	return resp.connectionClose
}

// SetConnectionClose makes the response carry `Connection: close`.
func (resp *Response) SetConnectionClose() {
	resp.connectionClose = true
}

// touched reports whether a handler set anything on the response.
func (resp *Response) touched() bool {
	return resp.statusCode != 0 || len(resp.body) > 0 || len(resp.contentType) > 0
}

// Write writes the response to w. It does not flush.
func (resp *Response) Write(w *bufio.Writer, serverName []byte) error {
	code := resp.StatusCode()

	w.Write(strHTTP11) //nolint:errcheck
	w.WriteByte(' ')   //nolint:errcheck
	w.Write(AppendUint(nil, int64(code)))
	w.WriteByte(' ') //nolint:errcheck
	w.WriteString(StatusMessage(code))
	w.Write(strCRLF) //nolint:errcheck

	writeHeaderLine(w, strServer, serverName)
	writeHeaderLine(w, strDate, serverDate())

	contentType := resp.contentType
	if len(contentType) == 0 {
		contentType = defaultContentType
	}
	writeHeaderLine(w, strContentType, contentType)
	writeHeaderLine(w, strContentLength, AppendUint(nil, int64(len(resp.body))))
	if resp.connectionClose {
		writeHeaderLine(w, strConnection, strClose)
	}
	w.Write(strCRLF) //nolint:errcheck

	_, err := w.Write(resp.body)
	return err
}

func writeHeaderLine(w *bufio.Writer, key, value []byte) {
	w.Write(key)        //nolint:errcheck
	w.WriteString(": ") //nolint:errcheck
	w.Write(value)      //nolint:errcheck
	w.Write(strCRLF)    //nolint:errcheck
}
