package httpcore

var (
	defaultServerName  = []byte("httpcore server")
	defaultContentType = []byte("text/plain; charset=utf-8")
)

var (
	strCRLF     = []byte("\r\n")
	strCRLFCRLF = []byte("\r\n\r\n")
	strColon    = []byte(":")
	strHTTP11   = []byte("HTTP/1.1")
	strHTTP10   = []byte("HTTP/1.0")

	strGet  = []byte("GET")
	strHead = []byte("HEAD")
	strPost = []byte("POST")

	strConnection       = []byte("Connection")
	strContentLength    = []byte("Content-Length")
	strContentType      = []byte("Content-Type")
	strDate             = []byte("Date")
	strExpect           = []byte("Expect")
	strHost             = []byte("Host")
	strServer           = []byte("Server")
	strTransferEncoding = []byte("Transfer-Encoding")

	strClose       = []byte("close")
	strKeepAlive   = []byte("keep-alive")
	strChunked     = []byte("chunked")
	str100Continue = []byte("100-continue")
)
