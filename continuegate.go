package httpcore

// strContinueResponse is the preface inviting the client to transmit the
// body of an `Expect: 100-continue` request.
var strContinueResponse = []byte("HTTP/1.1 100 Continue\r\n\r\n")

// kickPump starts pulling body chunks from the transport on behalf of the
// installed listener. If the request expects a continue preface it is
// written first, exactly once per request, and the first read is issued
// only after the write succeeded. The drainer bypasses this and calls
// ch.Read directly so a discarded body never invites the client to send
// more.
func (b *RequestBody) kickPump() {
	if b.expectsContinue() && !b.continueSent {
		b.continueSent = true
		b.ch.Write(strContinueResponse, func(err error) {
			if err != nil {
				b.pumpFailed(err)
				return
			}
			b.ch.Read()
		})
		return
	}
	b.ch.Read()
}
