package icmpv4

// maxQuoteLen is the size of the quoted-packet area in a type-3/type-11
// ICMP message: the offending IPv4 header plus 8 bytes of its payload,
// truncated to fit.
const maxQuoteLen = 28

// BuildEchoReply fills buf (which must be at least len(req.RawData())
// bytes) with an echo reply mirroring req's identifier, sequence number
// and data, and returns the freshly-checksummed view. The IP
// encapsulation (source/destination swap, TTL) is the caller's
// responsibility; this only builds the ICMP message itself.
func BuildEchoReply(buf []byte, req FrameEcho) (FrameEcho, error) {
	reply, err := NewFrameEcho(buf[:len(req.RawData())])
	if err != nil {
		return FrameEcho{}, err
	}
	reply.SetType(TypeEchoReply)
	reply.SetCode(0)
	reply.SetIdentifier(req.Identifier())
	reply.SetSequenceNumber(req.SequenceNumber())
	copy(reply.Data(), req.Data())
	reply.SetCRC(0)
	reply.SetCRC(reply.CalculateCRC())
	return reply, nil
}

// BuildTimeExceeded fills buf with a type-11 code-0 message quoting the
// first min(len(quote), 28) bytes of the offending datagram (its IP
// header plus up to 8 bytes of payload).
func BuildTimeExceeded(buf []byte, quote []byte) (FrameTimeExceeded, error) {
	n := len(quote)
	if n > maxQuoteLen {
		n = maxQuoteLen
	}
	frm, err := NewFrameTimeExceeded(buf[:swrouterICMPHeader+n])
	if err != nil {
		return FrameTimeExceeded{}, err
	}
	frm.SetType(TypeTimeExceeded)
	frm.SetCode(CodeExceededInTransit)
	binaryZero(frm.buf[4:8])
	copy(frm.Quote(), quote[:n])
	frm.SetCRC(0)
	frm.SetCRC(frm.CalculateCRC())
	return frm, nil
}

// BuildDestinationUnreachable fills buf with a type-3 message of the
// given code, quoting the first min(len(quote), 28) bytes of the
// offending datagram.
func BuildDestinationUnreachable(buf []byte, code CodeDestinationUnreachable, quote []byte) (FrameDestinationUnreachable, error) {
	n := len(quote)
	if n > maxQuoteLen {
		n = maxQuoteLen
	}
	frm, err := NewFrameDestinationUnreachable(buf[:swrouterICMPHeader+n])
	if err != nil {
		return FrameDestinationUnreachable{}, err
	}
	frm.SetType(TypeDestinationUnreachable)
	frm.SetCode(code)
	binaryZero(frm.buf[4:8]) // unused + next-hop MTU, always 0: this router never fragments
	copy(frm.Quote(), quote[:n])
	frm.SetCRC(0)
	frm.SetCRC(frm.CalculateCRC())
	return frm, nil
}

const swrouterICMPHeader = 8

func binaryZero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
