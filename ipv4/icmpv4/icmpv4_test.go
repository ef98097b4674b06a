package icmpv4

import (
	"bytes"
	"testing"
)

func TestBuildEchoReply(t *testing.T) {
	var reqBuf [8 + 4]byte
	req, err := NewFrameEcho(reqBuf[:])
	if err != nil {
		t.Fatal(err)
	}
	req.SetType(TypeEcho)
	req.SetCode(0)
	req.SetIdentifier(0x1234)
	req.SetSequenceNumber(1)
	copy(req.Data(), []byte("ping"))
	req.SetCRC(0)
	req.SetCRC(req.CalculateCRC())

	var replyBuf [8 + 4]byte
	reply, err := BuildEchoReply(replyBuf[:], req)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Type() != TypeEchoReply {
		t.Errorf("want type %d, got %d", TypeEchoReply, reply.Type())
	}
	if reply.Identifier() != req.Identifier() || reply.SequenceNumber() != req.SequenceNumber() {
		t.Error("identifier/sequence not preserved")
	}
	if !bytes.Equal(reply.Data(), req.Data()) {
		t.Errorf("want data %q, got %q", req.Data(), reply.Data())
	}
	if !reply.ValidateCRC() {
		t.Error("reply checksum does not validate")
	}
}

func TestBuildDestinationUnreachableTruncatesQuote(t *testing.T) {
	quote := make([]byte, 40) // header with options + payload, exceeds 28
	for i := range quote {
		quote[i] = byte(i)
	}
	var buf [8 + maxQuoteLen]byte
	frm, err := BuildDestinationUnreachable(buf[:], CodeHostUnreachable, quote)
	if err != nil {
		t.Fatal(err)
	}
	if frm.Code() != CodeHostUnreachable {
		t.Errorf("want code %d, got %d", CodeHostUnreachable, frm.Code())
	}
	if len(frm.Quote()) != maxQuoteLen {
		t.Errorf("want quote length %d, got %d", maxQuoteLen, len(frm.Quote()))
	}
	if !bytes.Equal(frm.Quote(), quote[:maxQuoteLen]) {
		t.Error("quote bytes not copied correctly")
	}
	if !frm.ValidateCRC() {
		t.Error("checksum does not validate")
	}
}

func TestBuildTimeExceededShortQuote(t *testing.T) {
	quote := []byte{1, 2, 3, 4, 5}
	var buf [8 + 5]byte
	frm, err := BuildTimeExceeded(buf[:], quote)
	if err != nil {
		t.Fatal(err)
	}
	if frm.Code() != CodeExceededInTransit {
		t.Errorf("want code %d, got %d", CodeExceededInTransit, frm.Code())
	}
	if !bytes.Equal(frm.Quote(), quote) {
		t.Error("short quote not copied in full")
	}
	if !frm.ValidateCRC() {
		t.Error("checksum does not validate")
	}
}
