package tcpseg

import (
	"net/netip"
	"testing"

	"minnow-go/internal/tcpip/tcpmsg"
	"minnow-go/internal/tcpip/wrap32"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ep := Endpoints{
		SrcAddr: netip.MustParseAddr("10.0.0.1"),
		DstAddr: netip.MustParseAddr("10.0.0.2"),
		SrcPort: 5000,
		DstPort: 80,
	}
	ackno := wrap32.FromRaw(42)
	msg := tcpmsg.SenderMessage{Seqno: wrap32.FromRaw(100), SYN: true, Payload: []byte("hi")}

	buf, err := EncodeSender(msg, &ackno, 4096, ep)
	if err != nil {
		t.Fatalf("EncodeSender: %v", err)
	}

	decoded, recv, err := DecodeReceiver(buf)
	if err != nil {
		t.Fatalf("DecodeReceiver: %v", err)
	}
	if decoded.Seqno.Raw() != msg.Seqno.Raw() || !decoded.SYN || string(decoded.Payload) != "hi" {
		t.Fatalf("decoded sender message mismatch: %+v", decoded)
	}
	if recv.Ackno == nil || recv.Ackno.Raw() != ackno.Raw() || recv.WindowSize != 4096 {
		t.Fatalf("decoded receiver message mismatch: %+v", recv)
	}
}

func TestDecodeTooShort(t *testing.T) {
	if _, _, err := DecodeReceiver(make([]byte, 4)); err == nil {
		t.Fatal("expected an error decoding a too-short TCP segment")
	}
}
