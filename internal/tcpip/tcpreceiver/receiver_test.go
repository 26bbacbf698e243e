package tcpreceiver

import (
	"testing"

	"minnow-go/internal/tcpip/tcpmsg"
	"minnow-go/internal/tcpip/wrap32"
)

func TestSynAndData(t *testing.T) {
	r := New(4)
	r.Receive(tcpmsg.SenderMessage{
		Seqno:   wrap32.FromRaw(1000),
		SYN:     true,
		Payload: []byte("ab"),
	})

	if got := string(r.Reader().Peek()); got != "ab" {
		t.Fatalf("stream contents = %q, want %q", got, "ab")
	}

	msg := r.Send()
	if msg.Ackno == nil {
		t.Fatal("Send() returned no ackno after SYN")
	}
	if got, want := msg.Ackno.Raw(), uint32(1003); got != want {
		t.Fatalf("ackno = %d, want %d", got, want)
	}
	if msg.WindowSize != 2 {
		t.Fatalf("window_size = %d, want 2", msg.WindowSize)
	}
}

func TestNoSynYieldsNoAckno(t *testing.T) {
	r := New(4)
	msg := r.Send()
	if msg.Ackno != nil {
		t.Fatal("Send() returned an ackno before any SYN was observed")
	}
}

func TestDataBeforeSynIsDropped(t *testing.T) {
	r := New(4)
	r.Receive(tcpmsg.SenderMessage{Seqno: wrap32.FromRaw(5), Payload: []byte("xy")})
	if r.Reader().BytesBuffered() != 0 {
		t.Fatal("payload accepted before a SYN established the ISN")
	}
}

func TestRSTSetsStreamError(t *testing.T) {
	r := New(4)
	r.Receive(tcpmsg.SenderMessage{RST: true})
	if !r.Reader().HasError() {
		t.Fatal("RST did not set the stream error flag")
	}
	msg := r.Send()
	if !msg.RST {
		t.Fatal("Send() did not report RST after the stream errored")
	}
}

func TestAckCreditsFinAfterClose(t *testing.T) {
	r := New(4)
	r.Receive(tcpmsg.SenderMessage{Seqno: wrap32.FromRaw(0), SYN: true})
	r.Receive(tcpmsg.SenderMessage{Seqno: wrap32.FromRaw(1), Payload: []byte("ab"), FIN: true})

	msg := r.Send()
	if got, want := msg.Ackno.Raw(), uint32(4); got != want { // SYN(1) + "ab"(2) + FIN(1)
		t.Fatalf("ackno = %d, want %d", got, want)
	}
}
