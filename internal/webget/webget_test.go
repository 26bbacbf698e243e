package webget

import (
	"context"
	"strings"
	"testing"
	"time"

	"minnow-go/internal/tcpip/bytestream"
	"minnow-go/internal/tcpip/tcpmsg"
	"minnow-go/internal/tcpip/tcpreceiver"
	"minnow-go/internal/tcpip/tcpsender"
	"minnow-go/internal/tcpip/wrap32"
)

// loopbackServer feeds a canned response back once it has seen the
// request's FIN, simulating a peer without any real networking.
type loopbackServer struct {
	receiver   *tcpreceiver.Receiver
	respSender *tcpsender.Sender
	respPrimed bool
	response   string
}

func (s *loopbackServer) deliver(msg tcpmsg.SenderMessage) tcpmsg.ReceiverMessage {
	s.receiver.Receive(msg)
	if !s.respPrimed && s.receiver.Reader().IsClosed() {
		s.receiver.Reader().PopAll()
		s.respSender.Input().Push([]byte(s.response))
		s.respSender.Input().Close()
		s.respSender.Receive(tcpmsg.ReceiverMessage{WindowSize: 65535})
		s.respPrimed = true
	}
	return s.receiver.Send()
}

func TestGetDrainsResponseUntilFinished(t *testing.T) {
	clientIn := bytestream.New(4096)
	client := &Transport{
		Sender:   tcpsender.New(clientIn, wrap32.FromRaw(0), 50*time.Millisecond, 1400),
		Receiver: tcpreceiver.New(4096),
		Tick:     10 * time.Millisecond,
	}

	server := &loopbackServer{
		receiver:   tcpreceiver.New(4096),
		respSender: tcpsender.New(bytestream.New(4096), wrap32.FromRaw(1000), 50*time.Millisecond, 1400),
		response:   "HTTP/1.1 200 OK\r\n\r\nhello",
	}

	client.Deliver = func(msg tcpmsg.SenderMessage) tcpmsg.ReceiverMessage {
		recvAck := server.deliver(msg)

		// Drive the server's reply sender forward and feed whatever
		// it produces straight into the client's receiver, ack'ing
		// immediately so the exchange converges in a few rounds.
		server.respSender.Push(func(reply tcpmsg.SenderMessage) {
			client.Receiver.Receive(reply)
		})
		server.respSender.Receive(client.Receiver.Send())

		return recvAck
	}

	got, err := Get(context.Background(), client, "example.com", "/")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !strings.Contains(string(got), "hello") {
		t.Fatalf("response = %q, want it to contain %q", got, "hello")
	}
}

func TestGetRespectsCanceledContext(t *testing.T) {
	client := &Transport{
		Sender:   tcpsender.New(bytestream.New(4096), wrap32.FromRaw(0), 50*time.Millisecond, 1400),
		Receiver: tcpreceiver.New(4096),
		Tick:     10 * time.Millisecond,
		Deliver: func(tcpmsg.SenderMessage) tcpmsg.ReceiverMessage {
			return tcpmsg.ReceiverMessage{WindowSize: 65535}
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Get(ctx, client, "example.com", "/")
	if err != context.Canceled {
		t.Fatalf("Get with a canceled context returned %v, want context.Canceled", err)
	}
}
