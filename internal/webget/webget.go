// Package webget is a minimal HTTP/1.1-over-TCP client that drives a
// TCPSender/TCPReceiver pair end to end, ported from
// original_source/apps/webget.cc's get_URL: write a GET request with
// Connection: close, then read until the peer's stream finishes.
package webget

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"minnow-go/internal/tcpip/tcpmsg"
	"minnow-go/internal/tcpip/tcpreceiver"
	"minnow-go/internal/tcpip/tcpsender"
)

// maxRounds bounds how many push/tick cycles Get will run before
// giving up on a response that never finishes.
const maxRounds = 100000

// Transport is the pair of TCP endpoints webget drives, plus the
// plumbing a driver loop needs to move segments and time between them.
type Transport struct {
	Sender   *tcpsender.Sender
	Receiver *tcpreceiver.Receiver
	// Deliver carries a sender-produced segment to the peer and
	// returns whatever the peer's receiver reports back, modeling a
	// full round trip in one call since this client drives no
	// independent network loop of its own.
	Deliver func(tcpmsg.SenderMessage) tcpmsg.ReceiverMessage
	Tick    time.Duration
}

// Get issues `GET <path> HTTP/1.1` against host over t, writing the
// request into the sender's input stream and draining the receiver's
// output stream until it finishes. It returns the accumulated
// response bytes. ctx is checked once per round; a canceled ctx stops
// the drive loop and returns ctx.Err() instead of running to maxRounds.
func Get(ctx context.Context, t *Transport, host, path string) ([]byte, error) {
	request := "GET " + path + " HTTP/1.1\r\n" +
		"Host: " + host + "\r\n" +
		"Connection: close\r\n" +
		"\r\n"

	t.Sender.Input().Push([]byte(request))
	t.Sender.Input().Close()

	transmit := func(msg tcpmsg.SenderMessage) {
		ack := t.Deliver(msg)
		t.Sender.Receive(ack)
	}

	var response []byte
	for round := 0; round < maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		response = append(response, t.Receiver.Reader().PopAll()...)
		if t.Receiver.Reader().IsFinished() {
			return response, nil
		}

		before := t.Sender.SequenceNumbersInFlight()
		t.Sender.Push(transmit)
		if t.Sender.SequenceNumbersInFlight() == before {
			t.Sender.Tick(t.Tick, transmit)
		}
	}
	return nil, errors.New("webget: exceeded round budget waiting for response to finish")
}
