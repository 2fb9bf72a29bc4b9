// Package natstest spins up an embedded NATS server for transport tests.
package natstest

import (
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// NewServerAndConn starts an embedded NATS server on a random port and
// returns it together with a client connection. Both are torn down when the
// test finishes.
func NewServerAndConn(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	s, err := server.NewServer(&server.Options{
		Host: "localhost",
		Port: server.RANDOM_PORT,
	})
	if err != nil {
		t.Fatal(err)
	}

	go s.Start()
	t.Cleanup(s.Shutdown)

	if !s.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready in time")
	}

	c, err := nats.Connect(fmt.Sprintf("nats://%s", s.Addr().String()), nats.Name(t.Name()))
	if err != nil {
		t.Fatalf("error connecting to the server: %s", err)
	}
	t.Cleanup(c.Close)
	return s, c
}
