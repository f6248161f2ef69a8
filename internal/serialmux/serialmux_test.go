package serialmux

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

// pipePort is a SerialPorter over an in-memory pipe for deterministic tests.
type pipePort struct {
	io.Reader
	writes bytes.Buffer
}

func (p *pipePort) Write(b []byte) (int, error) { return p.writes.Write(b) }
func (p *pipePort) Close() error                { return nil }

func TestSubscribeReceivesLines(t *testing.T) {
	r, w := io.Pipe()
	mux := NewSerialMux(&pipePort{Reader: r})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)

	go func() {
		w.Write([]byte(`{"origin_node_id":"a"}` + "\n"))
	}()

	select {
	case line := <-ch:
		if line != `{"origin_node_id":"a"}` {
			t.Errorf("received %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for telemetry line")
	}

	cancel()
	w.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop after cancellation")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	mux := NewSerialMux(&pipePort{Reader: strings.NewReader("")})

	id, ch := mux.Subscribe()
	mux.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Error("channel still open after unsubscribe")
	}
}

func TestSendCommandAppendsNewline(t *testing.T) {
	port := &pipePort{Reader: strings.NewReader("")}
	mux := NewSerialMux(port)

	if err := mux.SendCommand("telemetry json"); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if got := port.writes.String(); got != "telemetry json\n" {
		t.Errorf("wrote %q, want %q", got, "telemetry json\n")
	}
}

func TestInitializeSendsSetupCommands(t *testing.T) {
	port := &pipePort{Reader: strings.NewReader("")}
	mux := NewSerialMux(port)

	if err := mux.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	got := port.writes.String()
	if !strings.Contains(got, "clock set ") {
		t.Errorf("missing clock sync command in %q", got)
	}
	if !strings.Contains(got, "telemetry json\n") {
		t.Errorf("missing telemetry mode command in %q", got)
	}
}

func TestMonitorStopsOnEOF(t *testing.T) {
	mux := NewSerialMux(&pipePort{Reader: strings.NewReader("one\ntwo\n")})

	err := mux.Monitor(context.Background())
	if err != nil {
		t.Errorf("Monitor returned %v on EOF, want nil", err)
	}
}

func TestMockSerialMuxReplaysFixtures(t *testing.T) {
	fixtures := [][]byte{[]byte(`{"origin_node_id":"n1","target_node_id":"n2"}`)}
	mux, _ := NewMockSerialMux(fixtures, 10*time.Millisecond)
	defer mux.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go mux.Monitor(ctx)

	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)

	select {
	case line := <-ch:
		if !strings.Contains(line, `"origin_node_id":"n1"`) {
			t.Errorf("unexpected fixture line %q", line)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for mock fixture line")
	}
}

func TestPortOptionsNormalize(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if opts.BaudRate != 115200 || opts.DataBits != 8 || opts.StopBits != 1 || opts.Parity != "N" {
		t.Errorf("defaults = %+v", opts)
	}

	if _, err := (PortOptions{DataBits: 3}).Normalize(); err == nil {
		t.Error("expected error for data bits 3")
	}
	if _, err := (PortOptions{StopBits: 4}).Normalize(); err == nil {
		t.Error("expected error for stop bits 4")
	}
	if _, err := (PortOptions{Parity: "Q"}).Normalize(); err == nil {
		t.Error("expected error for parity Q")
	}

	opts, err = PortOptions{Parity: "even"}.Normalize()
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if opts.Parity != "E" {
		t.Errorf("parity = %q, want E", opts.Parity)
	}
}
