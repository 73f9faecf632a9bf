package utils

import (
	"context"
	"fmt"
	"net"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// CANWriter transmits frames onto the bus.
type CANWriter interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

// CANReader delivers received frames to a handler until the context is
// canceled or the bus read fails.
type CANReader interface {
	ReceiveLoop(ctx context.Context, handle func(can.Frame)) error
	Close() error
}

// SocketCANWriter implements CANWriter over a SocketCAN interface.
type SocketCANWriter struct {
	conn net.Conn
	tx   *socketcan.Transmitter
}

func NewSocketCANWriter(ctx context.Context, iface string) (*SocketCANWriter, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", iface, err)
	}
	return &SocketCANWriter{conn: conn, tx: socketcan.NewTransmitter(conn)}, nil
}

func (w *SocketCANWriter) WriteFrame(ctx context.Context, frame can.Frame) error {
	return w.tx.TransmitFrame(ctx, frame)
}

func (w *SocketCANWriter) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// SocketCANReader implements CANReader over a SocketCAN interface.
type SocketCANReader struct {
	conn net.Conn
	recv *socketcan.Receiver
}

func NewSocketCANReader(ctx context.Context, iface string) (*SocketCANReader, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", iface, err)
	}
	return &SocketCANReader{conn: conn, recv: socketcan.NewReceiver(conn)}, nil
}

// ReceiveLoop blocks reading frames and invoking handle for each one.
// Closing the reader unblocks the underlying receive.
func (r *SocketCANReader) ReceiveLoop(ctx context.Context, handle func(can.Frame)) error {
	for r.recv.Receive() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		handle(r.recv.Frame())
	}
	if err := r.recv.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("socketcan receive: %w", err)
	}
	return ctx.Err()
}

func (r *SocketCANReader) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
