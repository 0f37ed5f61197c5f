package endpoint

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/golang/glog"

	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/pdukey"
)

// TCP is an Endpoint that mirrors its local slot table to one or more
// peer processes over TCP using a big-endian length-prefixed (robot,
// pduName, payload) frame.
//
// Locally it behaves exactly like Memory (same non-destructive recv,
// same declare/size/channel bookkeeping) since it embeds one; Send is
// the only method it overrides, to additionally broadcast the write
// to every connected peer so their embedded Memory picks it up too.
type TCP struct {
	*Memory

	mu        sync.Mutex
	peers     []net.Conn
	listener  net.Listener
	closeOnce sync.Once
}

// NewTCP builds a TCP endpoint named name. Declare PDUs on it exactly
// as with Memory before wiring it into a Builder.
func NewTCP(name string) *TCP {
	return &TCP{Memory: NewMemory(name)}
}

// Listen starts accepting peer connections on addr. Each accepted
// connection is read in its own goroutine until it errors or closes.
func (t *TCP) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("endpoint %s: listen %s: %w", t.Name(), addr, err)
	}
	t.mu.Lock()
	t.listener = ln
	t.mu.Unlock()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				glog.V(1).Infof("endpoint %s: accept loop stopped: %v", t.Name(), err)
				return
			}
			t.adopt(conn)
		}
	}()
	return nil
}

// Addr returns the address the listener is bound to, or "" if Listen
// has not been called. Useful in tests that bind to ":0" and need the
// OS-assigned port.
func (t *TCP) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

// DialPeer opens an outbound connection to a remote endpoint's Listen
// address and starts reading frames from it.
func (t *TCP) DialPeer(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("endpoint %s: dial %s: %w", t.Name(), addr, err)
	}
	t.adopt(conn)
	return nil
}

func (t *TCP) adopt(conn net.Conn) {
	t.mu.Lock()
	t.peers = append(t.peers, conn)
	t.mu.Unlock()
	go t.readLoop(conn)
}

func (t *TCP) readLoop(conn net.Conn) {
	defer conn.Close()
	for {
		robot, pduName, payload, err := decodeFrame(conn)
		if err != nil {
			if err != io.EOF {
				glog.Warningf("endpoint %s: read error from %s: %v", t.Name(), conn.RemoteAddr(), err)
			}
			return
		}
		// Apply directly against the embedded Memory, not t.Send, so an
		// inbound frame is never rebroadcast back out to peers.
		if _, err := t.Memory.Send(pdukey.Key{Robot: robot, PduName: pduName}, payload); err != nil {
			glog.Warningf("endpoint %s: applying remote frame: %v", t.Name(), err)
		}
	}
}

// Send writes data as the current local value of key, exactly like
// Memory.Send, then broadcasts the same value to every connected
// peer so their local slot converges to it too.
func (t *TCP) Send(key pdukey.Key, data []byte) (Status, error) {
	status, err := t.Memory.Send(key, data)
	if err != nil || status != StatusOK {
		return status, err
	}

	frame := encodeFrame(key.Robot, key.PduName, data)
	t.mu.Lock()
	peers := append([]net.Conn(nil), t.peers...)
	t.mu.Unlock()

	for _, conn := range peers {
		if _, err := conn.Write(frame); err != nil {
			glog.Warningf("endpoint %s: broadcast to %s failed: %v", t.Name(), conn.RemoteAddr(), err)
		}
	}
	return StatusOK, nil
}

// Close shuts the listener and every peer connection down.
func (t *TCP) Close() error {
	var firstErr error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.listener != nil {
			if err := t.listener.Close(); err != nil {
				firstErr = err
			}
		}
		for _, conn := range t.peers {
			conn.Close()
		}
	})
	return firstErr
}

// encodeFrame lays out [1B robot len][robot][1B pdu len][pdu][4B
// payload len][payload], all length fields big-endian.
func encodeFrame(robot, pduName string, payload []byte) []byte {
	buf := make([]byte, 0, 1+len(robot)+1+len(pduName)+4+len(payload))
	buf = append(buf, byte(len(robot)))
	buf = append(buf, []byte(robot)...)
	buf = append(buf, byte(len(pduName)))
	buf = append(buf, []byte(pduName)...)

	lenBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBytes, uint32(len(payload)))
	buf = append(buf, lenBytes...)
	buf = append(buf, payload...)
	return buf
}

func decodeFrame(r io.Reader) (robot, pduName string, payload []byte, err error) {
	var lenBuf [1]byte
	if _, err = io.ReadFull(r, lenBuf[:]); err != nil {
		return "", "", nil, err
	}
	robotBuf := make([]byte, lenBuf[0])
	if _, err = io.ReadFull(r, robotBuf); err != nil {
		return "", "", nil, err
	}

	if _, err = io.ReadFull(r, lenBuf[:]); err != nil {
		return "", "", nil, err
	}
	pduBuf := make([]byte, lenBuf[0])
	if _, err = io.ReadFull(r, pduBuf); err != nil {
		return "", "", nil, err
	}

	var payloadLen [4]byte
	if _, err = io.ReadFull(r, payloadLen[:]); err != nil {
		return "", "", nil, err
	}
	n := binary.BigEndian.Uint32(payloadLen[:])
	payload = make([]byte, n)
	if _, err = io.ReadFull(r, payload); err != nil {
		return "", "", nil, err
	}
	return string(robotBuf), string(pduBuf), payload, nil
}
