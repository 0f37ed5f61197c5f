package endpoint

import (
	"fmt"
	"sync"

	"github.com/hakoniwalab/hakoniwa-pdu-bridge-core/pdukey"
)

// Memory is an in-process Endpoint backed by a map of named slots. It
// plays the role the real hakoniwa shared-memory transport plays in
// production: a fixed-size PDU table addressed by (robot, pduName),
// with recv reading the slot's current value non-destructively (a
// later Send simply replaces it, there is no queueing).
//
// It is also the harness used by the transfer-engine tests, standing
// in for the C++ unit test suite's MockEndpoint.
type Memory struct {
	name string

	mu             sync.Mutex
	sizes          map[string]int             // "robot/pduName" -> declared size
	channelIDs     map[string]int             // "robot/pduName" -> channel id
	namesByChannel map[chanKey]string         // (robot, channelID) -> pduName
	slots          map[string]*slot           // "robot/pduName" -> current value
	subs           map[chanKey][]RecvCallback // (robot, channelID) -> callbacks, fan-out order
	pending        []pendingDelivery
	nextChannelID  int
}

type chanKey struct {
	robot     string
	channelID int
}

type slot struct {
	data    []byte
	hasData bool
}

type pendingDelivery struct {
	key  pdukey.Resolved
	data []byte
}

func slotKey(robot, pduName string) string {
	return robot + "/" + pduName
}

// NewMemory builds an empty Memory endpoint. Call Declare for every
// PDU it should know about before wiring it into a Builder.
func NewMemory(name string) *Memory {
	return &Memory{
		name:           name,
		sizes:          make(map[string]int),
		channelIDs:     make(map[string]int),
		namesByChannel: make(map[chanKey]string),
		slots:          make(map[string]*slot),
		subs:           make(map[chanKey][]RecvCallback),
	}
}

// Declare registers a PDU's fixed size and assigns it a channel id,
// analogous to the entry a real shared-memory PDU definition would
// carry. Declaring the same (robot, pduName) twice is a no-op and
// returns the existing channel id.
func (m *Memory) Declare(robot, pduName string, size int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := slotKey(robot, pduName)
	if id, ok := m.channelIDs[k]; ok {
		return id
	}
	id := m.nextChannelID
	m.nextChannelID++
	m.channelIDs[k] = id
	m.sizes[k] = size
	m.namesByChannel[chanKey{robot, id}] = pduName
	m.slots[k] = &slot{}
	return id
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) SizeOf(key pdukey.Key) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sizes[slotKey(key.Robot, key.PduName)]
}

func (m *Memory) ChannelIDOf(key pdukey.Key) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.channelIDs[slotKey(key.Robot, key.PduName)]; ok {
		return id
	}
	return -1
}

func (m *Memory) PduNameOf(key pdukey.Resolved) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.namesByChannel[chanKey{key.Robot, key.ChannelID}]
}

func (m *Memory) Recv(key pdukey.Key, buf []byte) (Status, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[slotKey(key.Robot, key.PduName)]
	if !ok || !s.hasData {
		return StatusNoEntry, 0, nil
	}
	n := copy(buf, s.data)
	return StatusOK, n, nil
}

func (m *Memory) Send(key pdukey.Key, data []byte) (Status, error) {
	m.mu.Lock()
	k := slotKey(key.Robot, key.PduName)
	s, ok := m.slots[k]
	if !ok {
		s = &slot{}
		m.slots[k] = s
	}
	s.data = append([]byte(nil), data...)
	s.hasData = true

	id, known := m.channelIDs[k]
	m.mu.Unlock()

	if known {
		m.mu.Lock()
		_, subscribed := m.subs[chanKey{key.Robot, id}]
		m.mu.Unlock()
		if subscribed {
			m.mu.Lock()
			m.pending = append(m.pending, pendingDelivery{
				key:  pdukey.Resolved{Robot: key.Robot, ChannelID: id},
				data: s.data,
			})
			m.mu.Unlock()
		}
	}
	return StatusOK, nil
}

// Subscribe registers cb to be invoked from ProcessRecvEvents for
// every Send targeting key, alongside any callback already registered
// for key. A connection that fans one source PDU out to several
// destinations builds one TransferUnit per destination, each
// subscribing the same resolved key independently; every subscriber
// must see every delivery, not just the most recently registered one.
func (m *Memory) Subscribe(key pdukey.Resolved, cb RecvCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := chanKey{key.Robot, key.ChannelID}
	m.subs[k] = append(m.subs[k], cb)
}

func (m *Memory) ProcessRecvEvents() {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, ev := range pending {
		m.mu.Lock()
		cbs := append([]RecvCallback(nil), m.subs[chanKey{ev.key.Robot, ev.key.ChannelID}]...)
		m.mu.Unlock()
		for _, cb := range cbs {
			if cb != nil {
				cb(ev.key, ev.data)
			}
		}
	}
}

// String helps tests print a Memory endpoint's identity in failures.
func (m *Memory) String() string {
	return fmt.Sprintf("endpoint.Memory(%s)", m.name)
}
