package link

import (
	"encoding/json"
	"net"
	"sync"

	"swarmctl/internal/telemetry"
)

// UDP is the thinnest conformant carrier: JSON setpoint datagrams out,
// JSON telemetry datagrams in. No retries, no delivery guarantees; the real
// radio driver lives outside this process.
type UDP struct {
	mu      sync.RWMutex
	conns   map[int]*net.UDPConn
	latest  map[int]telemetry.Record
	recv    *net.UDPConn
	closing chan struct{}
}

// NewUDP dials one socket per vehicle address and listens for telemetry on
// listenAddr. Vehicles with unresolvable addresses are skipped; sends to them
// drop, which the dispatcher already tolerates.
func NewUDP(vehicles map[int]string, listenAddr string) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, err
	}
	recv, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	u := &UDP{
		conns:   make(map[int]*net.UDPConn, len(vehicles)),
		latest:  make(map[int]telemetry.Record, len(vehicles)),
		recv:    recv,
		closing: make(chan struct{}),
	}
	for id, addr := range vehicles {
		raddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			continue
		}
		conn, err := net.DialUDP("udp", nil, raddr)
		if err != nil {
			continue
		}
		u.conns[id] = conn
	}
	go u.receive()
	return u, nil
}

// Send writes one setpoint datagram, best effort.
func (u *UDP) Send(vehicleID int, sp telemetry.Setpoint) {
	u.mu.RLock()
	conn := u.conns[vehicleID]
	u.mu.RUnlock()
	if conn == nil {
		return
	}
	data, err := json.Marshal(sp)
	if err != nil {
		return
	}
	_, _ = conn.Write(data)
}

// PollTelemetry returns the most recent record received for the vehicle.
func (u *UDP) PollTelemetry(vehicleID int) (telemetry.Record, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	rec, ok := u.latest[vehicleID]
	return rec, ok
}

// receive ingests telemetry datagrams until Close.
func (u *UDP) receive() {
	buf := make([]byte, 2048)
	for {
		n, _, err := u.recv.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-u.closing:
				return
			default:
				continue
			}
		}
		var rec telemetry.Record
		if err := json.Unmarshal(buf[:n], &rec); err != nil {
			continue
		}
		u.mu.Lock()
		u.latest[rec.VehicleID] = rec
		u.mu.Unlock()
	}
}

// Close shuts the receive socket and all per-vehicle connections.
func (u *UDP) Close() error {
	close(u.closing)
	err := u.recv.Close()
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, c := range u.conns {
		c.Close()
	}
	return err
}
