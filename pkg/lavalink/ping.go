package lavalink

import (
	"net"
	"strconv"
	"time"
)

const pingTimeout = 5 * time.Second

// measureLatency times a bare TCP connect against host:port. It is
// independent of the websocket link, so it works as a selection probe even
// while a node is busy.
func measureLatency(host string, port int) (time.Duration, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	start := time.Now()
	conn, err := net.DialTimeout("tcp", addr, pingTimeout)
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(start)

	conn.Close()
	return elapsed, nil
}
