package antivirus

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"time"
)

// maxChunk stays below clamd's default StreamMaxLength chunking.
const maxChunk = 1 << 20

// ClamAVScanner talks to a clamd daemon over TCP or a Unix socket.
type ClamAVScanner struct {
	address string // "localhost:3310" or "/var/run/clamav/clamd.sock"
	timeout time.Duration
	dialer  net.Dialer
}

var _ Scanner = (*ClamAVScanner)(nil)

func NewClamAVScanner(address string, timeout time.Duration) *ClamAVScanner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ClamAVScanner{address: address, timeout: timeout}
}

func (c *ClamAVScanner) Name() string {
	return "clamav"
}

func (c *ClamAVScanner) dial(ctx context.Context) (net.Conn, error) {
	network := "tcp"
	if strings.HasPrefix(c.address, "/") {
		network = "unix"
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	conn, err := c.dialer.DialContext(ctx, network, c.address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)
	return conn, nil
}

// Ping sends zPING and expects PONG.
func (c *ClamAVScanner) Ping(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("zPING\x00")); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	reply, err := readReply(conn)
	if err != nil {
		return err
	}
	if reply != "PONG" {
		return fmt.Errorf("%w: unexpected reply %q", ErrUnavailable, reply)
	}
	return nil
}

// Scan streams data with zINSTREAM. Replies look like "stream: OK",
// "stream: Eicar-Signature FOUND" or "... ERROR".
func (c *ClamAVScanner) Scan(ctx context.Context, data []byte) (ScanResult, error) {
	result := ScanResult{ScannerName: c.Name()}

	conn, err := c.dial(ctx)
	if err != nil {
		return result, err
	}
	defer conn.Close()

	w := bufio.NewWriter(conn)
	if _, err := w.WriteString("zINSTREAM\x00"); err != nil {
		return result, err
	}

	var size [4]byte
	for len(data) > 0 {
		n := min(len(data), maxChunk)
		binary.BigEndian.PutUint32(size[:], uint32(n))
		if _, err := w.Write(size[:]); err != nil {
			return result, err
		}
		if _, err := w.Write(data[:n]); err != nil {
			return result, err
		}
		data = data[n:]
	}

	// Zero-length chunk ends the stream
	binary.BigEndian.PutUint32(size[:], 0)
	if _, err := w.Write(size[:]); err != nil {
		return result, err
	}
	if err := w.Flush(); err != nil {
		return result, fmt.Errorf("antivirus: send stream: %w", err)
	}

	reply, err := readReply(conn)
	if err != nil {
		return result, err
	}
	return parseReply(reply, result)
}

func readReply(conn net.Conn) (string, error) {
	reply, err := bufio.NewReader(conn).ReadString(0)
	if err != nil && reply == "" {
		return "", fmt.Errorf("antivirus: read reply: %w", err)
	}
	return strings.TrimSpace(strings.TrimRight(reply, "\x00")), nil
}

func parseReply(reply string, result ScanResult) (ScanResult, error) {
	_, status, found := strings.Cut(reply, ":")
	if !found {
		status = reply
	}
	status = strings.TrimSpace(status)

	switch {
	case status == "OK":
		return result, nil
	case strings.HasSuffix(status, " FOUND"):
		result.Infected = true
		result.ThreatName = strings.TrimSuffix(status, " FOUND")
		return result, nil
	default:
		return result, fmt.Errorf("antivirus: scan failed: %s", reply)
	}
}
