package store

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hostsentrystack/hostsentry-agent/internal/config"
)

// Mirror publishes the threat cache JSON into a Valkey/Redis-compatible
// server so co-located consumers can read it without touching the
// filesystem. It is write-only and strictly optional: mirror failures are
// the caller's to log, never to escalate.
type Mirror struct {
	cfg config.MirrorConfig
}

// NewMirror creates a Mirror and pings the target to fail fast on bad
// connectivity or credentials.
func NewMirror(cfg config.MirrorConfig) (*Mirror, error) {
	if cfg.Addr == "" {
		return nil, errors.New("mirror addr is required")
	}
	if cfg.Key == "" {
		return nil, errors.New("mirror key is required")
	}
	m := &Mirror{cfg: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := m.ping(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Publish stores the serialized cache document under the configured key with
// the configured TTL.
func (m *Mirror) Publish(ctx context.Context, payload []byte) error {
	return m.withConn(ctx, func(mc *mirrorConn) error {
		args := [][]byte{[]byte(m.cfg.Key), payload}
		if m.cfg.TTL > 0 {
			ms := strconv.FormatInt(m.cfg.TTL.Milliseconds(), 10)
			args = append(args, []byte("PX"), []byte(ms))
		}
		if err := mc.writeCommand("SET", args...); err != nil {
			return err
		}
		reply, err := mc.readReply()
		if err != nil {
			return err
		}
		if reply.typ != replySimpleString || string(reply.data) != "OK" {
			return fmt.Errorf("unexpected SET response: %s", reply.data)
		}
		return nil
	})
}

func (m *Mirror) ping(ctx context.Context) error {
	return m.withConn(ctx, func(mc *mirrorConn) error {
		if err := mc.writeCommand("PING"); err != nil {
			return err
		}
		reply, err := mc.readReply()
		if err != nil {
			return err
		}
		if reply.typ != replySimpleString || string(reply.data) != "PONG" {
			return fmt.Errorf("unexpected PING response: %s", reply.data)
		}
		return nil
	})
}

func (m *Mirror) withConn(ctx context.Context, fn func(*mirrorConn) error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	dialer := net.Dialer{Timeout: m.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", m.cfg.Addr)
	if err != nil {
		return err
	}
	mc := &mirrorConn{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writer:       bufio.NewWriter(conn),
		writeTimeout: m.cfg.WriteTimeout,
	}
	defer mc.close()

	if err := m.authenticate(mc); err != nil {
		return err
	}
	return fn(mc)
}

func (m *Mirror) authenticate(mc *mirrorConn) error {
	if m.cfg.Password == "" {
		return nil
	}
	args := [][]byte{}
	if m.cfg.Username != "" {
		args = append(args, []byte(m.cfg.Username))
	}
	args = append(args, []byte(m.cfg.Password))
	if err := mc.writeCommand("AUTH", args...); err != nil {
		return err
	}
	reply, err := mc.readReply()
	if err != nil {
		return err
	}
	if reply.typ != replySimpleString || !strings.EqualFold(string(reply.data), "OK") {
		return fmt.Errorf("auth failed: %s", reply.data)
	}
	return nil
}

// replyType enumerates the subset of RESP types the mirror needs.
type replyType string

const (
	replySimpleString replyType = "+"
	replyBulkString   replyType = "$"
	replyError        replyType = "-"
	replyInteger      replyType = ":"
)

type respReply struct {
	typ  replyType
	data []byte
}

type mirrorConn struct {
	conn         net.Conn
	reader       *bufio.Reader
	writer       *bufio.Writer
	writeTimeout time.Duration
}

func (mc *mirrorConn) close() { _ = mc.conn.Close() }

func (mc *mirrorConn) writeCommand(command string, args ...[]byte) error {
	if mc.writeTimeout > 0 {
		if err := mc.conn.SetWriteDeadline(time.Now().Add(mc.writeTimeout)); err != nil {
			return err
		}
	}

	parts := make([][]byte, 0, len(args)+1)
	parts = append(parts, []byte(command))
	parts = append(parts, args...)

	if _, err := fmt.Fprintf(mc.writer, "*%d\r\n", len(parts)); err != nil {
		return err
	}
	for _, part := range parts {
		if _, err := fmt.Fprintf(mc.writer, "$%d\r\n", len(part)); err != nil {
			return err
		}
		if _, err := mc.writer.Write(part); err != nil {
			return err
		}
		if _, err := mc.writer.WriteString("\r\n"); err != nil {
			return err
		}
	}
	return mc.writer.Flush()
}

func (mc *mirrorConn) readReply() (respReply, error) {
	line, err := mc.readLine()
	if err != nil {
		return respReply{}, err
	}
	if len(line) == 0 {
		return respReply{}, errors.New("empty reply")
	}

	typ := replyType(line[:1])
	body := line[1:]
	switch typ {
	case replySimpleString, replyInteger:
		return respReply{typ: typ, data: []byte(body)}, nil
	case replyError:
		return respReply{}, fmt.Errorf("server error: %s", body)
	case replyBulkString:
		length, err := strconv.Atoi(body)
		if err != nil {
			return respReply{}, fmt.Errorf("bad bulk length %q", body)
		}
		if length < 0 {
			return respReply{typ: replyBulkString}, nil
		}
		buf := make([]byte, length+2)
		if _, err := io.ReadFull(mc.reader, buf); err != nil {
			return respReply{}, err
		}
		return respReply{typ: replyBulkString, data: buf[:length]}, nil
	default:
		return respReply{}, fmt.Errorf("unsupported reply type %q", typ)
	}
}

func (mc *mirrorConn) readLine() (string, error) {
	line, err := mc.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
