package device

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/adika-dev/presensi-core/internal/models"
	appErrors "github.com/adika-dev/presensi-core/pkg/errors"
)

const nativeIOTimeout = 30 * time.Second

// nativeAdapter opens a vendor TCP session and reads the full on-device
// attendance buffer. The wire format is one tab-separated record per line:
// uid, pin, timestamp, punch code. The session ends with an END marker.
type nativeAdapter struct {
	cfg    models.DeviceConfig
	logger *zap.Logger
}

func newNativeAdapter(cfg models.DeviceConfig, logger *zap.Logger) *nativeAdapter {
	return &nativeAdapter{cfg: cfg, logger: logger}
}

func (a *nativeAdapter) Name() string { return a.cfg.Name }

func (a *nativeAdapter) dial(ctx context.Context) (net.Conn, *bufio.Reader, error) {
	dialer := net.Dialer{Timeout: nativeIOTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", a.cfg.Endpoint)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrDeviceTimeout.Code, appErrors.ErrDeviceTimeout.Status, fmt.Sprintf("dial %s", a.cfg.Endpoint))
	}

	reader := bufio.NewReader(conn)
	if err := a.command(conn, reader, fmt.Sprintf("AUTH %s", a.cfg.APIKey)); err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "DENIED") {
			return nil, nil, appErrors.Clone(appErrors.ErrDeviceAuth, fmt.Sprintf("device %s denied the session key", a.cfg.Name))
		}
		return nil, nil, err
	}
	return conn, reader, nil
}

// command sends one line and expects an OK acknowledgement.
func (a *nativeAdapter) command(conn net.Conn, reader *bufio.Reader, line string) error {
	conn.SetDeadline(time.Now().Add(nativeIOTimeout))
	if _, err := fmt.Fprintf(conn, "%s\r\n", line); err != nil {
		return fmt.Errorf("send %q: %w", strings.Fields(line)[0], err)
	}
	reply, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read ack for %q: %w", strings.Fields(line)[0], err)
	}
	reply = strings.TrimSpace(reply)
	if !strings.HasPrefix(reply, "OK") {
		return fmt.Errorf("device replied %q to %q", reply, strings.Fields(line)[0])
	}
	return nil
}

func (a *nativeAdapter) TestConnect(ctx context.Context) error {
	conn, _, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	fmt.Fprintf(conn, "QUIT\r\n")
	return nil
}

func (a *nativeAdapter) FetchEvents(ctx context.Context, from, to time.Time) (*FetchResult, error) {
	conn, reader, err := a.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	cmd := fmt.Sprintf("ATTLOG %s %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err := a.command(conn, reader, cmd); err != nil {
		return nil, err
	}

	result := &FetchResult{}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(nativeIOTimeout))
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrDeviceTimeout.Code, appErrors.ErrDeviceTimeout.Status, "read attendance buffer")
		}
		line = strings.TrimSpace(line)
		if line == "END" {
			break
		}
		if line == "" {
			continue
		}

		ev, ok := a.decode(line)
		if !ok {
			result.Dropped++
			continue
		}
		// The device returns its whole buffer; keep only the asked range.
		if ev.At.Before(from) || !ev.At.Before(to) {
			continue
		}
		result.Events = append(result.Events, ev)
	}

	fmt.Fprintf(conn, "QUIT\r\n")
	return result, nil
}

// StreamEvents registers a live-capture session and forwards punches as the
// device records them. The session idles between punches, so the read blocks
// without a rolling deadline; cancelling ctx unblocks it.
func (a *nativeAdapter) StreamEvents(ctx context.Context, ch chan<- models.RawEvent) error {
	conn, reader, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := a.command(conn, reader, "REGEVENT"); err != nil {
		return err
	}

	conn.SetDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return appErrors.Wrap(err, appErrors.ErrDeviceTimeout.Code, appErrors.ErrDeviceTimeout.Status, "read live event")
		}
		line = strings.TrimSpace(line)
		if line == "" || line == "PING" {
			continue
		}
		ev, ok := a.decode(line)
		if !ok {
			continue
		}
		select {
		case ch <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *nativeAdapter) decode(line string) (models.RawEvent, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) < 4 {
		a.logger.Sugar().Warnw("native record malformed", "device", a.cfg.Name, "line", line)
		return models.RawEvent{}, false
	}

	at, err := time.ParseInLocation("2006-01-02 15:04:05", fields[2], time.Local)
	if err != nil {
		a.logger.Sugar().Warnw("native record timestamp unparseable", "device", a.cfg.Name, "timestamp", fields[2])
		return models.RawEvent{}, false
	}
	status, ok := a.cfg.PunchMap.Resolve(fields[3])
	if !ok {
		a.logger.Sugar().Warnw("native record punch code unmapped", "device", a.cfg.Name, "code", fields[3])
		return models.RawEvent{}, false
	}

	ev := models.RawEvent{
		PIN:    fields[1],
		At:     at,
		Device: a.cfg.Name,
		Status: status,
	}
	if uid, err := strconv.Atoi(fields[0]); err == nil {
		ev.FPID = &uid
	}
	return ev, true
}
