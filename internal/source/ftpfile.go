package source

import (
	"context"
	"errors"
	"io"
	"net"
	"net/textproto"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/painel-gv/indicadores/internal/resilience"
)

// FTPSource is the provenance tag for records pulled from the labor ministry
// FTP server (CAGED/RAIS extracts).
const FTPSource = "FTP_MTE"

// FTPOptions configures the FTP adapter.
type FTPOptions struct {
	Host     string // host or host:port; port 21 assumed
	User     string // empty = anonymous
	Password string
	Timeout  time.Duration
}

// FTPAdapter downloads delimited extracts over FTP and parses them like
// local CSV drops.
type FTPAdapter struct {
	opts FTPOptions
}

// NewFTPAdapter creates an FTP adapter for the given server.
func NewFTPAdapter(opts FTPOptions) *FTPAdapter {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
		opts.Password = "anonymous"
	}
	return &FTPAdapter{opts: opts}
}

func (a *FTPAdapter) Name() string { return FTPSource }

// Fetch retrieves the chain entry's remote path. A 550 (file not found) is an
// unavailable outcome; connection and timeout failures are transient.
func (a *FTPAdapter) Fetch(ctx context.Context, req Request) (*Payload, error) {
	if req.Entry.Path == "" {
		return nil, resilience.NewPermanentError(
			eris.Errorf("ftp: %s: chain entry missing path", req.IndicatorKey), "bad chain entry")
	}

	host := a.opts.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(a.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "ftp: dial %s", host), 0)
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(a.opts.User, a.opts.Password); err != nil {
		return nil, classifyFTPError(err, "login")
	}

	resp, err := conn.Retr(req.Entry.Path)
	if err != nil {
		return nil, classifyFTPError(err, req.Entry.Path)
	}
	data, err := io.ReadAll(resp)
	closeErr := resp.Close()
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "ftp: read %s", req.Entry.Path), 0)
	}
	if closeErr != nil {
		zap.L().Warn("ftp: close response", zap.Error(closeErr))
	}

	table, err := parseDelimited(data)
	if err != nil {
		return nil, err
	}

	rows, err := rowsFromTable(table)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("ftp: fetched file",
		zap.String("indicator", req.IndicatorKey),
		zap.String("path", req.Entry.Path),
		zap.Int("rows", len(rows)),
	)

	return &Payload{Source: FTPSource, Rows: rows}, nil
}

// classifyFTPError maps FTP reply codes onto the outcome taxonomy: 550 means
// the file does not exist (unavailable); 4xx replies are transient per the
// protocol; anything else is permanent.
func classifyFTPError(err error, what string) error {
	var proto *textproto.Error
	if errors.As(err, &proto) {
		switch {
		case proto.Code == ftp.StatusFileUnavailable:
			return resilience.ErrUnavailable
		case proto.Code >= 400 && proto.Code < 500:
			return resilience.NewTransientError(eris.Wrapf(err, "ftp: %s", what), 0)
		default:
			return resilience.NewPermanentError(eris.Wrapf(err, "ftp: %s", what), "server error")
		}
	}
	return resilience.NewTransientError(eris.Wrapf(err, "ftp: %s", what), 0)
}
