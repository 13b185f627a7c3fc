package export

import (
	"context"
	"net"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Uploader ships an exported file somewhere.
type Uploader interface {
	Upload(ctx context.Context, localPath string) error
}

// FTPOptions configures FTPUploader.
type FTPOptions struct {
	Host     string
	User     string
	Password string
	Dir      string
	Timeout  time.Duration
}

// FTPUploader stores files on an FTP drop.
type FTPUploader struct {
	opts FTPOptions
}

// NewFTPUploader validates opts and returns an uploader.
func NewFTPUploader(opts FTPOptions) (*FTPUploader, error) {
	if opts.Host == "" {
		return nil, eris.New("ftp: host is required")
	}
	if _, _, err := net.SplitHostPort(opts.Host); err != nil {
		opts.Host = net.JoinHostPort(opts.Host, "21")
	}
	if opts.User == "" {
		opts.User = "anonymous"
		if opts.Password == "" {
			opts.Password = "anonymous@"
		}
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &FTPUploader{opts: opts}, nil
}

// Host returns the dial address.
func (u *FTPUploader) Host() string { return u.opts.Host }

// RemotePath is where localPath lands on the server.
func (u *FTPUploader) RemotePath(localPath string) string {
	name := filepath.Base(localPath)
	if u.opts.Dir == "" {
		return name
	}
	return path.Join(u.opts.Dir, name)
}

// Upload stores localPath under the configured directory.
func (u *FTPUploader) Upload(ctx context.Context, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return eris.Wrap(err, "ftp: open local file")
	}
	defer f.Close() //nolint:errcheck

	zap.L().Debug("ftp: connecting", zap.String("host", u.opts.Host))
	conn, err := ftp.Dial(u.opts.Host, ftp.DialWithTimeout(u.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return eris.Wrap(err, "ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(u.opts.User, u.opts.Password); err != nil {
		return eris.Wrap(err, "ftp login")
	}
	remote := u.RemotePath(localPath)
	if err := conn.Stor(remote, f); err != nil {
		return eris.Wrapf(err, "ftp store %s", remote)
	}
	zap.L().Info("ftp: uploaded export", zap.String("remote", remote))
	return nil
}
