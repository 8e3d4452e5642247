package thumbnails

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/hondanahq/hondana/pkg/config"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	maxThumbnailWidth = 600
	maxDownloadBytes  = 20 << 20
	downloadTimeout   = 30 * time.Second
	thumbnailJPEGQual = 85
)

// ErrDisallowedURL marks a remote thumbnail URL that failed validation:
// wrong scheme, unresolvable host, or a host that resolves to a loopback,
// private, or link-local address. Provider responses are untrusted input, so
// a URL pointing back into the deployment's own network is never fetched.
var ErrDisallowedURL = errors.New("thumbnail URL is not allowed")

// Service stores and regenerates book cover thumbnails on disk.
type Service struct {
	directory string
	client    *http.Client
	lookupIP  func(ctx context.Context, host string) ([]net.IP, error)
}

// New returns a thumbnail service writing into the configured directory.
func New(cfg *config.Config) *Service {
	return &Service{
		directory: cfg.ThumbnailDirectory,
		client:    &http.Client{Timeout: downloadTimeout},
		lookupIP: func(ctx context.Context, host string) ([]net.IP, error) {
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, 0, len(addrs))
			for _, addr := range addrs {
				ips = append(ips, addr.IP)
			}
			return ips, nil
		},
	}
}

// ValidateRemoteURL rejects URLs that must never be fetched: non-HTTP
// schemes and hosts that resolve to loopback, private, link-local, or
// unspecified addresses.
func (svc *Service) ValidateRemoteURL(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.WithStack(ErrDisallowedURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.WithStack(ErrDisallowedURL)
	}
	host := u.Hostname()
	if host == "" {
		return errors.WithStack(ErrDisallowedURL)
	}

	ips, err := svc.lookupIP(ctx, host)
	if err != nil || len(ips) == 0 {
		return errors.WithStack(ErrDisallowedURL)
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return errors.WithStack(ErrDisallowedURL)
		}
	}

	return nil
}

// CreateFromURL validates, downloads, and stores a remote cover image for a
// book. Returns the path of the written thumbnail.
func (svc *Service) CreateFromURL(ctx context.Context, bookID int, rawURL string) (string, error) {
	if err := svc.ValidateRemoteURL(ctx, rawURL); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to create thumbnail request")
	}

	resp, err := svc.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to download thumbnail")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("failed to download thumbnail: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return "", errors.Wrap(err, "failed to read thumbnail body")
	}

	return svc.CreateFromBytes(bookID, data)
}

// CreateFromUpload stores a user-provided cover image for a book.
func (svc *Service) CreateFromUpload(bookID int, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxDownloadBytes))
	if err != nil {
		return "", errors.Wrap(err, "failed to read uploaded cover")
	}
	return svc.CreateFromBytes(bookID, data)
}

// CreateFromBytes verifies the payload is an image, downscales it when it is
// wider than the thumbnail limit, and writes it as a JPEG.
func (svc *Service) CreateFromBytes(bookID int, data []byte) (string, error) {
	mtype := mimetype.Detect(data)
	if !isImageMIME(mtype) {
		return "", errors.Errorf("unsupported cover content type %s", mtype.String())
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, "failed to decode cover image")
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxThumbnailWidth {
		height := bounds.Dy() * maxThumbnailWidth / bounds.Dx()
		resized := image.NewRGBA(image.Rect(0, 0, maxThumbnailWidth, height))
		draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		img = resized
	}

	if err := os.MkdirAll(svc.directory, 0o755); err != nil {
		return "", errors.WithStack(err)
	}

	path := svc.Path(bookID)
	f, err := os.Create(path)
	if err != nil {
		return "", errors.WithStack(err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: thumbnailJPEGQual}); err != nil {
		os.Remove(path)
		return "", errors.Wrap(err, "failed to encode thumbnail")
	}

	return path, nil
}

// Path returns where a book's thumbnail lives on disk.
func (svc *Service) Path(bookID int) string {
	return filepath.Join(svc.directory, fmt.Sprintf("book-%d.jpg", bookID))
}

// Remove deletes a book's thumbnail if it exists.
func (svc *Service) Remove(bookID int) error {
	err := os.Remove(svc.Path(bookID))
	if err != nil && !os.IsNotExist(err) {
		return errors.WithStack(err)
	}
	return nil
}

func isImageMIME(mtype *mimetype.MIME) bool {
	for _, allowed := range []string{"image/jpeg", "image/png", "image/gif", "image/webp"} {
		if mtype.Is(allowed) {
			return true
		}
	}
	return false
}
