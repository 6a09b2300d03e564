package ondevice

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"
)

const partSuffix = ".part"

// Download fetches the model into Dir unless it is already there. Bytes are
// written to a .part file first; a later call resumes it with an HTTP Range
// request. progress receives fractions in [0,1] when the size is known.
func (s *Service) Download(ctx context.Context, progress func(float64)) (string, error) {
	if progress == nil {
		progress = func(float64) {}
	}
	dest := s.cfg.ModelPath()
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		progress(1)
		return dest, nil
	}

	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create model dir: %v", ErrModelDownloadFailed, err)
	}
	part := dest + partSuffix

	var offset int64
	if info, err := os.Stat(part); err == nil {
		offset = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelDownloadFailed, err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelDownloadFailed, err)
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		flags |= os.O_APPEND
		s.logger.Info("resuming model download", zap.Int64("offset", offset))
	case resp.StatusCode == http.StatusOK:
		// The server ignored or was not sent a range.
		flags |= os.O_TRUNC
		offset = 0
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		// The part file already holds the whole body.
		return s.finish(part, dest, progress)
	default:
		return "", fmt.Errorf("%w: unexpected status %s", ErrModelDownloadFailed, resp.Status)
	}

	f, err := os.OpenFile(part, flags, 0o644)
	if err != nil {
		return "", fmt.Errorf("%w: open part file: %v", ErrModelDownloadFailed, err)
	}

	total := int64(-1)
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}
	w := &progressWriter{w: f, written: offset, total: total, report: progress}
	if _, err := io.Copy(w, resp.Body); err != nil {
		f.Close()
		return "", fmt.Errorf("%w: %v", ErrModelDownloadFailed, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: close part file: %v", ErrModelDownloadFailed, err)
	}
	if total >= 0 && w.written != total {
		return "", fmt.Errorf("%w: short body: got %d of %d bytes", ErrModelDownloadFailed, w.written, total)
	}
	return s.finish(part, dest, progress)
}

func (s *Service) finish(part, dest string, progress func(float64)) (string, error) {
	info, err := os.Stat(part)
	if err != nil || info.Size() == 0 {
		return "", fmt.Errorf("%w: empty download", ErrModelDownloadFailed)
	}
	if err := os.Rename(part, dest); err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelDownloadFailed, err)
	}
	progress(1)
	s.logger.Info("model downloaded", zap.String("path", dest), zap.Int64("bytes", info.Size()))
	return dest, nil
}

type progressWriter struct {
	w       io.Writer
	written int64
	total   int64
	report  func(float64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if p.total > 0 {
		p.report(float64(p.written) / float64(p.total))
	}
	return n, err
}

var _ io.Writer = (*progressWriter)(nil)
