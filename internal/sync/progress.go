package sync

import (
	"context"
	"io"
	"time"
)

const copyBufferSize = 32 * 1024

// Progress is handed to a transfer. OnProgress runs synchronously after every
// chunk with the bytes copied so far and the expected total.
type Progress struct {
	OnProgress func(done, total int64)
}

func (p Progress) report(done, total int64) {
	if p.OnProgress != nil {
		p.OnProgress(done, total)
	}
}

// Rate returns bytes per second for done bytes over elapsed.
func Rate(done int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(done) / elapsed.Seconds()
}

// copyWithProgress copies src to dst chunk by chunk, checking ctx between
// chunks so an interrupt stops a large transfer promptly.
func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, total int64, p Progress) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var done int64
	p.report(0, total)

	for {
		if err := ctx.Err(); err != nil {
			return done, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			written, err := dst.Write(buf[:n])
			done += int64(written)
			if err != nil {
				return done, err
			}
			if written != n {
				return done, io.ErrShortWrite
			}
			p.report(done, total)
		}
		if readErr == io.EOF {
			return done, nil
		}
		if readErr != nil {
			return done, readErr
		}
	}
}
