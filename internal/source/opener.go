package source

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Opener checks and opens source locations. S3 is only required when an
// S3 location is used.
type Opener struct {
	S3 S3API
}

// Stat returns the stored size of the source in bytes. A missing source
// yields an error wrapping ErrNotFound.
func (o *Opener) Stat(ctx context.Context, loc Location) (int64, error) {
	if loc.IsS3() {
		if o.S3 == nil {
			return 0, fmt.Errorf("no s3 client configured for %s", loc)
		}
		out, err := o.S3.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(loc.Bucket),
			Key:    aws.String(loc.Key),
		})
		if err != nil {
			if isS3NotFound(err) {
				return 0, fmt.Errorf("%w: %s", ErrNotFound, loc)
			}
			return 0, fmt.Errorf("failed to stat %s: %w", loc, err)
		}
		return aws.ToInt64(out.ContentLength), nil
	}

	info, err := os.Stat(loc.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, loc)
		}
		return 0, fmt.Errorf("failed to stat %s: %w", loc, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("source %s is a directory", loc)
	}
	return info.Size(), nil
}

// Open returns the decompressed content of the source. Gzip input is
// detected from its magic bytes, not the file name.
func (o *Opener) Open(ctx context.Context, loc Location) (*Stream, error) {
	var raw io.ReadCloser
	if loc.IsS3() {
		if o.S3 == nil {
			return nil, fmt.Errorf("no s3 client configured for %s", loc)
		}
		out, err := o.S3.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(loc.Bucket),
			Key:    aws.String(loc.Key),
		})
		if err != nil {
			if isS3NotFound(err) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
			}
			return nil, fmt.Errorf("failed to get %s: %w", loc, err)
		}
		raw = out.Body
	} else {
		f, err := os.Open(loc.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
			}
			return nil, fmt.Errorf("failed to open %s: %w", loc, err)
		}
		raw = f
	}

	counter := &countingReader{r: raw}
	br := bufio.NewReaderSize(counter, 1<<20)
	stream := &Stream{Reader: br, stored: counter, buffered: br, closers: []io.Closer{raw}}

	// Detect gzip by magic bytes
	magic, _ := br.Peek(2)
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			_ = raw.Close()
			return nil, fmt.Errorf("failed to open gzip stream %s: %w", loc, err)
		}
		stream.Reader = gz
		stream.Compressed = true
		stream.closers = []io.Closer{gz, raw}
	}
	return stream, nil
}

// Stream is the decompressed content of an opened source
type Stream struct {
	io.Reader
	// Compressed is set for gzip input
	Compressed bool

	stored   *countingReader
	buffered *bufio.Reader
	closers  []io.Closer
}

// StoredOffset returns how many stored bytes, compressed or not, have
// been consumed so far. Bytes read ahead into the buffer do not count.
func (s *Stream) StoredOffset() int64 {
	return s.stored.n - int64(s.buffered.Buffered())
}

// Close closes the decompressor and the underlying source
func (s *Stream) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
