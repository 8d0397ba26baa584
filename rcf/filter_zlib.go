package rcf

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
)

// DeflateFilter is RCF's compression filter (spec.md section 4.C-iii),
// backed by github.com/klauspost/compress/flate, the compression library the
// retrieval pack reaches for (DESIGN.md Filter chain).
type DeflateFilter struct {
	pool  *BufferPool
	level int
}

// NewDeflateFilter creates a DeflateFilter at the given flate compression
// level, allocating output buffers from pool.
func NewDeflateFilter(pool *BufferPool, level int) *DeflateFilter {
	return &DeflateFilter{pool: pool, level: level}
}

func (f *DeflateFilter) ID() FilterID { return FilterIDCompressionZlib }

func (f *DeflateFilter) Encode(buf *ByteBuffer) (*ByteBuffer, error) {
	var out bytes.Buffer
	w, err := flate.NewWriter(&out, f.level)
	if err != nil {
		return buf, err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return buf, err
	}
	if err := w.Close(); err != nil {
		return buf, err
	}
	result := f.pool.Acquire(out.Len())
	copy(result.Bytes(), out.Bytes())
	return result, nil
}

func (f *DeflateFilter) Decode(buf *ByteBuffer) (*ByteBuffer, error) {
	r := flate.NewReader(bytes.NewReader(buf.Bytes()))
	defer r.Close()
	decoded, err := io.ReadAll(r)
	if err != nil {
		return buf, err
	}
	result := f.pool.Acquire(len(decoded))
	copy(result.Bytes(), decoded)
	return result, nil
}
