package shell

import (
	"bytes"
	"io"
	"sync"
)

// PrefixWriter writes complete lines to an underlying writer with a prefix,
// holding a shared lock per line so concurrent hosts never interleave
// within a line.
type PrefixWriter struct {
	mu     *sync.Mutex
	w      io.Writer
	prefix []byte
	buf    []byte
}

// NewPrefixWriter creates a writer that prefixes every line. Writers that
// share mu may be used from different goroutines.
func NewPrefixWriter(w io.Writer, mu *sync.Mutex, prefix string) *PrefixWriter {
	return &PrefixWriter{mu: mu, w: w, prefix: []byte(prefix)}
}

func (p *PrefixWriter) Write(data []byte) (int, error) {
	p.buf = append(p.buf, data...)
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		if err := p.emit(p.buf[:i+1]); err != nil {
			return len(data), err
		}
		p.buf = p.buf[i+1:]
	}
	return len(data), nil
}

// Flush writes a trailing partial line, terminated with a newline.
func (p *PrefixWriter) Flush() error {
	if len(p.buf) == 0 {
		return nil
	}
	line := append(p.buf, '\n')
	p.buf = nil
	return p.emit(line)
}

func (p *PrefixWriter) emit(line []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.w.Write(p.prefix); err != nil {
		return err
	}
	_, err := p.w.Write(line)
	return err
}
