package mcs

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"
)

// maxRecordFrame guards against reading a corrupted length field as a
// multi-gigabyte allocation. Matches the wire codec's 4 MiB frame cap.
const maxRecordFrame = 4 << 20

// Record is one captured frame as stored in a trace.
type Record struct {
	FromClient bool
	At         time.Time
	Frame      []byte
}

// Reader iterates over the records of a .mcs trace file.
type Reader struct {
	f  *os.File
	br *bufio.Reader
}

// Open opens a trace for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	return &Reader{f: f, br: bufio.NewReader(f)}, nil
}

// Next returns the next record. It returns io.EOF at a clean end of file
// and io.ErrUnexpectedEOF when the trace ends mid-record.
func (r *Reader) Next() (Record, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r.br, hdr[:]); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("read record header: %w", err)
	}
	dir := binary.BigEndian.Uint32(hdr[0:4])
	sec := binary.BigEndian.Uint32(hdr[4:8])
	usec := binary.BigEndian.Uint32(hdr[8:12])
	flen := binary.BigEndian.Uint32(hdr[12:16])
	if flen > maxRecordFrame {
		return Record{}, fmt.Errorf("record frame length %d exceeds %d", flen, maxRecordFrame)
	}
	frame := make([]byte, flen)
	if _, err := io.ReadFull(r.br, frame); err != nil {
		return Record{}, fmt.Errorf("read record frame: %w", err)
	}
	return Record{
		FromClient: dir != 0,
		At:         time.Unix(int64(sec), int64(usec)*1000),
		Frame:      frame,
	}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error { return r.f.Close() }
