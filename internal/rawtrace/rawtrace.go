package rawtrace

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gsoxley/OpenMDAO/internal/timeutil"
)

// A raw trace is a line oriented text file, one record per line:
// the call path, the number of calls recorded under it and the
// accumulated inclusive time in seconds.
//
//	$total@solver#12#0#solve 3 0.004512
//
// Records are kept in file order since merging assigns instance
// ordinals by first appearance.
type (
	Record struct {
		Path  string
		Count int64
		Time  float64
	}

	Trace struct {
		Records []Record
	}
)

var ErrMalformed = errors.New("rawtrace: malformed record")

// Reader streams records off a raw trace without holding the whole
// file, for replaying traces record by record.
type Reader struct {
	scanner *bufio.Scanner
	record  Record
	lineno  int
	err     error
}

func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{scanner: scanner}
}

// Next advances to the next record. It returns false at the end of the
// input or on the first error, which Err then reports.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			r.err = fmt.Errorf("rawtrace: read: %w", err)
		}
		return false
	}
	r.lineno++
	line := r.scanner.Text()
	if line == "" {
		r.err = fmt.Errorf("%w: line %d: empty record", ErrMalformed, r.lineno)
		return false
	}
	// Cut the two numeric fields off the right so a path containing
	// spaces still parses.
	timeIdx := strings.LastIndexByte(line, ' ')
	if timeIdx == -1 {
		r.err = fmt.Errorf("%w: line %d: missing fields", ErrMalformed, r.lineno)
		return false
	}
	countIdx := strings.LastIndexByte(line[:timeIdx], ' ')
	if countIdx == -1 {
		r.err = fmt.Errorf("%w: line %d: missing fields", ErrMalformed, r.lineno)
		return false
	}
	count, err := strconv.ParseInt(line[countIdx+1:timeIdx], 10, 64)
	if err != nil {
		r.err = fmt.Errorf("%w: line %d: %v", ErrMalformed, r.lineno, err)
		return false
	}
	secs, err := timeutil.ParseSeconds(line[timeIdx+1:])
	if err != nil {
		r.err = fmt.Errorf("%w: line %d: %v", ErrMalformed, r.lineno, err)
		return false
	}
	r.record = Record{
		Path:  line[:countIdx],
		Count: count,
		Time:  secs,
	}
	return true
}

func (r *Reader) Record() Record {
	return r.record
}

func (r *Reader) Err() error {
	return r.err
}

func Decode(r io.Reader) (*Trace, error) {
	res := &Trace{
		Records: make([]Record, 0),
	}
	reader := NewReader(r)
	for reader.Next() {
		res.Records = append(res.Records, reader.Record())
	}
	if err := reader.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func Encode(trace *Trace, w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, record := range trace.Records {
		_, err := fmt.Fprintf(bw, "%s %d %s\n", record.Path, record.Count, timeutil.FormatSeconds(record.Time))
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}

func Unmarshal(buf []byte) (*Trace, error) {
	return Decode(bytes.NewBuffer(buf))
}

func Marshal(trace *Trace) ([]byte, error) {
	buf := new(bytes.Buffer)
	err := Encode(trace, buf)
	return buf.Bytes(), err
}

// FileName builds the per process trace file name, the output prefix
// with the process rank as extension.
func FileName(prefix string, rank int) string {
	return fmt.Sprintf("%s.%d", prefix, rank)
}

// RankSuffix extracts the rank decoration from a trace file name. The
// suffix keeps its leading dot so it can be appended to path segments
// as is. It returns false when the extension is not an integer rank.
func RankSuffix(name string) (string, bool) {
	ext := filepath.Ext(name)
	if len(ext) < 2 || ext == name {
		return "", false
	}
	if _, err := strconv.Atoi(ext[1:]); err != nil {
		return "", false
	}
	return ext, true
}

// Source is one raw trace input of a merge. Implementations name
// themselves after the file they wrap since the name carries the rank
// used to decorate call paths.
type Source interface {
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

type fileSource struct {
	path string
}

func File(path string) Source {
	return fileSource{path: path}
}

func (s fileSource) Name() string {
	return filepath.Base(s.path)
}

func (s fileSource) Open(_ context.Context) (io.ReadCloser, error) {
	return os.Open(s.path)
}

type bytesSource struct {
	name string
	data []byte
}

func Bytes(name string, data []byte) Source {
	return bytesSource{name: name, data: data}
}

func (s bytesSource) Name() string {
	return s.name
}

func (s bytesSource) Open(_ context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

// Opener adapts a deferred reader, typically an object storage
// download, into a Source.
func Opener(name string, open func(context.Context) (io.ReadCloser, error)) Source {
	return openerSource{name: name, open: open}
}

type openerSource struct {
	name string
	open func(context.Context) (io.ReadCloser, error)
}

func (s openerSource) Name() string {
	return s.name
}

func (s openerSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return s.open(ctx)
}
