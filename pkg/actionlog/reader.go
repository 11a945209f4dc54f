// Package actionlog reads simulator action log exports and turns each
// record into a classified Row.
package actionlog

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	sperrors "github.com/otherjamesbrown/simplot/pkg/errors"
	"github.com/otherjamesbrown/simplot/pkg/logging"
)

// Encoding selects how input bytes are decoded.
type Encoding string

const (
	// EncodingAuto decodes as UTF-8 when the start of the input is valid
	// UTF-8 and as Windows-1252 otherwise.
	EncodingAuto        Encoding = "auto"
	EncodingUTF8        Encoding = "utf-8"
	EncodingWindows1252 Encoding = "windows-1252"
)

// sniffSize is how much input auto detection looks at.
const sniffSize = 4096

// ParseEncoding validates an encoding name.
func ParseEncoding(s string) (Encoding, error) {
	switch e := Encoding(strings.ToLower(strings.TrimSpace(s))); e {
	case "", EncodingAuto:
		return EncodingAuto, nil
	case EncodingUTF8, "utf8":
		return EncodingUTF8, nil
	case EncodingWindows1252, "cp1252":
		return EncodingWindows1252, nil
	default:
		return "", fmt.Errorf("%w: unknown encoding %q (want auto, utf-8 or windows-1252)", sperrors.ErrValidation, s)
	}
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithEncoding sets the input encoding. The default is EncodingAuto.
func WithEncoding(e Encoding) ReaderOption {
	return func(r *Reader) {
		r.encoding = e
	}
}

// WithLogger sets the logger used for header diagnostics.
func WithLogger(l logging.Logger) ReaderOption {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

// Reader yields Rows from an action log. The header is read and validated
// on the first call to Next.
type Reader struct {
	src      io.Reader
	encoding Encoding
	logger   logging.Logger

	csv       *csv.Reader
	index     headerIndex
	header    []string
	headerErr error
	started   bool
	done      bool
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	rd := &Reader{
		src:      r,
		encoding: EncodingAuto,
		logger:   logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

// Header returns the header row, or nil before the first Next.
func (r *Reader) Header() []string {
	return r.header
}

// HeaderErr returns the header validation error, if any.
func (r *Reader) HeaderErr() error {
	return r.headerErr
}

// Next returns the next row. Errors wrapping a ProcessingError with a
// row-scoped code only affect that record and reading may continue.
// Any other error is returned once, after which Next returns io.EOF.
func (r *Reader) Next() (*Row, error) {
	if r.done {
		return nil, io.EOF
	}
	if !r.started {
		r.started = true
		if err := r.start(); err != nil {
			r.done = true
			return nil, err
		}
		if r.done {
			return nil, io.EOF
		}
	}

	record, err := r.csv.Read()
	if err == io.EOF {
		r.done = true
		return nil, io.EOF
	}
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, rowError(parseErr.StartLine, err)
		}
		r.done = true
		return nil, sperrors.NewProcessingError(sperrors.ErrIO, "read", 0, err)
	}

	line, _ := r.csv.FieldPos(0)
	row, err := rowFromRecord(r.index, record, line)
	if err != nil {
		return nil, rowError(line, err)
	}
	return row, nil
}

func (r *Reader) start() error {
	decoded, err := r.decoder()
	if err != nil {
		return err
	}

	r.csv = csv.NewReader(decoded)
	r.csv.FieldsPerRecord = -1
	r.csv.LazyQuotes = true

	header, err := r.csv.Read()
	switch {
	case err == io.EOF:
		r.done = true
		header = []string{}
	case err != nil:
		var parseErr *csv.ParseError
		if !errors.As(err, &parseErr) {
			return sperrors.NewProcessingError(sperrors.ErrIO, "read", 0, err)
		}
		header = []string{}
	}

	r.header = header
	r.index = newHeaderIndex(header)
	if r.headerErr = ValidateHeader(header); r.headerErr != nil {
		r.logger.Warn("Invalid header row, reading rows by column name", logging.Err(r.headerErr))
	}
	return nil
}

func (r *Reader) decoder() (io.Reader, error) {
	utf8Reader := func(src io.Reader) io.Reader {
		return transform.NewReader(src, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	}

	switch r.encoding {
	case EncodingUTF8:
		return utf8Reader(r.src), nil
	case EncodingWindows1252:
		return charmap.Windows1252.NewDecoder().Reader(r.src), nil
	case EncodingAuto, "":
	default:
		return nil, sperrors.NewProcessingError(sperrors.ErrEncoding, "decode", 0,
			fmt.Errorf("unsupported encoding %q", r.encoding))
	}

	buffered := bufio.NewReaderSize(r.src, sniffSize)
	peek, err := buffered.Peek(sniffSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, sperrors.NewProcessingError(sperrors.ErrIO, "read", 0, err)
	}
	if looksUTF8(peek, len(peek) == sniffSize) {
		return utf8Reader(buffered), nil
	}
	r.logger.Debug("Input is not valid UTF-8, decoding as Windows-1252")
	return charmap.Windows1252.NewDecoder().Reader(buffered), nil
}

// looksUTF8 reports whether b is valid UTF-8. When b was cut from a longer
// stream a trailing partial rune is ignored.
func looksUTF8(b []byte, truncated bool) bool {
	if truncated {
		for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
			if utf8.RuneStart(b[i]) {
				if !utf8.FullRune(b[i:]) {
					b = b[:i]
				}
				break
			}
		}
	}
	return utf8.Valid(b)
}

func rowError(line int, err error) error {
	return &sperrors.ProcessingError{
		Code:    sperrors.ErrRowParse,
		Stage:   "deserialize",
		Line:    line,
		Message: "Could not deserialize row: " + err.Error(),
		Cause:   err,
	}
}

// ReadAll returns every row of r. Row-scoped errors are collected and
// reading continues; the first fatal error stops reading.
func ReadAll(src io.Reader, opts ...ReaderOption) ([]*Row, []error, error) {
	rd := NewReader(src, opts...)
	var rows []*Row
	var rowErrs []error
	for {
		row, err := rd.Next()
		if err == io.EOF {
			return rows, rowErrs, nil
		}
		if err != nil {
			if sperrors.IsRowScoped(err) {
				rowErrs = append(rowErrs, err)
				continue
			}
			return rows, rowErrs, err
		}
		rows = append(rows, row)
	}
}
