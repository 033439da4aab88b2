package mapxfer

import (
	"bufio"
	"compress/zlib"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// TagSize is the length of the format tag opening every snapshot.
const TagSize = 4

// ErrUnknownFormat reports a snapshot tag with no decoder.
var ErrUnknownFormat = errors.New("mapxfer: unknown snapshot format")

// Format is one snapshot encoding.
type Format struct {
	// Name is advertised to the server in Identify.
	Name string
	// Tag opens the snapshot stream.
	Tag [TagSize]byte
	// Open wraps the remaining bytes.
	Open func(io.Reader) (io.Reader, error)
	// Wrap compresses a stream in this format.
	Wrap func(io.Writer) io.WriteCloser
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

var formats = []Format{
	{
		Name: "lz4",
		Tag:  [TagSize]byte{'L', 'Z', '4', 'F'},
		Open: func(r io.Reader) (io.Reader, error) { return lz4.NewReader(r), nil },
		Wrap: func(w io.Writer) io.WriteCloser { return lz4.NewWriter(w) },
	},
	{
		Name: "zlib",
		Tag:  [TagSize]byte{'Z', 'L', 'I', 'B'},
		Open: func(r io.Reader) (io.Reader, error) { return zlib.NewReader(r) },
		Wrap: func(w io.Writer) io.WriteCloser { return zlib.NewWriter(w) },
	},
	{
		Name: "none",
		Tag:  [TagSize]byte{'R', 'A', 'W', ' '},
		Open: func(r io.Reader) (io.Reader, error) { return r, nil },
		Wrap: func(w io.Writer) io.WriteCloser { return nopWriteCloser{w} },
	},
}

// SupportedFormats lists format names in order of preference.
func SupportedFormats() []string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = f.Name
	}
	return names
}

// Lookup finds a format by name.
func Lookup(name string) (Format, bool) {
	for _, f := range formats {
		if f.Name == name {
			return f, true
		}
	}
	return Format{}, false
}

// Open reads the format tag from r and returns the decompressed stream.
func Open(r io.Reader) (io.Reader, error) {
	var tag [TagSize]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, fmt.Errorf("read snapshot tag: %w", err)
	}
	for _, f := range formats {
		if f.Tag == tag {
			out, err := f.Open(r)
			if err != nil {
				return nil, fmt.Errorf("open %s snapshot: %w", f.Name, err)
			}
			return bufio.NewReader(out), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, tag[:])
}

// Encode writes a tagged snapshot in the named format, reading the body
// from write. It is the inverse of Open and is used for emergency saves.
func Encode(w io.Writer, name string, write func(io.Writer) error) error {
	f, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
	if _, err := w.Write(f.Tag[:]); err != nil {
		return err
	}
	body := f.Wrap(w)
	if err := write(body); err != nil {
		body.Close()
		return err
	}
	return body.Close()
}
