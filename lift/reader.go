package lift

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Format identifies a descriptor encoding.
type Format int

const (
	JSON Format = iota
	Msgpack
)

// FormatOf maps a file name to its descriptor encoding. Anything that is
// not a msgpack extension reads as JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mp", ".bin":
		return Msgpack
	}
	return JSON
}

// FromFiles reads every named descriptor file in order. A file may hold a
// single function or a batch; the result is the flattened function list.
func FromFiles(paths ...string) ([]*Descriptor, error) {
	var ds []*Descriptor
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "cannot open descriptor file")
		}
		got, err := FromReader(f, FormatOf(path))
		f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "descriptor file %s", path)
		}
		ds = append(ds, got...)
	}
	return ds, nil
}

// FromReader decodes descriptors from r. Both encodings accept either one
// descriptor object or a list of them.
func FromReader(r io.Reader, f Format) ([]*Descriptor, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read descriptor input")
	}
	if f == Msgpack {
		return decodeMsgpack(raw)
	}
	return decodeJSON(raw)
}

func decodeJSON(raw []byte) ([]*Descriptor, error) {
	trimmed := strings.TrimLeft(string(raw), " \t\r\n")
	if strings.HasPrefix(trimmed, "[") {
		var ds []*Descriptor
		if err := json.Unmarshal(raw, &ds); err != nil {
			return nil, errors.Wrap(err, "cannot parse descriptor list")
		}
		return ds, nil
	}
	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, errors.Wrap(err, "cannot parse descriptor")
	}
	return []*Descriptor{&d}, nil
}

func decodeMsgpack(raw []byte) ([]*Descriptor, error) {
	var ds []*Descriptor
	if err := msgpack.Unmarshal(raw, &ds); err == nil {
		return ds, nil
	}
	var d Descriptor
	if err := msgpack.Unmarshal(raw, &d); err != nil {
		return nil, errors.Wrap(err, "cannot parse msgpack descriptor")
	}
	return []*Descriptor{&d}, nil
}

// Marshal encodes descriptors in the given format, the inverse of
// FromReader. Single-element lists encode as one object.
func Marshal(ds []*Descriptor, f Format) ([]byte, error) {
	var v interface{} = ds
	if len(ds) == 1 {
		v = ds[0]
	}
	if f == Msgpack {
		raw, err := msgpack.Marshal(v)
		return raw, errors.Wrap(err, "cannot encode msgpack descriptor")
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	return raw, errors.Wrap(err, "cannot encode descriptor")
}
