// Package attachment normalizes the attachment payload shapes the daemon
// protocol has used over its generations into one canonical descriptor.
package attachment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupportedShape reports an attachment payload outside the known protocol
// variants. It indicates a daemon/protocol-version mismatch, not a malformed
// message: the caller aborts handling of the affected message.
var ErrUnsupportedShape = errors.New("unsupported attachment payload shape")

// DefaultContentType is used when sniffing yields nothing useful.
const DefaultContentType = "application/octet-stream"

type shape int

const (
	shapeBarePath shape = iota
	shapeLegacyTuple
	shapeRichRecord
)

// Descriptor is the canonical view over one attachment, whatever payload shape
// it arrived in. It references the daemon's already-downloaded file; it never
// owns or copies the bytes.
type Descriptor struct {
	shape       shape
	path        string
	contentType string
	size        int64
	sizeKnown   bool
	remoteName  string
}

// BarePath wraps a plain local path. Content type and size must be derived
// from the file itself.
func BarePath(path string) Descriptor {
	return Descriptor{shape: shapeBarePath, path: path}
}

// LegacyTuple wraps the (contentType, remoteName, localName, size) shape.
// localName is relative to the configured attachment directory.
func LegacyTuple(contentType, remoteName, localName string, size int64, attachmentDir string) Descriptor {
	return Descriptor{
		shape:       shapeLegacyTuple,
		path:        filepath.Join(attachmentDir, localName),
		contentType: contentType,
		size:        size,
		sizeKnown:   true,
		remoteName:  remoteName,
	}
}

// RichRecord wraps the mapping shape with explicit file/contentType/fileName/
// size keys.
func RichRecord(file, contentType, fileName string, size int64) Descriptor {
	return Descriptor{
		shape:       shapeRichRecord,
		path:        file,
		contentType: contentType,
		size:        size,
		sizeKnown:   true,
		remoteName:  fileName,
	}
}

// FromPayload builds a Descriptor from a raw daemon payload value. Recognized
// shapes: a bare path string, a 4-element tuple, or a string-keyed record.
// Anything else wraps ErrUnsupportedShape.
func FromPayload(v any, attachmentDir string) (Descriptor, error) {
	switch p := v.(type) {
	case string:
		return BarePath(p), nil
	case []any:
		return fromTuple(p, attachmentDir)
	case map[string]any:
		return fromRecord(p)
	default:
		return Descriptor{}, fmt.Errorf("%w: %T", ErrUnsupportedShape, v)
	}
}

func fromTuple(p []any, attachmentDir string) (Descriptor, error) {
	if len(p) != 4 {
		return Descriptor{}, fmt.Errorf("%w: tuple of %d elements", ErrUnsupportedShape, len(p))
	}
	contentType, ok1 := p[0].(string)
	remoteName, ok2 := p[1].(string)
	localName, ok3 := p[2].(string)
	size, ok4 := asInt64(p[3])
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Descriptor{}, fmt.Errorf("%w: tuple element types %T/%T/%T/%T", ErrUnsupportedShape, p[0], p[1], p[2], p[3])
	}
	return LegacyTuple(contentType, remoteName, localName, size, attachmentDir), nil
}

func fromRecord(p map[string]any) (Descriptor, error) {
	file, ok := p["file"].(string)
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: record without file key", ErrUnsupportedShape)
	}
	contentType, _ := p["contentType"].(string)
	fileName, _ := p["fileName"].(string)
	size, ok := asInt64(p["size"])
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: record size of type %T", ErrUnsupportedShape, p["size"])
	}
	return RichRecord(file, contentType, fileName, size), nil
}

// asInt64 tolerates the integer widths the bus codec may produce.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// Path returns the local filesystem path of the downloaded bytes.
func (d Descriptor) Path() string { return d.path }

// RemoteName returns the sender-supplied display name, or "" for shapes that
// never carried one.
func (d Descriptor) RemoteName() string { return d.remoteName }

// DeclaredContentType returns the MIME type embedded in the payload, or "".
func (d Descriptor) DeclaredContentType() string { return d.contentType }

// ContentType returns the declared MIME type, sniffing the file's leading
// bytes when the payload carried none. Sniffing never fails open: an
// unreadable file yields DefaultContentType plus the error.
func (d Descriptor) ContentType() (string, error) {
	if d.contentType != "" {
		return d.contentType, nil
	}
	mt, err := mimetype.DetectFile(d.path)
	if err != nil {
		return DefaultContentType, fmt.Errorf("sniff content type of %s: %w", d.path, err)
	}
	return mt.String(), nil
}

// Size returns the declared size, or the file's size on disk for shapes that
// declared none.
func (d Descriptor) Size() (int64, error) {
	if d.sizeKnown {
		return d.size, nil
	}
	info, err := os.Stat(d.path)
	if err != nil {
		return 0, fmt.Errorf("measure attachment %s: %w", d.path, err)
	}
	return info.Size(), nil
}
