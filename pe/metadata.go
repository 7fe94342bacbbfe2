package pe

import (
	"fmt"

	"github.com/skdltmxn/clrmeta-go/internal/stream"
)

// MetadataSignature is the magic at the start of the metadata root ("BSJB").
const MetadataSignature = 0x424A5342

// Well-known stream names.
const (
	StreamTables             = "#~"
	StreamTablesUncompressed = "#-"
	StreamStrings            = "#Strings"
	StreamUserStrings        = "#US"
	StreamBlob               = "#Blob"
	StreamGUID               = "#GUID"
)

// StreamHeader locates one metadata stream relative to the metadata root.
type StreamHeader struct {
	Offset uint32
	Size   uint32
	Name   string
}

// MetadataRoot is the parsed metadata root and its stream directory.
type MetadataRoot struct {
	MajorVersion uint16
	MinorVersion uint16
	Version      string
	Flags        uint16
	Streams      []StreamHeader

	data []byte
}

// ParseMetadataRoot parses the metadata root at the start of data. data must
// cover the whole metadata directory.
func ParseMetadataRoot(data []byte) (*MetadataRoot, error) {
	r := stream.NewReader(data)

	sig, err := r.ReadU32()
	if err != nil || sig != MetadataSignature {
		return nil, fmt.Errorf("%w: bad signature", ErrInvalidMetadata)
	}

	root := &MetadataRoot{data: data}
	if root.MajorVersion, err = r.ReadU16(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	if root.MinorVersion, err = r.ReadU16(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	if err := r.Skip(4); err != nil { // reserved
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	length, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	version, err := r.ReadBytesRef(int(length))
	if err != nil {
		return nil, fmt.Errorf("%w: version string", ErrInvalidMetadata)
	}
	for i, b := range version {
		if b == 0 {
			version = version[:i]
			break
		}
	}
	root.Version = string(version)
	r.Align(4)

	if root.Flags, err = r.ReadU16(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	count, err := r.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	root.Streams = make([]StreamHeader, 0, count)
	for i := uint16(0); i < count; i++ {
		var h StreamHeader
		if h.Offset, err = r.ReadU32(); err != nil {
			return nil, fmt.Errorf("%w: stream header %d", ErrInvalidMetadata, i)
		}
		if h.Size, err = r.ReadU32(); err != nil {
			return nil, fmt.Errorf("%w: stream header %d", ErrInvalidMetadata, i)
		}
		if h.Name, err = r.ReadPaddedString(); err != nil {
			return nil, fmt.Errorf("%w: stream header %d", ErrInvalidMetadata, i)
		}
		if uint64(h.Offset)+uint64(h.Size) > uint64(len(data)) {
			return nil, fmt.Errorf("%w: stream %s exceeds metadata", ErrInvalidMetadata, h.Name)
		}
		root.Streams = append(root.Streams, h)
	}

	return root, nil
}

// Stream returns the header of the named stream. When a name appears more
// than once the first occurrence wins, matching the runtime loader.
func (m *MetadataRoot) Stream(name string) (StreamHeader, bool) {
	for _, h := range m.Streams {
		if h.Name == name {
			return h, true
		}
	}
	return StreamHeader{}, false
}

// StreamExists reports whether the named stream is present.
func (m *MetadataRoot) StreamExists(name string) bool {
	_, ok := m.Stream(name)
	return ok
}

// ReadStream returns the bytes of the named stream. The slice aliases the
// metadata buffer.
func (m *MetadataRoot) ReadStream(name string) ([]byte, error) {
	h, ok := m.Stream(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStreamNotFound, name)
	}
	return m.data[h.Offset : h.Offset+h.Size], nil
}
