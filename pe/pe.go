package pe

import (
	"bytes"
	dpe "debug/pe"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

// File represents an opened managed PE image.
// It is safe for concurrent read access after opening.
type File struct {
	image  *dpe.File
	closer io.Closer // may be nil if the reader doesn't need closing
	cli    *CLIHeader

	// Lazy loading synchronization
	rootOnce sync.Once
	root     *MetadataRoot
	rootErr  error
}

// Open opens a managed PE image from the given path.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pe: failed to open file: %w", err)
	}

	file, err := NewFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	file.closer = f
	return file, nil
}

// NewFile reads a managed PE image from an io.ReaderAt.
// The caller is responsible for closing the underlying reader if needed.
func NewFile(r io.ReaderAt) (*File, error) {
	image, err := dpe.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("pe: failed to parse image: %w", err)
	}

	dir, ok := clrDirectory(image)
	if !ok {
		image.Close()
		return nil, ErrNotManaged
	}

	f := &File{image: image}
	data, err := f.ReadRVA(dir.VirtualAddress, CLIHeaderSize)
	if err != nil {
		image.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidCLIHeader, err)
	}
	if f.cli, err = ReadCLIHeader(bytes.NewReader(data)); err != nil {
		image.Close()
		return nil, err
	}

	return f, nil
}

func clrDirectory(image *dpe.File) (dpe.DataDirectory, bool) {
	var (
		dirs  [16]dpe.DataDirectory
		count uint32
	)
	switch oh := image.OptionalHeader.(type) {
	case *dpe.OptionalHeader32:
		dirs, count = oh.DataDirectory, oh.NumberOfRvaAndSizes
	case *dpe.OptionalHeader64:
		dirs, count = oh.DataDirectory, oh.NumberOfRvaAndSizes
	default:
		return dpe.DataDirectory{}, false
	}
	if count <= DirectoryCLR || dirs[DirectoryCLR].VirtualAddress == 0 {
		return dpe.DataDirectory{}, false
	}
	return dirs[DirectoryCLR], true
}

// Close releases resources associated with the image.
func (f *File) Close() error {
	f.image.Close()
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}

// CLIHeader returns the CLI header.
func (f *File) CLIHeader() *CLIHeader {
	return f.cli
}

// Machine returns the COFF machine type.
func (f *File) Machine() uint16 {
	return f.image.Machine
}

// ReadRVA reads size bytes at a relative virtual address.
func (f *File) ReadRVA(rva, size uint32) ([]byte, error) {
	for _, s := range f.image.Sections {
		extent := s.VirtualSize
		if s.Size > extent {
			extent = s.Size
		}
		if rva < s.VirtualAddress || rva-s.VirtualAddress >= extent {
			continue
		}
		off := rva - s.VirtualAddress
		if uint64(off)+uint64(size) > uint64(s.Size) {
			return nil, fmt.Errorf("%w: 0x%x+%d", ErrRVAOutOfRange, rva, size)
		}
		buf := make([]byte, size)
		if _, err := s.ReadAt(buf, int64(off)); err != nil {
			return nil, fmt.Errorf("pe: failed to read section %s: %w", s.Name, err)
		}
		return buf, nil
	}
	return nil, fmt.Errorf("%w: 0x%x", ErrRVAOutOfRange, rva)
}

// Metadata returns the metadata root.
// The root is lazily loaded on first access.
func (f *File) Metadata() (*MetadataRoot, error) {
	f.rootOnce.Do(func() {
		dir := f.cli.MetaData
		data, err := f.ReadRVA(dir.VirtualAddress, dir.Size)
		if err != nil {
			f.rootErr = fmt.Errorf("pe: failed to read metadata: %w", err)
			return
		}
		f.root, f.rootErr = ParseMetadataRoot(data)
	})

	if f.rootErr != nil {
		return nil, f.rootErr
	}
	return f.root, nil
}

// Tables parses the table stream and heaps of the image.
func (f *File) Tables(userStringCacheSize int) (*tables.Tables, error) {
	root, err := f.Metadata()
	if err != nil {
		return nil, err
	}
	return TablesFromRoot(root, userStringCacheSize)
}

// TablesFromRoot parses the table stream and heaps referenced by root.
// Missing heaps are treated as empty.
func TablesFromRoot(root *MetadataRoot, userStringCacheSize int) (*tables.Tables, error) {
	s := tables.Streams{UserStringCacheSize: userStringCacheSize}

	var err error
	if s.Tables, err = root.ReadStream(StreamTables); err != nil {
		if s.Tables, err = root.ReadStream(StreamTablesUncompressed); err != nil {
			return nil, err
		}
		s.Uncompressed = true
	}
	s.Strings, _ = root.ReadStream(StreamStrings)
	s.Blob, _ = root.ReadStream(StreamBlob)
	s.GUID, _ = root.ReadStream(StreamGUID)
	s.UserStrings, _ = root.ReadStream(StreamUserStrings)

	return tables.Parse(s)
}

// Resource returns the embedded manifest resource stored at offset within
// the CLI resources directory.
func (f *File) Resource(offset uint32) ([]byte, error) {
	dir := f.cli.Resources
	if dir.VirtualAddress == 0 || uint64(offset)+4 > uint64(dir.Size) {
		return nil, fmt.Errorf("%w: offset %d", ErrResourceOutOfRange, offset)
	}
	head, err := f.ReadRVA(dir.VirtualAddress+offset, 4)
	if err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(head)
	if uint64(offset)+4+uint64(n) > uint64(dir.Size) {
		return nil, fmt.Errorf("%w: offset %d length %d", ErrResourceOutOfRange, offset, n)
	}
	return f.ReadRVA(dir.VirtualAddress+offset+4, n)
}
