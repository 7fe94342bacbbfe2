package pe

import (
	"bytes"
	dpe "debug/pe"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sectionRVA    = 0x2000
	sectionOffset = 0x200
)

type testStream struct {
	name string
	data []byte
}

func buildMetadata(streams []testStream) []byte {
	le := binary.LittleEndian
	var b []byte
	b = le.AppendUint32(b, MetadataSignature)
	b = le.AppendUint16(b, 1)
	b = le.AppendUint16(b, 1)
	b = le.AppendUint32(b, 0)
	b = le.AppendUint32(b, 12)
	b = append(b, "v4.0.30319\x00\x00"...)
	b = le.AppendUint16(b, 0)
	b = le.AppendUint16(b, uint16(len(streams)))

	headerSize := len(b)
	for _, s := range streams {
		headerSize += 8 + (len(s.name)/4+1)*4
	}

	var body []byte
	for _, s := range streams {
		b = le.AppendUint32(b, uint32(headerSize+len(body)))
		b = le.AppendUint32(b, uint32(len(s.data)))
		name := append([]byte(s.name), 0)
		for len(name)%4 != 0 {
			name = append(name, 0)
		}
		b = append(b, name...)
		body = append(body, s.data...)
		for len(body)%4 != 0 {
			body = append(body, 0)
		}
	}
	return append(b, body...)
}

func moduleTableStream() []byte {
	le := binary.LittleEndian
	b := le.AppendUint32(nil, 0)
	b = append(b, 2, 0, 0, 1)
	b = le.AppendUint64(b, 1)
	b = le.AppendUint64(b, 0)
	b = le.AppendUint32(b, 1)
	b = le.AppendUint16(b, 0) // generation
	b = le.AppendUint16(b, 1) // name
	b = le.AppendUint16(b, 0) // mvid
	b = le.AppendUint16(b, 0)
	b = le.AppendUint16(b, 0)
	return b
}

// buildImage writes a PE32 image with a single section holding the CLI
// header, the metadata and the resources blob.
func buildImage(t *testing.T, metadata, resources []byte, managed bool) []byte {
	t.Helper()
	le := binary.LittleEndian

	var section []byte
	mdRVA := uint32(sectionRVA + CLIHeaderSize)
	resRVA := mdRVA + uint32(len(metadata))
	cli := CLIHeader{
		Cb:                  CLIHeaderSize,
		MajorRuntimeVersion: 2,
		MinorRuntimeVersion: 5,
		MetaData:            DataDirectory{mdRVA, uint32(len(metadata))},
		Flags:               FlagILOnly,
	}
	if len(resources) > 0 {
		cli.Resources = DataDirectory{resRVA, uint32(len(resources))}
	}
	var hdr bytes.Buffer
	require.NoError(t, binary.Write(&hdr, le, &cli))
	section = append(section, hdr.Bytes()...)
	section = append(section, metadata...)
	section = append(section, resources...)
	raw := (len(section) + 0x1FF) &^ 0x1FF

	var img bytes.Buffer
	dos := make([]byte, 0x80)
	copy(dos, "MZ")
	le.PutUint32(dos[0x3C:], 0x80)
	img.Write(dos)
	img.WriteString("PE\x00\x00")

	fh := dpe.FileHeader{
		Machine:              dpe.IMAGE_FILE_MACHINE_I386,
		NumberOfSections:     1,
		SizeOfOptionalHeader: uint16(binary.Size(dpe.OptionalHeader32{})),
		Characteristics:      0x0102,
	}
	require.NoError(t, binary.Write(&img, le, &fh))

	oh := dpe.OptionalHeader32{
		Magic:               0x10B,
		SectionAlignment:    0x2000,
		FileAlignment:       0x200,
		SizeOfImage:         0x4000,
		SizeOfHeaders:       sectionOffset,
		NumberOfRvaAndSizes: 16,
	}
	if managed {
		oh.DataDirectory[DirectoryCLR] = dpe.DataDirectory{VirtualAddress: sectionRVA, Size: CLIHeaderSize}
	}
	require.NoError(t, binary.Write(&img, le, &oh))

	sh := dpe.SectionHeader32{
		VirtualSize:      uint32(len(section)),
		VirtualAddress:   sectionRVA,
		SizeOfRawData:    uint32(raw),
		PointerToRawData: sectionOffset,
		Characteristics:  0x60000020,
	}
	copy(sh.Name[:], ".text")
	require.NoError(t, binary.Write(&img, le, &sh))

	out := img.Bytes()
	require.LessOrEqual(t, len(out), sectionOffset)
	out = append(out, make([]byte, sectionOffset-len(out))...)
	out = append(out, section...)
	return append(out, make([]byte, raw-len(section))...)
}

func TestOpenManagedImage(t *testing.T) {
	md := buildMetadata([]testStream{
		{StreamTables, moduleTableStream()},
		{StreamStrings, []byte("\x00demo.dll\x00")},
		{StreamGUID, make([]byte, 16)},
	})
	res := []byte{3, 0, 0, 0, 'a', 'b', 'c', 0}
	f, err := NewFile(bytes.NewReader(buildImage(t, md, res, true)))
	require.NoError(t, err)
	defer f.Close()

	cli := f.CLIHeader()
	assert.Equal(t, uint16(2), cli.MajorRuntimeVersion)
	assert.True(t, cli.ILOnly())
	assert.False(t, cli.StrongNameSigned())
	assert.Equal(t, uint16(dpe.IMAGE_FILE_MACHINE_I386), f.Machine())

	root, err := f.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "v4.0.30319", root.Version)
	assert.Len(t, root.Streams, 3)
	assert.True(t, root.StreamExists(StreamStrings))
	assert.False(t, root.StreamExists(StreamUserStrings))

	again, err := f.Metadata()
	require.NoError(t, err)
	assert.Same(t, root, again)

	tbl, err := f.Tables(0)
	require.NoError(t, err)
	require.Len(t, tbl.Module, 1)
	assert.Equal(t, "demo.dll", tbl.String(tbl.Module[0].Name))

	data, err := f.Resource(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)

	_, err = f.Resource(6)
	assert.ErrorIs(t, err, ErrResourceOutOfRange)
}

func TestOpenNativeImage(t *testing.T) {
	_, err := NewFile(bytes.NewReader(buildImage(t, buildMetadata(nil), nil, false)))
	assert.ErrorIs(t, err, ErrNotManaged)
}

func TestParseMetadataRoot(t *testing.T) {
	_, err := ParseMetadataRoot([]byte{1, 2, 3, 4})
	assert.ErrorIs(t, err, ErrInvalidMetadata)

	root, err := ParseMetadataRoot(buildMetadata([]testStream{{StreamBlob, []byte{0, 1, 7}}}))
	require.NoError(t, err)

	blob, err := root.ReadStream(StreamBlob)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 7}, blob)

	_, err = root.ReadStream(StreamTables)
	assert.ErrorIs(t, err, ErrStreamNotFound)

	_, err = TablesFromRoot(root, 0)
	assert.ErrorIs(t, err, ErrStreamNotFound)
}
