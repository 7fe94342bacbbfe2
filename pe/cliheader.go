// Package pe locates the CLI metadata inside a PE/COFF image: the CLI
// header, the metadata root and its named streams.
package pe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// CLIHeaderSize is the size of the IMAGE_COR20_HEADER structure.
const CLIHeaderSize = 72

// DirectoryCLR is the data directory index of the CLI header.
const DirectoryCLR = 14

// CLI header flags
const (
	FlagILOnly           uint32 = 0x00000001
	Flag32BitRequired    uint32 = 0x00000002
	FlagStrongNameSigned uint32 = 0x00000008
	FlagNativeEntryPoint uint32 = 0x00000010
	Flag32BitPreferred   uint32 = 0x00020000
)

// Errors
var (
	ErrNotManaged         = errors.New("pe: image has no CLI header")
	ErrInvalidCLIHeader   = errors.New("pe: invalid CLI header")
	ErrInvalidMetadata    = errors.New("pe: invalid metadata root")
	ErrStreamNotFound     = errors.New("pe: metadata stream not found")
	ErrRVAOutOfRange      = errors.New("pe: RVA not mapped by any section")
	ErrResourceOutOfRange = errors.New("pe: manifest resource out of range")
)

// DataDirectory is an RVA and size pair.
type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

// CLIHeader is the runtime header every managed image carries.
type CLIHeader struct {
	Cb                      uint32
	MajorRuntimeVersion     uint16
	MinorRuntimeVersion     uint16
	MetaData                DataDirectory
	Flags                   uint32
	EntryPointToken         uint32
	Resources               DataDirectory
	StrongNameSignature     DataDirectory
	CodeManagerTable        DataDirectory
	VTableFixups            DataDirectory
	ExportAddressTableJumps DataDirectory
	ManagedNativeHeader     DataDirectory
}

// ReadCLIHeader reads and validates a CLI header.
func ReadCLIHeader(r io.Reader) (*CLIHeader, error) {
	h := &CLIHeader{}
	if err := binary.Read(r, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCLIHeader, err)
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// Validate checks the header for consistency.
func (h *CLIHeader) Validate() error {
	if h.Cb < CLIHeaderSize {
		return fmt.Errorf("%w: size %d", ErrInvalidCLIHeader, h.Cb)
	}
	if h.MetaData.VirtualAddress == 0 || h.MetaData.Size == 0 {
		return fmt.Errorf("%w: empty metadata directory", ErrInvalidCLIHeader)
	}
	return nil
}

// ILOnly reports whether the image contains only IL code.
func (h *CLIHeader) ILOnly() bool { return h.Flags&FlagILOnly != 0 }

// StrongNameSigned reports whether the image carries a strong name signature.
func (h *CLIHeader) StrongNameSigned() bool { return h.Flags&FlagStrongNameSigned != 0 }
