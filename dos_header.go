package pe

import (
	"encoding/binary"
	"sync"
)

type DOSHeader struct {
	Magic                    uint16
	BytesOnLastPageOfFile    uint16
	PagesInFile              uint16
	Relocations              uint16
	SizeOfHeader             uint16
	MinExtraParagraphsNeeded uint16
	MaxExtraParagraphsNeeded uint16
	InitialSS                uint16
	InitialSP                uint16
	Checksum                 uint16
	InitialIP                uint16
	InitialCS                uint16
	AddressOfRelocationTable uint16
	OverlayNumber            uint16
	ReservedWords1           [4]uint16
	OEMIdentifier            uint16
	OEMInformation           uint16
	ReservedWords2           [10]uint16
	AddressOfNewEXEHeader    uint32
}

// Bytes encodes the header into its 64-byte on-disk form.
func (h *DOSHeader) Bytes() []byte {
	b := make([]byte, DOSHeaderSize)
	le := binary.LittleEndian

	le.PutUint16(b[0:], h.Magic)
	le.PutUint16(b[2:], h.BytesOnLastPageOfFile)
	le.PutUint16(b[4:], h.PagesInFile)
	le.PutUint16(b[6:], h.Relocations)
	le.PutUint16(b[8:], h.SizeOfHeader)
	le.PutUint16(b[10:], h.MinExtraParagraphsNeeded)
	le.PutUint16(b[12:], h.MaxExtraParagraphsNeeded)
	le.PutUint16(b[14:], h.InitialSS)
	le.PutUint16(b[16:], h.InitialSP)
	le.PutUint16(b[18:], h.Checksum)
	le.PutUint16(b[20:], h.InitialIP)
	le.PutUint16(b[22:], h.InitialCS)
	le.PutUint16(b[24:], h.AddressOfRelocationTable)
	le.PutUint16(b[26:], h.OverlayNumber)
	for i, w := range h.ReservedWords1 {
		le.PutUint16(b[28+2*i:], w)
	}
	le.PutUint16(b[36:], h.OEMIdentifier)
	le.PutUint16(b[38:], h.OEMInformation)
	for i, w := range h.ReservedWords2 {
		le.PutUint16(b[40+2*i:], w)
	}
	le.PutUint32(b[offsetDOSHeaderLfanew:], h.AddressOfNewEXEHeader)
	return b
}

// dosProgram prints dosMessage through int 21h/09h and exits with code 1.
var dosProgram = []byte{
	0x0e,             // push cs
	0x1f,             // pop ds
	0xba, 0x0e, 0x00, // mov dx, 0eh
	0xb4, 0x09,       // mov ah, 09h
	0xcd, 0x21,       // int 21h
	0xb8, 0x01, 0x4c, // mov ax, 4c01h
	0xcd, 0x21,       // int 21h
}

const dosMessage = "This program cannot be run in DOS mode.\r\r\n$"

var (
	dosStubOnce sync.Once
	dosStub     []byte
)

func buildDOSStub() []byte {
	h := DOSHeader{
		Magic:                    ImageDOSSignature,
		BytesOnLastPageOfFile:    0x90,
		PagesInFile:              3,
		SizeOfHeader:             4,
		MaxExtraParagraphsNeeded: 0xffff,
		InitialSP:                0xb8,
		AddressOfRelocationTable: 0x40,
	}

	length := DOSHeaderSize + len(dosProgram) + len(dosMessage)
	// NT headers must start on an 8 byte boundary
	h.AddressOfNewEXEHeader = uint32(AlignUp(length, HeaderAlignment))

	stub := make([]byte, 0, h.AddressOfNewEXEHeader)
	stub = append(stub, h.Bytes()...)
	stub = append(stub, dosProgram...)
	stub = append(stub, dosMessage...)
	return append(stub, make([]byte, int(h.AddressOfNewEXEHeader)-length)...)
}

func legacyStub() []byte {
	dosStubOnce.Do(func() {
		dosStub = buildDOSStub()
	})
	return dosStub
}

// DOSStub returns a copy of the MS-DOS header and stub program that
// prefixes every image. Its length is the file offset of the NT headers.
func DOSStub() []byte {
	s := legacyStub()
	out := make([]byte, len(s))
	copy(out, s)
	return out
}

// DOSStubSize is the padded length of the stub.
func DOSStubSize() uint32 {
	return uint32(len(legacyStub()))
}
