package pe

import (
	"encoding/binary"
)

type NtHeaders32 struct {
	Signature      uint32
	FileHeader     FileHeader
	OptionalHeader OptionalHeader32
}

type FileHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

type OptionalHeader32 struct {
	Magic                       uint16
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	BaseOfData                  uint32
	ImageBase                   uint32
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint32
	SizeOfStackCommit           uint32
	SizeOfHeapReserve           uint32
	SizeOfHeapCommit            uint32
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
	DataDirectory               [ImageNumberOfDirectoryEntries]DataDirectory
}

func (fh *FileHeader) encode(b []byte) {
	le := binary.LittleEndian
	le.PutUint16(b[0:], fh.Machine)
	le.PutUint16(b[2:], fh.NumberOfSections)
	le.PutUint32(b[4:], fh.TimeDateStamp)
	le.PutUint32(b[8:], fh.PointerToSymbolTable)
	le.PutUint32(b[12:], fh.NumberOfSymbols)
	le.PutUint16(b[16:], fh.SizeOfOptionalHeader)
	le.PutUint16(b[18:], fh.Characteristics)
}

func (dd DataDirectory) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], dd.VirtualAddress)
	binary.LittleEndian.PutUint32(b[4:], dd.Size)
}

func (oh *OptionalHeader32) encode(b []byte) {
	le := binary.LittleEndian
	le.PutUint16(b[0:], oh.Magic)
	b[2] = oh.MajorLinkerVersion
	b[3] = oh.MinorLinkerVersion
	le.PutUint32(b[4:], oh.SizeOfCode)
	le.PutUint32(b[8:], oh.SizeOfInitializedData)
	le.PutUint32(b[12:], oh.SizeOfUninitializedData)
	le.PutUint32(b[16:], oh.AddressOfEntryPoint)
	le.PutUint32(b[20:], oh.BaseOfCode)
	le.PutUint32(b[24:], oh.BaseOfData)
	le.PutUint32(b[28:], oh.ImageBase)
	le.PutUint32(b[32:], oh.SectionAlignment)
	le.PutUint32(b[36:], oh.FileAlignment)
	le.PutUint16(b[40:], oh.MajorOperatingSystemVersion)
	le.PutUint16(b[42:], oh.MinorOperatingSystemVersion)
	le.PutUint16(b[44:], oh.MajorImageVersion)
	le.PutUint16(b[46:], oh.MinorImageVersion)
	le.PutUint16(b[48:], oh.MajorSubsystemVersion)
	le.PutUint16(b[50:], oh.MinorSubsystemVersion)
	le.PutUint32(b[52:], oh.Win32VersionValue)
	le.PutUint32(b[56:], oh.SizeOfImage)
	le.PutUint32(b[60:], oh.SizeOfHeaders)
	le.PutUint32(b[offsetOptionalChecksum:], oh.CheckSum)
	le.PutUint16(b[68:], oh.Subsystem)
	le.PutUint16(b[70:], oh.DllCharacteristics)
	le.PutUint32(b[72:], oh.SizeOfStackReserve)
	le.PutUint32(b[76:], oh.SizeOfStackCommit)
	le.PutUint32(b[80:], oh.SizeOfHeapReserve)
	le.PutUint32(b[84:], oh.SizeOfHeapCommit)
	le.PutUint32(b[88:], oh.LoaderFlags)
	le.PutUint32(b[92:], oh.NumberOfRvaAndSizes)
	for i, dd := range oh.DataDirectory {
		dd.encode(b[offsetDataDirectories+i*DataDirectorySize:])
	}
}

// Bytes encodes the signature, file header and optional header into their
// 248-byte on-disk form.
func (nt *NtHeaders32) Bytes() []byte {
	b := make([]byte, NtHeaders32Size)
	binary.LittleEndian.PutUint32(b[0:], nt.Signature)
	nt.FileHeader.encode(b[4:offsetOptionalHeader])
	nt.OptionalHeader.encode(b[offsetOptionalHeader:])
	return b
}
