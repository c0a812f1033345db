package pe

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNtHeadersBytes(t *testing.T) {
	nt := NtHeaders32{
		Signature: ImageNTHeaderSignature,
		FileHeader: FileHeader{
			Machine:              ImageFileMachineI386,
			NumberOfSections:     3,
			TimeDateStamp:        0x11223344,
			SizeOfOptionalHeader: OptionalHeader32Size,
			Characteristics:      0x103,
		},
		OptionalHeader: OptionalHeader32{
			Magic:               ImageNTOptionalHdr32,
			MajorLinkerVersion:  14,
			MinorLinkerVersion:  37,
			AddressOfEntryPoint: 0x1000,
			ImageBase:           0x00400000,
			SizeOfImage:         0x4000,
			CheckSum:            0xdeadbeef,
			Subsystem:           ImageSubsystemWindowsCUI,
			SizeOfHeapCommit:    0x1000,
			NumberOfRvaAndSizes: 16,
		},
	}
	nt.OptionalHeader.DataDirectory[ImageDirectoryEntryImport] = DataDirectory{VirtualAddress: 0x3010, Size: 60}
	nt.OptionalHeader.DataDirectory[ImageDirectoryEntryIat] = DataDirectory{VirtualAddress: 0x3000, Size: 16}

	b := nt.Bytes()
	require.Len(t, b, 248)

	u16 := func(off int) uint16 { return binary.LittleEndian.Uint16(b[off:]) }
	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(b[off:]) }
	opt := offsetOptionalHeader

	assert.Equal(t, []byte{'P', 'E', 0, 0}, b[:4])
	assert.Equal(t, uint16(0x14c), u16(4))
	assert.Equal(t, uint16(3), u16(6))
	assert.Equal(t, uint32(0x11223344), u32(8))
	assert.Equal(t, uint16(224), u16(20))
	assert.Equal(t, uint16(0x103), u16(22))

	assert.Equal(t, uint16(0x10b), u16(opt))
	assert.Equal(t, []byte{14, 37}, b[opt+2:opt+4])
	assert.Equal(t, uint32(0x1000), u32(opt+16))
	assert.Equal(t, uint32(0x00400000), u32(opt+28))
	assert.Equal(t, uint32(0x4000), u32(opt+56))
	assert.Equal(t, uint32(0xdeadbeef), u32(opt+64))
	assert.Equal(t, uint16(3), u16(opt+68))
	assert.Equal(t, uint32(0x1000), u32(opt+84))
	assert.Equal(t, uint32(16), u32(opt+92))

	assert.Equal(t, uint32(0x3010), u32(opt+96+8))
	assert.Equal(t, uint32(60), u32(opt+96+12))
	assert.Equal(t, uint32(0x3000), u32(opt+96+12*8))
	assert.Equal(t, uint32(16), u32(opt+96+12*8+4))
	assert.Equal(t, make([]byte, 8), b[opt+96+15*8:])
}
