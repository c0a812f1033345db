package pe

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

type SectionHeader32 struct {
	Name                 [8]uint8
	VirtualSize          uint32 // also PhysicalAddress
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLineNumbers uint32
	NumberOfRelocations  uint16
	NumberOfLineNumbers  uint16
	Characteristics      uint32
}

// Bytes encodes the header into its 40-byte on-disk form.
func (sh *SectionHeader32) Bytes() []byte {
	b := make([]byte, SectionHeaderSize)
	le := binary.LittleEndian
	copy(b[0:8], sh.Name[:])
	le.PutUint32(b[8:], sh.VirtualSize)
	le.PutUint32(b[12:], sh.VirtualAddress)
	le.PutUint32(b[16:], sh.SizeOfRawData)
	le.PutUint32(b[20:], sh.PointerToRawData)
	le.PutUint32(b[24:], sh.PointerToRelocations)
	le.PutUint32(b[28:], sh.PointerToLineNumbers)
	le.PutUint16(b[32:], sh.NumberOfRelocations)
	le.PutUint16(b[34:], sh.NumberOfLineNumbers)
	le.PutUint32(b[36:], sh.Characteristics)
	return b
}

// Section is one region of the image. Content is owned by the section once
// added and is never modified.
type Section struct {
	Name            string
	VirtualAddress  uint32
	Size            uint32
	Content         []byte
	Characteristics uint32
}

func newSection(name string, rva uint32, content []byte, flags uint32) (*Section, error) {
	if len(name) > maxSectionNameLength {
		return nil, errors.Wrapf(ErrSectionNameTooLong, "%q", name)
	}
	return &Section{
		Name:            name,
		VirtualAddress:  rva,
		Size:            uint32(len(content)),
		Content:         content,
		Characteristics: flags,
	}, nil
}

// VirtualSize is the in-memory footprint, Size rounded up to SectionAlignment.
func (s *Section) VirtualSize() uint32 {
	return AlignUp(s.Size, SectionAlignment)
}

// RawSize is the on-disk footprint, Size rounded up to FileAlignment.
func (s *Section) RawSize() uint32 {
	return AlignUp(s.Size, FileAlignment)
}

// End is the first RVA past the mapped range of the section.
func (s *Section) End() uint32 {
	return s.VirtualAddress + s.VirtualSize()
}

// Contains reports whether rva falls inside the section's content.
func (s *Section) Contains(rva uint32) bool {
	return s.VirtualAddress <= rva && rva < s.VirtualAddress+s.Size
}

func (s *Section) header(pointerToRawData uint32) SectionHeader32 {
	sh := SectionHeader32{
		VirtualSize:      s.VirtualSize(),
		VirtualAddress:   s.VirtualAddress,
		SizeOfRawData:    s.Size,
		PointerToRawData: pointerToRawData,
		Characteristics:  s.Characteristics,
	}
	copy(sh.Name[:], s.Name)
	return sh
}

func (s *Section) MD5() string {
	return fmt.Sprintf("%x", md5.Sum(s.Content))
}

func (s *Section) Entropy() float64 {
	var e EntropyCalculator
	_, _ = e.Write(s.Content)
	return e.Sum()
}

func (s *Section) Flags() (flags string) {
	if (ImageScnMemRead & s.Characteristics) == ImageScnMemRead {
		flags += "r"
	}
	if (ImageScnMemExecute & s.Characteristics) == ImageScnMemExecute {
		flags += "x"
	}
	if (ImageScnMemWrite & s.Characteristics) == ImageScnMemWrite {
		flags += "w"
	}
	if (ImageScnCntCode & s.Characteristics) == ImageScnCntCode {
		flags += "c"
	}
	if (ImageScnCntInitializedData & s.Characteristics) == ImageScnCntInitializedData {
		flags += "i"
	}
	return flags
}

// byVirtualAddress sorts all sections by Virtual Address.
type byVirtualAddress []*Section

func (s byVirtualAddress) Len() int           { return len(s) }
func (s byVirtualAddress) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s byVirtualAddress) Less(i, j int) bool { return s[i].VirtualAddress < s[j].VirtualAddress }

// checkOverlap verifies that no section is mapped over the headers or over
// another section. The input order is left untouched.
func checkOverlap(sections []*Section, headersEnd uint32) error {
	sorted := make([]*Section, len(sections))
	copy(sorted, sections)
	sort.Sort(byVirtualAddress(sorted))

	limit := headersEnd
	var prev *Section
	for _, s := range sorted {
		if s.VirtualAddress < limit {
			if prev == nil {
				return errors.Wrapf(ErrSectionOverlap, "%s at 0x%x overlaps the headers ending at 0x%x",
					s.Name, s.VirtualAddress, limit)
			}
			return errors.Wrapf(ErrSectionOverlap, "%s at 0x%x overlaps %s [0x%x, 0x%x)",
				s.Name, s.VirtualAddress, prev.Name, prev.VirtualAddress, prev.End())
		}
		limit = s.End()
		prev = s
	}
	return nil
}
