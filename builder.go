package pe

import (
	"bytes"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Builder accumulates the sections of one image and serializes it. A Builder
// is single-use: once the image has been produced it refuses to build again.
type Builder struct {
	imageBase    uint32
	stackReserve uint32
	stackCommit  uint32
	heapReserve  uint32
	heapCommit   uint32
	entryPoint   uint32
	subsystem    uint16

	sections    []*Section
	code        *Section
	data        *Section
	placeholder *Section
	imports     *ImportTable

	baseOfCode              uint32
	baseOfData              uint32
	sizeOfCode              uint32
	sizeOfInitializedData   uint32
	sizeOfUninitializedData uint32

	written bool
	now     func() time.Time
	logger  *zap.Logger
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		imageBase:    DefaultImageBase,
		stackReserve: DefaultStackReserve,
		stackCommit:  DefaultStackCommit,
		heapReserve:  DefaultHeapReserve,
		heapCommit:   DefaultHeapCommit,
		entryPoint:   DefaultEntryPoint,
		subsystem:    ImageSubsystemWindowsCUI,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) ImageBase() uint32 {
	return b.imageBase
}

func (b *Builder) EntryPoint() uint32 {
	return b.entryPoint
}

// Sections returns copies of the sections in the order they are laid out.
// Content is shared and must not be modified.
func (b *Builder) Sections() []*Section {
	sections := make([]*Section, len(b.sections))
	for i, s := range b.sections {
		c := *s
		sections[i] = &c
	}
	return sections
}

func (b *Builder) addSection(name string, rva uint32, content []byte, flags uint32) (*Section, error) {
	s, err := newSection(name, rva, content, flags)
	if err != nil {
		return nil, err
	}
	b.sections = append(b.sections, s)
	b.logger.Debug("section added",
		zap.String("name", name),
		zap.Uint32("rva", rva),
		zap.Uint32("size", s.Size),
		zap.String("flags", s.Flags()),
	)
	return s, nil
}

// AddCode adds the .text section. It may be called once.
func (b *Builder) AddCode(rva uint32, code []byte) error {
	if b.code != nil {
		return errors.Wrap(ErrDuplicateSection, SectionText)
	}
	s, err := b.addSection(SectionText, rva, bytes.Clone(code), ImageScnCntCode|ImageScnMemRead)
	if err != nil {
		return err
	}
	b.code = s
	b.baseOfCode = rva
	b.sizeOfCode += s.RawSize()
	return nil
}

// AddData adds the .data section with the given contents. It may be called
// once, and is mutually exclusive with AddDataSize.
func (b *Builder) AddData(rva uint32, data []byte) error {
	if b.data != nil {
		return errors.Wrap(ErrDuplicateSection, SectionData)
	}
	s, err := b.addSection(SectionData, rva, bytes.Clone(data), ImageScnMemRead|ImageScnMemWrite)
	if err != nil {
		return err
	}
	b.data = s
	b.baseOfData = rva
	b.sizeOfUninitializedData += s.RawSize()
	return nil
}

// AddDataSize adds a zero-filled .data section of size bytes.
func (b *Builder) AddDataSize(rva, size uint32) error {
	return b.AddData(rva, make([]byte, size))
}

// AddImports builds the .idata section at rva and returns where each
// imported function will be found once the image is loaded, in declaration
// order. An empty libs adds nothing.
func (b *Builder) AddImports(rva uint32, libs []ImportedLibrary) ([]ImportedFunction, error) {
	if b.imports != nil {
		return nil, errors.Wrap(ErrDuplicateSection, SectionImport)
	}

	t, err := BuildImportTable(libs, rva)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, nil
	}

	s, err := b.addSection(SectionImport, rva, t.Data, ImageScnCntInitializedData|ImageScnMemRead)
	if err != nil {
		return nil, err
	}
	b.imports = t
	b.sizeOfInitializedData = s.RawSize()

	for i := range t.Functions {
		t.Functions[i].Address = b.imageBase + t.Functions[i].RVA
	}

	functions := make([]ImportedFunction, len(t.Functions))
	copy(functions, t.Functions)
	return functions, nil
}

// addPlaceholderData synthesizes the one byte .data section the loader
// insists on, mapped right after the code.
func (b *Builder) addPlaceholderData() {
	rva := AlignUp(b.code.VirtualAddress+b.code.Size, SectionAlignment)
	s := &Section{
		Name:            SectionData,
		VirtualAddress:  rva,
		Size:            1,
		Content:         []byte{0},
		Characteristics: ImageScnMemRead | ImageScnMemWrite,
	}

	// keep .text, .data, .idata order
	for i, sec := range b.sections {
		if sec == b.code {
			b.sections = append(b.sections[:i+1], append([]*Section{s}, b.sections[i+1:]...)...)
			break
		}
	}

	b.data = s
	b.placeholder = s
	b.baseOfData = rva
	b.sizeOfUninitializedData += s.RawSize()
	b.logger.Debug("placeholder data section added", zap.Uint32("rva", rva))
}

func (b *Builder) headers() NtHeaders32 {
	numSections := uint32(len(b.sections))
	sectionTableSize := SectionHeaderSize * numSections

	var sizeOfImage uint32
	for _, s := range b.sections {
		sizeOfImage += s.VirtualSize()
	}
	sizeOfImage += DOSStubSize() + NtHeaders32Size + sectionTableSize
	sizeOfImage = AlignUp(sizeOfImage, SectionAlignment)

	nt := NtHeaders32{
		Signature: ImageNTHeaderSignature,
		FileHeader: FileHeader{
			Machine:              ImageFileMachineI386,
			NumberOfSections:     uint16(numSections),
			TimeDateStamp:        uint32(b.now().Unix()),
			SizeOfOptionalHeader: OptionalHeader32Size,
			Characteristics:      ImageFileRelocsStripped | ImageFileExecutableImage | ImageFile32BitMachine,
		},
		OptionalHeader: OptionalHeader32{
			Magic:                       ImageNTOptionalHdr32,
			MajorLinkerVersion:          DefaultMajorLinker,
			MinorLinkerVersion:          DefaultMinorLinker,
			SizeOfCode:                  b.sizeOfCode,
			SizeOfInitializedData:       b.sizeOfInitializedData,
			SizeOfUninitializedData:     b.sizeOfUninitializedData,
			AddressOfEntryPoint:         b.entryPoint,
			BaseOfCode:                  b.baseOfCode,
			BaseOfData:                  b.baseOfData,
			ImageBase:                   b.imageBase,
			SectionAlignment:            SectionAlignment,
			FileAlignment:               FileAlignment,
			MajorOperatingSystemVersion: DefaultMajorOSVersion,
			MajorImageVersion:           DefaultMajorImageVersion,
			MajorSubsystemVersion:       DefaultMajorSubsystem,
			SizeOfImage:                 sizeOfImage,
			SizeOfHeaders:               4 + NtHeaders32Size + sectionTableSize,
			Subsystem:                   b.subsystem,
			SizeOfStackReserve:          b.stackReserve,
			SizeOfStackCommit:           b.stackCommit,
			SizeOfHeapReserve:           b.heapReserve,
			SizeOfHeapCommit:            b.heapCommit,
			NumberOfRvaAndSizes:         ImageNumberOfDirectoryEntries,
		},
	}

	if b.imports != nil {
		nt.OptionalHeader.DataDirectory[ImageDirectoryEntryImport] = b.imports.Descriptors
		nt.OptionalHeader.DataDirectory[ImageDirectoryEntryIat] = b.imports.IAT
	}
	return nt
}

// explainPlaceholder names the synthesized data section when it is the one
// mapped over another section.
func (b *Builder) explainPlaceholder(err error) error {
	p := b.placeholder
	if p == nil {
		return err
	}
	for _, s := range b.sections {
		if s == p {
			continue
		}
		if s.VirtualAddress < p.End() && p.VirtualAddress < s.End() {
			return errors.Wrapf(err, "placeholder %s at 0x%x collides with %s; supply a data section",
				p.Name, p.VirtualAddress, s.Name)
		}
	}
	return err
}

// Bytes serializes the image.
func (b *Builder) Bytes() ([]byte, error) {
	if b.written {
		return nil, ErrAlreadyWritten
	}
	if b.code == nil {
		return nil, ErrNoCode
	}
	if b.data == nil {
		b.addPlaceholderData()
	}

	stubSize := DOSStubSize()
	headersEnd := stubSize + NtHeaders32Size + SectionHeaderSize*uint32(len(b.sections))
	if err := checkOverlap(b.sections, AlignUp(headersEnd, SectionAlignment)); err != nil {
		return nil, b.explainPlaceholder(err)
	}
	if !b.code.Contains(b.entryPoint) {
		b.logger.Warn("entry point is outside the code section",
			zap.Uint32("entry_point", b.entryPoint),
			zap.Uint32("code_rva", b.code.VirtualAddress),
			zap.Uint32("code_size", b.code.Size),
		)
	}

	nt := b.headers()

	var buf bytes.Buffer
	buf.Write(legacyStub())
	buf.Write(nt.Bytes())

	rawDataOffset := AlignUp(headersEnd, FileAlignment)
	offset := rawDataOffset
	for _, s := range b.sections {
		sh := s.header(offset)
		buf.Write(sh.Bytes())
		offset += s.RawSize()
	}

	buf.Write(make([]byte, rawDataOffset-uint32(buf.Len())))

	for _, s := range b.sections {
		buf.Write(s.Content)
		buf.Write(make([]byte, s.RawSize()-s.Size))
	}

	b.written = true
	b.logger.Debug("image built",
		zap.Int("sections", len(b.sections)),
		zap.Uint32("size_of_image", nt.OptionalHeader.SizeOfImage),
		zap.Int("file_size", buf.Len()),
	)
	return buf.Bytes(), nil
}

// WriteTo serializes the image to w in a single write. Nothing is written
// when the image cannot be built.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	image, err := b.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(image)
	return int64(n), errors.Wrap(err, "failed to write image")
}
