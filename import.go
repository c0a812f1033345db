package pe

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

type ImageImportDescriptor struct {
	OriginalFirstThunk uint32
	TimeDateStamp      uint32
	ForwarderChain     uint32
	Name               uint32
	FirstThunk         uint32
}

func (d *ImageImportDescriptor) encode(b []byte) {
	le := binary.LittleEndian
	le.PutUint32(b[0:], d.OriginalFirstThunk)
	le.PutUint32(b[4:], d.TimeDateStamp)
	le.PutUint32(b[8:], d.ForwarderChain)
	le.PutUint32(b[12:], d.Name)
	le.PutUint32(b[16:], d.FirstThunk)
}

// ImportedLibrary names a DLL and the functions imported from it, in the
// order their thunks are laid out.
type ImportedLibrary struct {
	Name      string
	Functions []string
}

// ImportedFunction is the resolved location of one imported function.
// RVA is the IAT slot the loader overwrites; Address is ImageBase + RVA and
// is what generated code calls through.
type ImportedFunction struct {
	Library string
	Name    string
	RVA     uint32
	Address uint32
}

// ImportTable is the assembled contents of the import section.
type ImportTable struct {
	Data        []byte
	Descriptors DataDirectory
	IAT         DataDirectory
	Functions   []ImportedFunction
}

// validImportName reports whether name can be stored as a null-terminated
// string in the hint/name blob.
func validImportName(name string) bool {
	return name != "" && !strings.ContainsRune(name, 0)
}

func validateImports(libs []ImportedLibrary) error {
	for _, lib := range libs {
		if !validImportName(lib.Name) {
			return errors.Wrapf(ErrInvalidImport, "library name %q", lib.Name)
		}
		if len(lib.Functions) == 0 {
			return errors.Wrapf(ErrInvalidImport, "library %q imports no functions", lib.Name)
		}
		for _, fn := range lib.Functions {
			if !validImportName(fn) {
				return errors.Wrapf(ErrInvalidImport, "function name %q in %q", fn, lib.Name)
			}
		}
	}
	return nil
}

// BuildImportTable lays out the IAT, the ILT, the import descriptors and the
// hint/name blob for libs, in that order, for a section mapped at base.
// An empty libs yields a nil table.
func BuildImportTable(libs []ImportedLibrary, base uint32) (*ImportTable, error) {
	if len(libs) == 0 {
		return nil, nil
	}
	if err := validateImports(libs); err != nil {
		return nil, err
	}

	numFunctions := 0
	for _, lib := range libs {
		numFunctions += len(lib.Functions)
	}

	// One thunk per function plus a null thunk per library.
	iatSize := uint32((numFunctions + len(libs)) * thunkSize32)
	iltSize := iatSize
	iltOffset := iatSize
	descriptorsOffset := iltOffset + iltSize
	descriptorsSize := uint32((len(libs) + 1) * ImportDescriptorSize)
	namesOffset := descriptorsOffset + descriptorsSize

	var names bytes.Buffer
	nameOffsets := make(map[string]uint32)
	addName := func(name string, hint bool) {
		if _, ok := nameOffsets[name]; ok {
			return
		}
		nameOffsets[name] = namesOffset + uint32(names.Len())
		if hint {
			names.Write([]byte{0, 0})
		}
		names.WriteString(name)
		names.WriteByte(0)
	}
	for _, lib := range libs {
		addName(lib.Name, false)
		for _, fn := range lib.Functions {
			addName(fn, true)
		}
	}

	data := make([]byte, int(namesOffset)+names.Len())
	copy(data[namesOffset:], names.Bytes())

	t := &ImportTable{
		Data:        data,
		Descriptors: DataDirectory{VirtualAddress: base + descriptorsOffset, Size: descriptorsSize},
		IAT:         DataDirectory{VirtualAddress: base, Size: iatSize},
		Functions:   make([]ImportedFunction, 0, numFunctions),
	}

	le := binary.LittleEndian
	slot := uint32(0)
	descriptor := descriptorsOffset
	for _, lib := range libs {
		first := slot
		for _, fn := range lib.Functions {
			thunk := base + nameOffsets[fn]
			le.PutUint32(data[slot:], thunk)
			le.PutUint32(data[iltOffset+slot:], thunk)
			t.Functions = append(t.Functions, ImportedFunction{
				Library: lib.Name,
				Name:    fn,
				RVA:     base + slot,
			})
			slot += thunkSize32
		}
		// the null thunk is already zero
		slot += thunkSize32

		d := ImageImportDescriptor{
			OriginalFirstThunk: base + iltOffset + first,
			Name:               base + nameOffsets[lib.Name],
			FirstThunk:         base + first,
		}
		d.encode(data[descriptor:])
		descriptor += ImportDescriptorSize
	}
	return t, nil
}

// ImpHash calculates the import hash of libs.
func ImpHash(libs []ImportedLibrary) (string, error) {
	if len(libs) == 0 {
		return "", errors.New("no imports found")
	}

	extensions := []string{"ocx", "sys", "dll"}
	var normalizedImports []string

	for _, imp := range libs {
		var libName string
		parts := strings.Split(imp.Name, ".")
		if len(parts) == 2 && stringInSlice(strings.ToLower(parts[1]), extensions) {
			libName = parts[0]
		} else {
			libName = imp.Name
		}

		libName = strings.ToLower(libName)

		for _, function := range imp.Functions {
			if function == "" {
				continue
			}

			impStr := fmt.Sprintf("%s.%s", libName, strings.ToLower(function))
			normalizedImports = append(normalizedImports, impStr)
		}
	}
	h := md5.New()
	_, _ = io.WriteString(h, strings.Join(normalizedImports, ","))
	return hex.EncodeToString(h.Sum(nil)), nil
}
