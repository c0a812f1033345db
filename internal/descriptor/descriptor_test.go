package descriptor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	pe "github.com/wanglei-coder/createpe"
)

const helloJSON = `{
  "ImageBase": "0x400000",
  "Stack": { "Reserve": "0x80000", "Commit": "0x11000" },
  "Heap": { "Reserve": "1048576", "Commit": 4096 },
  "Code": { "AddressRVA": "0x1000", "Content": "hello.bin" },
  "Data": { "AddressRVA": "0x2000", "Size": "0x100" },
  "Imports": {
    "AddressRVA": "0x3000",
    "Libraries": [
      { "Name": "USER32.DLL", "Functions": [ "MessageBoxA" ] },
      { "Name": "KERNEL32.DLL", "Functions": [ "ExitProcess" ] }
    ]
  }
}`

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestHex32(t *testing.T) {
	tests := []struct {
		in      string
		want    Hex32
		wantErr bool
	}{
		{in: `4096`, want: 0x1000},
		{in: `"4096"`, want: 0x1000},
		{in: `"0x1000"`, want: 0x1000},
		{in: `"0X1000"`, want: 0x1000},
		{in: `"010"`, want: 10},
		{in: `"0xffffffff"`, want: 0xffffffff},
		{in: `"0x100000000"`, wantErr: true},
		{in: `"-1"`, wantErr: true},
		{in: `"0xzz"`, wantErr: true},
		{in: `[1]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got Hex32
			err := yaml.Unmarshal([]byte(tt.in), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse(t *testing.T) {
	d, err := Parse([]byte(helloJSON), "/work")
	require.NoError(t, err)

	assert.Equal(t, Hex32(0x400000), d.ImageBase)
	assert.Equal(t, ReserveAndCommit{Reserve: 0x80000, Commit: 0x11000}, d.Stack)
	assert.Equal(t, ReserveAndCommit{Reserve: 0x100000, Commit: 0x1000}, d.Heap)
	assert.Nil(t, d.EntryPoint)
	require.NotNil(t, d.Code)
	assert.Equal(t, CodeSection{AddressRVA: 0x1000, Content: "hello.bin"}, *d.Code)
	require.NotNil(t, d.Data)
	assert.Equal(t, DataSection{AddressRVA: 0x2000, Size: 0x100}, *d.Data)
	require.NotNil(t, d.Imports)
	assert.Equal(t, Hex32(0x3000), d.Imports.AddressRVA)

	assert.Equal(t, []pe.ImportedLibrary{
		{Name: "USER32.DLL", Functions: []string{"MessageBoxA"}},
		{Name: "KERNEL32.DLL", Functions: []string{"ExitProcess"}},
	}, d.Libraries())

	assert.Equal(t, filepath.Join("/work", "hello.bin"), d.Path(d.Code.Content))
	assert.Equal(t, "/abs/code.bin", d.Path("/abs/code.bin"))
}

func TestParseDefaults(t *testing.T) {
	d, err := Parse([]byte("Code:\n  AddressRVA: 0x1000\n  Content: code.bin\nEntryPoint: \"0x1010\"\nGUI: true\n"), ".")
	require.NoError(t, err)

	assert.Equal(t, Hex32(pe.DefaultImageBase), d.ImageBase)
	assert.Equal(t, ReserveAndCommit{Reserve: pe.DefaultStackReserve, Commit: pe.DefaultStackCommit}, d.Stack)
	assert.Equal(t, ReserveAndCommit{Reserve: pe.DefaultHeapReserve, Commit: pe.DefaultHeapCommit}, d.Heap)
	require.NotNil(t, d.EntryPoint)
	assert.Equal(t, Hex32(0x1010), *d.EntryPoint)
	assert.True(t, d.GUI)
	assert.Nil(t, d.Data)
	assert.Nil(t, d.Imports)
	assert.Nil(t, d.Libraries())
	assert.Len(t, d.Options(), 5)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte(`{"ImageBase": "lots"}`), ".")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "code.bin", []byte{0xc3})
	writeFile(t, dir, "data.bin", []byte("hello"))

	tests := []struct {
		name     string
		doc      string
		warnings int
		errors   int
	}{
		{
			name: "code only",
			doc:  `{"Code": {"AddressRVA": "0x1000", "Content": "code.bin"}}`,
		},
		{
			name: "data from file",
			doc:  `{"Code": {"AddressRVA": "0x1000", "Content": "code.bin"}, "Data": {"AddressRVA": "0x2000", "Content": "data.bin"}}`,
		},
		{
			name:   "no code",
			doc:    `{"ImageBase": "0x400000"}`,
			errors: 1,
		},
		{
			name:   "missing code file",
			doc:    `{"Code": {"AddressRVA": "0x1000", "Content": "nope.bin"}}`,
			errors: 1,
		},
		{
			name:     "data without address",
			doc:      `{"Code": {"AddressRVA": "0x1000", "Content": "code.bin"}, "Data": {"Size": 16}}`,
			warnings: 1,
		},
		{
			name:   "data without size or content",
			doc:    `{"Code": {"AddressRVA": "0x1000", "Content": "code.bin"}, "Data": {"AddressRVA": "0x2000"}}`,
			errors: 1,
		},
		{
			name:   "everything wrong",
			doc:    `{"Data": {"AddressRVA": "0x2000", "Content": "nope.bin"}, "Imports": {"Libraries": [{"Functions": ["f"]}, {"Name": "A.DLL"}]}}`,
			errors: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse([]byte(tt.doc), dir)
			require.NoError(t, err)

			warnings, err := d.Validate()
			assert.Len(t, warnings, tt.warnings)
			if tt.errors == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Len(t, err.(interface{ WrappedErrors() []error }).WrappedErrors(), tt.errors)
		})
	}
}

func TestLoadAndBuild(t *testing.T) {
	dir := t.TempDir()
	code := []byte{0x6a, 0x00, 0xff, 0x15, 0x08, 0x30, 0x40, 0x00}
	writeFile(t, dir, "hello.bin", code)
	path := writeFile(t, dir, "hello.json", []byte(helloJSON))

	d, err := Load(path)
	require.NoError(t, err)
	_, err = d.Validate()
	require.NoError(t, err)

	b, functions, err := d.Build(nil)
	require.NoError(t, err)

	assert.Equal(t, []pe.ImportedFunction{
		{Library: "USER32.DLL", Name: "MessageBoxA", RVA: 0x3000, Address: 0x403000},
		{Library: "KERNEL32.DLL", Name: "ExitProcess", RVA: 0x3008, Address: 0x403008},
	}, functions)

	sections := b.Sections()
	require.Len(t, sections, 3)
	assert.Equal(t, code, sections[0].Content)
	assert.Equal(t, uint32(0x100), sections[1].Size)
	assert.Equal(t, pe.SectionImport, sections[2].Name)

	image, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("MZ"), image[:2])
}

func TestBuildDataFromFileAndPlaceholder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "code.bin", make([]byte, 0x1800))
	writeFile(t, dir, "data.bin", []byte("hello, world"))

	d, err := Parse([]byte(`{"Code": {"AddressRVA": "0x1000", "Content": "code.bin"}, "Data": {"AddressRVA": "0x4000", "Content": "data.bin", "Size": 1}}`), dir)
	require.NoError(t, err)
	b, functions, err := d.Build(nil)
	require.NoError(t, err)
	assert.Empty(t, functions)
	require.Len(t, b.Sections(), 2)
	assert.Equal(t, []byte("hello, world"), b.Sections()[1].Content, "content wins over size")

	d, err = Parse([]byte(`{"Code": {"AddressRVA": "0x1000", "Content": "code.bin"}}`), dir)
	require.NoError(t, err)
	b, _, err = d.Build(nil)
	require.NoError(t, err)
	_, err = b.Bytes()
	require.NoError(t, err)

	sections := b.Sections()
	require.Len(t, sections, 2)
	assert.Equal(t, pe.SectionData, sections[1].Name)
	assert.Equal(t, uint32(0x3000), sections[1].VirtualAddress)
	assert.Equal(t, uint32(1), sections[1].Size)
}

func TestBuildNoCode(t *testing.T) {
	d, err := Parse([]byte(`{}`), ".")
	require.NoError(t, err)
	_, _, err = d.Build(nil)
	assert.ErrorIs(t, err, pe.ErrNoCode)
}
