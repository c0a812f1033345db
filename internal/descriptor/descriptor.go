// Package descriptor loads the document describing the image createpe builds.
//
// A descriptor is JSON or YAML:
//
//	{
//	  "ImageBase": "0x400000",
//	  "Stack": { "Reserve": "0x80000", "Commit": "0x11000" },
//	  "Code": { "AddressRVA": "0x1000", "Content": "hello.bin" },
//	  "Data": { "AddressRVA": "0x2000", "Size": "0x100" },
//	  "Imports": {
//	    "AddressRVA": "0x3000",
//	    "Libraries": [ { "Name": "KERNEL32.DLL", "Functions": [ "ExitProcess" ] } ]
//	  }
//	}
//
// Content paths are relative to the descriptor's directory.
package descriptor

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	pe "github.com/wanglei-coder/createpe"
)

type ReserveAndCommit struct {
	Reserve Hex32 `yaml:"Reserve"`
	Commit  Hex32 `yaml:"Commit"`
}

type CodeSection struct {
	AddressRVA Hex32  `yaml:"AddressRVA"`
	Content    string `yaml:"Content"`
}

// DataSection is filled from Content when set, otherwise zero-filled to Size.
type DataSection struct {
	AddressRVA Hex32  `yaml:"AddressRVA"`
	Size       Hex32  `yaml:"Size"`
	Content    string `yaml:"Content"`
}

type Library struct {
	Name      string   `yaml:"Name"`
	Functions []string `yaml:"Functions"`
}

type ImportsSection struct {
	AddressRVA Hex32     `yaml:"AddressRVA"`
	Libraries  []Library `yaml:"Libraries"`
}

type Descriptor struct {
	ImageBase  Hex32            `yaml:"ImageBase"`
	Stack      ReserveAndCommit `yaml:"Stack"`
	Heap       ReserveAndCommit `yaml:"Heap"`
	EntryPoint *Hex32           `yaml:"EntryPoint,omitempty"`
	GUI        bool             `yaml:"GUI,omitempty"`
	Code       *CodeSection     `yaml:"Code"`
	Data       *DataSection     `yaml:"Data,omitempty"`
	Imports    *ImportsSection  `yaml:"Imports,omitempty"`

	dir string
}

// Parse decodes a descriptor, filling in the defaults for any omitted
// header value. Relative content paths resolve against dir.
func Parse(in []byte, dir string) (*Descriptor, error) {
	d := &Descriptor{
		ImageBase: pe.DefaultImageBase,
		Stack:     ReserveAndCommit{Reserve: pe.DefaultStackReserve, Commit: pe.DefaultStackCommit},
		Heap:      ReserveAndCommit{Reserve: pe.DefaultHeapReserve, Commit: pe.DefaultHeapCommit},
		dir:       dir,
	}
	if err := yaml.Unmarshal(in, d); err != nil {
		return nil, errors.Wrap(err, "failed to parse descriptor")
	}
	return d, nil
}

// Load reads and parses the descriptor at path.
func Load(path string) (*Descriptor, error) {
	in, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read descriptor")
	}
	return Parse(in, filepath.Dir(path))
}

// Path resolves a content path from the descriptor.
func (d *Descriptor) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(d.dir, p)
}

// Validate checks that the descriptor can produce an image. Problems that
// still allow a build are returned as warnings.
func (d *Descriptor) Validate() ([]string, error) {
	var (
		warnings []string
		result   *multierror.Error
	)

	if d.Code == nil {
		result = multierror.Append(result, errors.New("no code specified"))
	} else if err := checkFile(d.Path(d.Code.Content)); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "code"))
	}

	if d.Data != nil {
		if d.Data.AddressRVA == 0 {
			warnings = append(warnings, "data section address must be specified")
		}
		if d.Data.Content == "" {
			if d.Data.Size == 0 {
				result = multierror.Append(result, errors.New("data section size or content must be specified"))
			}
		} else if err := checkFile(d.Path(d.Data.Content)); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "data"))
		}
	}

	if d.Imports != nil {
		for i, lib := range d.Imports.Libraries {
			if lib.Name == "" {
				result = multierror.Append(result, errors.Errorf("library %d has no name", i))
			}
			if len(lib.Functions) == 0 {
				result = multierror.Append(result, errors.Errorf("library %q imports no functions", lib.Name))
			}
		}
	}

	return warnings, result.ErrorOrNil()
}

func checkFile(path string) error {
	if path == "" {
		return errors.New("no content file specified")
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Errorf("%s does not exist", path)
		}
		return errors.WithStack(err)
	}
	if info.IsDir() {
		return errors.Errorf("%s is a directory", path)
	}
	return nil
}

// Options translates the header values into builder options.
func (d *Descriptor) Options() []pe.Option {
	opts := []pe.Option{
		pe.WithImageBase(uint32(d.ImageBase)),
		pe.WithStack(uint32(d.Stack.Reserve), uint32(d.Stack.Commit)),
		pe.WithHeap(uint32(d.Heap.Reserve), uint32(d.Heap.Commit)),
	}
	if d.EntryPoint != nil {
		opts = append(opts, pe.WithEntryPoint(uint32(*d.EntryPoint)))
	}
	if d.GUI {
		opts = append(opts, pe.WithSubsystem(pe.ImageSubsystemWindowsGUI))
	}
	return opts
}

// Libraries returns the imports in builder form.
func (d *Descriptor) Libraries() []pe.ImportedLibrary {
	if d.Imports == nil {
		return nil
	}
	libs := make([]pe.ImportedLibrary, 0, len(d.Imports.Libraries))
	for _, lib := range d.Imports.Libraries {
		libs = append(libs, pe.ImportedLibrary{Name: lib.Name, Functions: lib.Functions})
	}
	return libs
}

// Build creates a builder populated with the descriptor's sections and
// returns it with the resolved imports. A descriptor without a data section
// relies on the builder's placeholder.
func (d *Descriptor) Build(logger *zap.Logger, opts ...pe.Option) (*pe.Builder, []pe.ImportedFunction, error) {
	if d.Code == nil {
		return nil, nil, pe.ErrNoCode
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts = append(d.Options(), append(opts, pe.WithLogger(logger))...)
	b := pe.NewBuilder(opts...)

	code, err := os.ReadFile(d.Path(d.Code.Content))
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read code")
	}
	if err = b.AddCode(uint32(d.Code.AddressRVA), code); err != nil {
		return nil, nil, err
	}

	if d.Data != nil {
		if d.Data.Content == "" {
			err = b.AddDataSize(uint32(d.Data.AddressRVA), uint32(d.Data.Size))
		} else {
			var data []byte
			data, err = os.ReadFile(d.Path(d.Data.Content))
			if err != nil {
				return nil, nil, errors.Wrap(err, "failed to read data")
			}
			err = b.AddData(uint32(d.Data.AddressRVA), data)
		}
		if err != nil {
			return nil, nil, err
		}
	}

	var functions []pe.ImportedFunction
	if d.Imports != nil {
		functions, err = b.AddImports(uint32(d.Imports.AddressRVA), d.Libraries())
		if err != nil {
			return nil, nil, err
		}
	}

	logger.Debug("descriptor applied",
		zap.Int("sections", len(b.Sections())),
		zap.Int("imports", len(functions)),
	)
	return b, functions, nil
}
