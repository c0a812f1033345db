package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/h2non/filetype"
	"github.com/ryanuber/columnize"
	"go.uber.org/zap"

	pe "github.com/wanglei-coder/createpe"
	"github.com/wanglei-coder/createpe/internal/descriptor"
)

type Summary struct {
	ImageBase    uint32
	EntryPoint   uint32
	FileSize     int
	ImpHash      string
	Authentihash string
	Sections     []*Section
}

type Section struct {
	Name           string
	MD5            string
	Flags          string
	FileType       string
	RawSize        uint32
	VirtualAddress uint32
	VirtualSize    uint32
	Entropy        float64
}

func getSections(b *pe.Builder) []*Section {
	sections := make([]*Section, 0, len(b.Sections()))
	for _, s := range b.Sections() {
		var section Section
		section.Name = s.Name
		section.RawSize = s.RawSize()
		section.VirtualAddress = s.VirtualAddress
		section.VirtualSize = s.VirtualSize()
		section.Flags = s.Flags()
		section.MD5 = s.MD5()
		section.Entropy = s.Entropy()
		section.FileType = GetFileType(s.Content)
		sections = append(sections, &section)
	}
	return sections
}

func summarize(b *pe.Builder, image []byte, libs []pe.ImportedLibrary) (*Summary, error) {
	digest, err := pe.Authentihash(image)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		ImageBase:    b.ImageBase(),
		EntryPoint:   b.EntryPoint(),
		FileSize:     len(image),
		Authentihash: hex.EncodeToString(digest),
		Sections:     getSections(b),
	}
	s.ImpHash, _ = pe.ImpHash(libs)
	return s, nil
}

func (s *Summary) writeJSON(w io.Writer) error {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func (s *Summary) writeTable(w io.Writer) {
	rows := []string{"NAME | RVA | VIRTUAL | RAW | FLAGS | ENTROPY | TYPE | MD5"}
	for _, section := range s.Sections {
		rows = append(rows, fmt.Sprintf("%s | 0x%x | %s | %s | %s | %.2f | %s | %s",
			section.Name,
			section.VirtualAddress,
			humanize.IBytes(uint64(section.VirtualSize)),
			humanize.IBytes(uint64(section.RawSize)),
			section.Flags,
			section.Entropy,
			section.FileType,
			section.MD5,
		))
	}
	fmt.Fprintln(w, columnize.SimpleFormat(rows))

	impHash := s.ImpHash
	if impHash == "" {
		impHash = "-"
	}
	fmt.Fprintln(w, columnize.SimpleFormat([]string{
		fmt.Sprintf("Image base: | 0x%x", s.ImageBase),
		fmt.Sprintf("Entry point: | 0x%x", s.EntryPoint),
		fmt.Sprintf("File size: | %s", humanize.IBytes(uint64(s.FileSize))),
		fmt.Sprintf("Imphash: | %s", impHash),
		fmt.Sprintf("Authentihash: | %s", s.Authentihash),
	}))
}

func GetFileType(data []byte) string {
	kind, _ := filetype.Match(data)
	if kind == filetype.Unknown {
		return "Data"
	}
	return kind.MIME.Value
}

// sniff warns about content files that look like whole files of a known
// type rather than raw section bytes.
func sniff(logger *zap.Logger, d *descriptor.Descriptor) {
	paths := map[string]string{}
	if d.Code != nil {
		paths["code"] = d.Path(d.Code.Content)
	}
	if d.Data != nil && d.Data.Content != "" {
		paths["data"] = d.Path(d.Data.Content)
	}

	for section, path := range paths {
		head, err := readHead(path)
		if err != nil {
			continue
		}
		if kind := GetFileType(head); kind != "Data" {
			logger.Warn("content file is not raw section bytes",
				zap.String("section", section),
				zap.String("path", path),
				zap.String("type", kind),
			)
		}
	}
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// filetype needs no more than the first 262 bytes
	head := make([]byte, 262)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return head[:n], nil
}
