package descriptor

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Hex32 is a 32-bit value written either as a number or as a string holding
// a decimal or 0x-prefixed hexadecimal number.
type Hex32 uint32

func (h *Hex32) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return errors.Errorf("line %d: expected a number, got %s", value.Line, kindName(value.Kind))
	}

	s := strings.TrimSpace(value.Value)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}

	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return errors.Wrapf(err, "line %d: invalid 32-bit value %q", value.Line, value.Value)
	}
	*h = Hex32(v)
	return nil
}

func (h Hex32) String() string {
	return "0x" + strconv.FormatUint(uint64(h), 16)
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.AliasNode:
		return "alias"
	case yaml.DocumentNode:
		return "document"
	default:
		return "scalar"
	}
}
