package pe

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"hash"
	"sort"

	"github.com/pkg/errors"
)

func AuthentihashSha256(image []byte) ([]byte, error) {
	return AuthentihashWith(image, sha256.New())
}

func AuthentihashSha1(image []byte) ([]byte, error) {
	return AuthentihashWith(image, sha1.New())
}

func AuthentihashMd5(image []byte) ([]byte, error) {
	return AuthentihashWith(image, md5.New())
}

// Authentihash is the SHA-256 Authenticode digest of a serialized image.
func Authentihash(image []byte) ([]byte, error) {
	return AuthentihashWith(image, sha256.New())
}

// AuthentihashWith hashes image with hasher, skipping the checksum field and
// the certificate table directory entry.
func AuthentihashWith(image []byte, hasher hash.Hash) ([]byte, error) {
	locations, err := headerLocations(image)
	if err != nil {
		return nil, err
	}
	sort.Sort(byStart(locations))

	start := uint32(0)
	for _, r := range locations {
		hasher.Write(image[start:r.Start])
		start = r.Start + r.Length
	}
	hasher.Write(image[start:])
	return hasher.Sum(nil), nil
}

type RelRange struct {
	Start  uint32
	Length uint32
}

type byStart []RelRange

func (s byStart) Len() int           { return len(s) }
func (s byStart) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s byStart) Less(i, j int) bool { return s[i].Start < s[j].Start }

func headerLocations(image []byte) ([]RelRange, error) {
	size := uint32(len(image))
	if size < DOSHeaderSize {
		return nil, errors.Wrapf(ErrImageTooSmall, "%d bytes", size)
	}

	lfanew := binary.LittleEndian.Uint32(image[offsetDOSHeaderLfanew:])
	optionalHeaderOffset := lfanew + offsetOptionalHeader
	if uint64(optionalHeaderOffset)+OptionalHeader32Size > uint64(size) {
		return nil, errors.Wrapf(ErrImageTooSmall, "optional header at 0x%x exceeds %d bytes",
			optionalHeaderOffset, size)
	}

	certBase := optionalHeaderOffset + offsetDataDirectories + ImageDirectoryEntrySecurity*DataDirectorySize
	return []RelRange{
		{Start: optionalHeaderOffset + offsetOptionalChecksum, Length: 4},
		{Start: certBase, Length: DataDirectorySize},
	}, nil
}
