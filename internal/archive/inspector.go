package archive

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
)

// Inspector opens a submission package and exposes its structure.
type Inspector struct {
	path    string
	reader  *zip.ReadCloser
	byExt   map[string][]string
	byName  map[string]*zip.File
	primary *Document
}

// Open inspects the archive at path. Returns ErrCorruptArchive when the file
// is not a valid zip container.
func Open(archivePath string) (*Inspector, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptArchive, archivePath, err)
	}

	insp := &Inspector{
		path:   archivePath,
		reader: reader,
		byExt:  make(map[string][]string),
		byName: make(map[string]*zip.File),
	}
	for _, file := range reader.File {
		if file.FileInfo().IsDir() || file.UncompressedSize64 == 0 {
			continue
		}
		ext := normalizeExt(path.Ext(file.Name))
		if ext == "" {
			continue
		}
		insp.byExt[ext] = append(insp.byExt[ext], file.Name)
		insp.byName[file.Name] = file
	}
	for _, names := range insp.byExt {
		sort.Strings(names)
	}
	return insp, nil
}

// Close releases the underlying zip reader.
func (i *Inspector) Close() error {
	if i == nil || i.reader == nil {
		return nil
	}
	return i.reader.Close()
}

// Path returns the inspected archive location.
func (i *Inspector) Path() string {
	return i.path
}

// MembersByExtension returns the member names carrying ext. Fails with
// ErrNoSuchMember when the extension is absent.
func (i *Inspector) MembersByExtension(ext string) ([]string, error) {
	names, ok := i.byExt[normalizeExt(ext)]
	if !ok {
		return nil, fmt.Errorf("%w: extension %q", ErrNoSuchMember, ext)
	}
	cp := make([]string, len(names))
	copy(cp, names)
	return cp, nil
}

// Member is a lazy handle on one archive entry.
type Member struct {
	Name string
	file *zip.File
}

// Open returns a reader over the member's content.
func (m Member) Open() (io.ReadCloser, error) {
	rc, err := m.file.Open()
	if err != nil {
		return nil, fmt.Errorf("open member %s: %w", m.Name, err)
	}
	return rc, nil
}

// OpenMembers returns lazy handles for all members with the given extension.
// An absent extension yields an empty slice, never an error; callers test
// emptiness.
func (i *Inspector) OpenMembers(ext string) []Member {
	names := i.byExt[normalizeExt(ext)]
	members := make([]Member, 0, len(names))
	for _, name := range names {
		members = append(members, Member{Name: name, file: i.byName[name]})
	}
	return members
}

// PrimaryDocument parses the single XML member. Fails with
// ErrAmbiguousDocument when the archive holds zero or more than one XML
// member.
func (i *Inspector) PrimaryDocument() (*Document, error) {
	if i.primary != nil {
		return i.primary, nil
	}
	names := i.byExt["xml"]
	if len(names) != 1 {
		return nil, fmt.Errorf("%w: found %d", ErrAmbiguousDocument, len(names))
	}

	rc, err := i.byName[names[0]].Open()
	if err != nil {
		return nil, fmt.Errorf("open document %s: %w", names[0], err)
	}
	defer rc.Close()

	doc, err := ParseDocument(rc)
	if err != nil {
		return nil, fmt.Errorf("parse document %s: %w", names[0], err)
	}
	i.primary = doc
	return doc, nil
}

// ExtractSubset repackages the named members into a new in-memory zip
// stream. Unknown names fail with ErrNoSuchMember.
func (i *Inspector) ExtractSubset(names ...string) (*bytes.Reader, error) {
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for _, name := range names {
		file, ok := i.byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: member %q", ErrNoSuchMember, name)
		}
		dst, err := writer.Create(name)
		if err != nil {
			return nil, fmt.Errorf("create subset member %s: %w", name, err)
		}
		src, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open subset member %s: %w", name, err)
		}
		if _, err := io.Copy(dst, src); err != nil {
			src.Close()
			return nil, fmt.Errorf("copy subset member %s: %w", name, err)
		}
		src.Close()
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize subset: %w", err)
	}
	return bytes.NewReader(buf.Bytes()), nil
}

// Checksum computes the SHA-256 hex digest over the raw archive bytes.
// Identical byte content always yields the same digest.
func Checksum(archivePath string) (string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hash archive: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// LooksLikeArchive sniffs the zip magic bytes without opening the container.
// Used by the dispatch layer to drop non-archives cheaply.
func LooksLikeArchive(archivePath string) bool {
	file, err := os.Open(archivePath)
	if err != nil {
		return false
	}
	defer file.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(file, magic); err != nil {
		return false
	}
	return bytes.Equal(magic, []byte{'P', 'K', 0x03, 0x04})
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
