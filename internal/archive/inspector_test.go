package archive_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"hopper/internal/archive"
	"hopper/internal/testsupport"
)

func TestChecksumDeterminism(t *testing.T) {
	dir := t.TempDir()
	members := map[string][]byte{
		"article.xml": []byte("<article/>"),
		"article.pdf": []byte("%PDF"),
	}
	first := filepath.Join(dir, "a.zip")
	second := filepath.Join(dir, "b.zip")
	testsupport.BuildArchive(t, first, members)
	testsupport.BuildArchive(t, second, members)

	sumA, err := archive.Checksum(first)
	if err != nil {
		t.Fatalf("Checksum: %v", err)
	}
	sumB, err := archive.Checksum(second)
	if err != nil {
		t.Fatalf("Checksum: %v", err)
	}
	if sumA != sumB {
		t.Fatalf("identical content produced different checksums: %s vs %s", sumA, sumB)
	}
}

func TestOpenRejectsNonArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-zip.zip")
	if err := writeFile(path, []byte("plain text")); err != nil {
		t.Fatal(err)
	}

	_, err := archive.Open(path)
	if !errors.Is(err, archive.ErrCorruptArchive) {
		t.Fatalf("expected ErrCorruptArchive, got %v", err)
	}
}

func TestPrimaryDocumentRequiresExactlyOneXML(t *testing.T) {
	tests := []struct {
		name    string
		members map[string][]byte
	}{
		{"no xml", map[string][]byte{"article.pdf": []byte("%PDF")}},
		{"two xml", map[string][]byte{
			"a.xml": []byte("<article/>"),
			"b.xml": []byte("<article/>"),
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "pkg.zip")
			testsupport.BuildArchive(t, path, tc.members)

			insp, err := archive.Open(path)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer insp.Close()

			if _, err := insp.PrimaryDocument(); !errors.Is(err, archive.ErrAmbiguousDocument) {
				t.Fatalf("expected ErrAmbiguousDocument, got %v", err)
			}
		})
	}
}

func TestMetadataExtraction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pkg.zip")
	testsupport.BuildArticleArchive(t, path, testsupport.ArticleXMLOptions{})

	insp, err := archive.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer insp.Close()

	meta, err := insp.Metadata()
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}

	if got := meta[archive.FieldISSNPrint]; got != "0100-879X" {
		t.Errorf("print ISSN = %q", got)
	}
	if got := meta[archive.FieldArticleTitle]; got == "" {
		t.Error("article title missing")
	}
	if got := meta[archive.FieldYear]; got != "1999" {
		t.Errorf("year = %q", got)
	}
	if got := meta[archive.FieldVolume]; got != "32" {
		t.Errorf("volume = %q", got)
	}
	// Absent fields are present with empty values.
	if _, ok := meta[archive.FieldSupplVolume]; !ok {
		t.Error("suppl volume field omitted from mapping")
	}
}

func TestMetadataSupplementSplitting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pkg.zip")
	testsupport.BuildArticleArchive(t, path, testsupport.ArticleXMLOptions{
		Volume: "4 Suppl 1",
		Issue:  "2 Suppl",
	})

	insp, err := archive.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer insp.Close()

	meta, err := insp.Metadata()
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if meta[archive.FieldVolume] != "4" || meta[archive.FieldSupplVolume] != "1" {
		t.Errorf("volume split = %q/%q", meta[archive.FieldVolume], meta[archive.FieldSupplVolume])
	}
	if meta[archive.FieldNumber] != "2" || meta[archive.FieldSupplNumber] != "0" {
		t.Errorf("number split = %q/%q", meta[archive.FieldNumber], meta[archive.FieldSupplNumber])
	}
}

func TestMembersByExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pkg.zip")
	testsupport.BuildArchive(t, path, map[string][]byte{
		"article.xml": []byte("<article/>"),
		"fig1.jpg":    []byte("jpeg"),
		"fig2.JPG":    []byte("jpeg"),
	})

	insp, err := archive.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer insp.Close()

	names, err := insp.MembersByExtension("jpg")
	if err != nil {
		t.Fatalf("MembersByExtension: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 jpg members, got %v", names)
	}

	if _, err := insp.MembersByExtension("tiff"); !errors.Is(err, archive.ErrNoSuchMember) {
		t.Fatalf("expected ErrNoSuchMember, got %v", err)
	}
	if members := insp.OpenMembers("tiff"); len(members) != 0 {
		t.Fatalf("OpenMembers on absent extension should be empty, got %d", len(members))
	}
}

func TestExtractSubset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pkg.zip")
	testsupport.BuildArchive(t, path, map[string][]byte{
		"article.xml": []byte("<article/>"),
		"fig1.jpg":    []byte("jpeg-bytes"),
	})

	insp, err := archive.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer insp.Close()

	subset, err := insp.ExtractSubset("fig1.jpg")
	if err != nil {
		t.Fatalf("ExtractSubset: %v", err)
	}
	content, err := io.ReadAll(subset)
	if err != nil {
		t.Fatalf("read subset: %v", err)
	}
	if len(content) == 0 {
		t.Fatal("subset stream is empty")
	}

	if _, err := insp.ExtractSubset("missing.png"); !errors.Is(err, archive.ErrNoSuchMember) {
		t.Fatalf("expected ErrNoSuchMember, got %v", err)
	}
}

func writeFile(path string, content []byte) error {
	return os.WriteFile(path, content, 0o644)
}

func TestLooksLikeArchive(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "pkg.zip")
	testsupport.BuildArchive(t, zipPath, map[string][]byte{"a.xml": []byte("<a/>")})
	textPath := filepath.Join(dir, "note.txt")
	if err := writeFile(textPath, []byte("hello")); err != nil {
		t.Fatal(err)
	}

	if !archive.LooksLikeArchive(zipPath) {
		t.Error("zip not recognized")
	}
	if archive.LooksLikeArchive(textPath) {
		t.Error("text file misrecognized as archive")
	}
}
