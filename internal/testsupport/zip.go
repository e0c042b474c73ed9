package testsupport

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// BuildArchive writes a zip archive at path with the given members. Member
// order is deterministic so identical inputs yield identical bytes.
func BuildArchive(t testing.TB, path string, members map[string][]byte) {
	t.Helper()

	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for _, name := range names {
		entry, err := writer.Create(name)
		if err != nil {
			t.Fatalf("create zip member %s: %v", name, err)
		}
		if _, err := entry.Write(members[name]); err != nil {
			t.Fatalf("write zip member %s: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("finalize zip: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// ArticleXMLOptions tune the canned JATS document.
type ArticleXMLOptions struct {
	JournalTitle   string
	ISSNPrint      string
	ISSNElectronic string
	ArticleTitle   string
	Year           string
	Month          string
	Volume         string
	Issue          string
	DOI            string
	Section        string
	License        bool
	RefListXML     string
}

// ArticleXML renders a minimal JATS document for fixtures. Zero-value
// options yield a complete, well-formed article.
func ArticleXML(opts ArticleXMLOptions) []byte {
	if opts.JournalTitle == "" {
		opts.JournalTitle = "Brazilian Journal of Medical and Biological Research"
	}
	if opts.ISSNPrint == "" && opts.ISSNElectronic == "" {
		opts.ISSNPrint = "0100-879X"
	}
	if opts.ArticleTitle == "" {
		opts.ArticleTitle = "Effects of caffeine on isolated muscle fibres"
	}
	if opts.Year == "" {
		opts.Year = "1999"
	}
	if opts.Month == "" {
		opts.Month = "09"
	}
	if opts.Volume == "" {
		opts.Volume = "32"
	}
	if opts.Issue == "" {
		opts.Issue = "9"
	}
	if opts.Section == "" {
		opts.Section = "Original Articles"
	}
	if opts.RefListXML == "" {
		opts.RefListXML = `<ref-list>
      <ref id="r1"><element-citation publication-type="journal">
        <article-title>On muscle fibres</article-title>
        <source>J Physiol</source><year>1998</year>
      </element-citation></ref>
    </ref-list>`
	}

	issns := ""
	if opts.ISSNPrint != "" {
		issns += fmt.Sprintf(`<issn pub-type="ppub">%s</issn>`, opts.ISSNPrint)
	}
	if opts.ISSNElectronic != "" {
		issns += fmt.Sprintf(`<issn pub-type="epub">%s</issn>`, opts.ISSNElectronic)
	}
	doi := ""
	if opts.DOI != "" {
		doi = fmt.Sprintf(`<article-id pub-id-type="doi">%s</article-id>`, opts.DOI)
	}
	license := ""
	if opts.License {
		license = `<permissions><license><license-p>Open access.</license-p></license></permissions>`
	}

	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<article>
  <front>
    <journal-meta>
      <journal-title>%s</journal-title>
      %s
      <publisher><publisher-name>Associação Brasileira</publisher-name></publisher>
    </journal-meta>
    <article-meta>
      %s
      <article-categories>
        <subj-group subj-group-type="heading"><subject>%s</subject></subj-group>
      </article-categories>
      <title-group><article-title>%s</article-title></title-group>
      <pub-date><month>%s</month><year>%s</year></pub-date>
      <volume>%s</volume>
      <issue>%s</issue>
      %s
    </article-meta>
  </front>
  <back>
    %s
  </back>
</article>`,
		opts.JournalTitle, issns, doi, opts.Section, opts.ArticleTitle,
		opts.Month, opts.Year, opts.Volume, opts.Issue, license, opts.RefListXML))
}

// BuildArticleArchive writes a complete package fixture (XML plus PDF) at
// path and returns the member map used.
func BuildArticleArchive(t testing.TB, path string, opts ArticleXMLOptions) map[string][]byte {
	t.Helper()

	members := map[string][]byte{
		"article.xml": ArticleXML(opts),
		"article.pdf": []byte("%PDF-1.4 fixture"),
	}
	BuildArchive(t, path, members)
	return members
}
