package archive

import (
	"strings"
)

// Metadata field names. Every field is always present in the returned
// mapping; an absent value is the empty string.
const (
	FieldJournalTitle   = "journal_title"
	FieldISSNPrint      = "issn_print"
	FieldISSNElectronic = "issn_electronic"
	FieldArticleTitle   = "article_title"
	FieldYear           = "year"
	FieldVolume         = "volume"
	FieldNumber         = "number"
	FieldSupplVolume    = "suppl_volume"
	FieldSupplNumber    = "suppl_number"
)

var metadataFields = []string{
	FieldJournalTitle,
	FieldISSNPrint,
	FieldISSNElectronic,
	FieldArticleTitle,
	FieldYear,
	FieldVolume,
	FieldNumber,
	FieldSupplVolume,
	FieldSupplNumber,
}

// Metadata maps bibliographic field names to extracted values.
type Metadata map[string]string

// Metadata evaluates the fixed set of bibliographic lookups against the
// primary document. Absent fields are represented with empty values, not
// omitted.
func (i *Inspector) Metadata() (Metadata, error) {
	doc, err := i.PrimaryDocument()
	if err != nil {
		return nil, err
	}

	meta := make(Metadata, len(metadataFields))
	for _, field := range metadataFields {
		meta[field] = ""
	}

	if journalMeta := doc.First("journal-meta"); journalMeta != nil {
		meta[FieldJournalTitle] = journalMeta.ChildText("journal-title")
		for _, issn := range journalMeta.All("issn") {
			switch issn.Attr("pub-type") {
			case "ppub":
				meta[FieldISSNPrint] = issn.Text()
			case "epub":
				meta[FieldISSNElectronic] = issn.Text()
			}
		}
	}

	articleMeta := doc.First("article-meta")
	if articleMeta == nil {
		return meta, nil
	}
	if titleGroup := articleMeta.First("title-group"); titleGroup != nil {
		meta[FieldArticleTitle] = titleGroup.ChildText("article-title")
	}
	if pubDate := articleMeta.First("pub-date"); pubDate != nil {
		meta[FieldYear] = pubDate.ChildText("year")
	}

	volume, supplVolume := splitSupplement(articleMeta.ChildText("volume"))
	number, supplNumber := splitSupplement(articleMeta.ChildText("issue"))
	meta[FieldVolume] = volume
	meta[FieldNumber] = number
	meta[FieldSupplVolume] = supplVolume
	meta[FieldSupplNumber] = supplNumber

	return meta, nil
}

// splitSupplement separates a supplement qualifier from a volume or issue
// value: "4 Suppl 1" yields ("4", "1") and "4 Suppl" yields ("4", "0").
func splitSupplement(value string) (base, suppl string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ""
	}
	lower := strings.ToLower(value)
	idx := strings.Index(lower, "suppl")
	if idx < 0 {
		return value, ""
	}
	base = strings.TrimSpace(value[:idx])
	rest := strings.TrimSpace(value[idx+len("suppl"):])
	rest = strings.TrimPrefix(rest, ".")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		rest = "0"
	}
	return base, rest
}
