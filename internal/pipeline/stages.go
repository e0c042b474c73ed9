package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"hopper/internal/archive"
	"hopper/internal/store"
)

// DefaultStages returns the registered stage list in execution order.
func DefaultStages() []Stage {
	return []Stage{
		FundingStage{},
		IdentifierStage{},
		LicenseStage{},
		SectionStage{},
		PublicationDateStage{},
		JournalRecordStage{},
		ReferencesStage{},
	}
}

// validOnly is the universal precondition: a stage only runs against a
// still-valid attempt.
type validOnly struct{}

func (validOnly) Applies(item *Item) bool {
	return item != nil && item.Attempt != nil && item.Attempt.IsValid
}

func documentOrError(item *Item) (*archive.Document, store.Status, string) {
	doc, err := item.Document()
	if err != nil {
		return nil, store.StatusError, fmt.Sprintf("cannot read primary document: %v", err)
	}
	return doc, "", ""
}

// FundingStage checks that declared funding and the acknowledgment text
// agree: every award id must be cited in the acknowledgment, and an
// acknowledgment citing contract numbers without a funding declaration is
// suspicious.
type FundingStage struct{ validOnly }

func (FundingStage) Name() string { return "funding" }

func (FundingStage) Validate(_ context.Context, item *Item) (store.Status, string) {
	doc, status, message := documentOrError(item)
	if doc == nil {
		return status, message
	}

	funding := doc.First("funding-group")
	ack := doc.First("ack")

	if funding == nil {
		if ack != nil && containsDigits(ack.Text()) {
			return store.StatusWarning, "acknowledgment cites numbers but no funding-group is declared"
		}
		return store.StatusOK, "no funding disclosure declared"
	}

	var awards []string
	for _, award := range funding.All("award-id") {
		if text := award.Text(); text != "" {
			awards = append(awards, text)
		}
	}
	if len(awards) == 0 {
		return store.StatusWarning, "funding-group declared without award ids"
	}
	if ack == nil {
		return store.StatusError, "funding-group declared but the acknowledgment section is missing"
	}

	ackText := normalizeTitle(ack.Text())
	var missing []string
	for _, award := range awards {
		if !strings.Contains(ackText, normalizeTitle(award)) {
			missing = append(missing, award)
		}
	}
	if len(missing) > 0 {
		return store.StatusError, fmt.Sprintf("award ids not cited in acknowledgment: %s", strings.Join(missing, ", "))
	}
	return store.StatusOK, "funding disclosure consistent with acknowledgment"
}

func containsDigits(value string) bool {
	return strings.ContainsAny(value, "0123456789")
}

var doiPattern = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)

// IdentifierStage validates the DOI format and confirms its registration
// with the editorial system. A registry outage downgrades to a warning;
// transport trouble never fails a submission outright.
type IdentifierStage struct{ validOnly }

func (IdentifierStage) Name() string { return "identifier" }

func (IdentifierStage) Validate(ctx context.Context, item *Item) (store.Status, string) {
	doc, status, message := documentOrError(item)
	if doc == nil {
		return status, message
	}

	var doi string
	for _, node := range doc.All("article-id") {
		if node.Attr("pub-id-type") == "doi" {
			doi = node.Text()
			break
		}
	}
	if doi == "" {
		return store.StatusWarning, "no doi declared"
	}
	if !doiPattern.MatchString(doi) {
		return store.StatusError, fmt.Sprintf("doi %q is not well formed", doi)
	}
	if item.Editorial == nil {
		return store.StatusWarning, fmt.Sprintf("doi %s well formed; registration not checked", doi)
	}

	registered, err := item.Editorial.IsRegisteredDOI(ctx, doi)
	if err != nil {
		return store.StatusWarning, fmt.Sprintf("doi registry unreachable: %v", err)
	}
	if !registered {
		return store.StatusError, fmt.Sprintf("doi %s is not registered", doi)
	}
	return store.StatusOK, fmt.Sprintf("doi %s registered", doi)
}

// LicenseStage requires a license statement in the document.
type LicenseStage struct{ validOnly }

func (LicenseStage) Name() string { return "license" }

func (LicenseStage) Validate(_ context.Context, item *Item) (store.Status, string) {
	doc, status, message := documentOrError(item)
	if doc == nil {
		return status, message
	}
	license := doc.First("license")
	if license == nil || license.Text() == "" {
		return store.StatusError, "no license statement present"
	}
	return store.StatusOK, "license statement present"
}

// SectionStage checks the article's section heading against the issue's
// registered section titles, case- and diacritic-insensitively.
type SectionStage struct{ validOnly }

func (SectionStage) Name() string { return "section" }

func (SectionStage) Validate(_ context.Context, item *Item) (store.Status, string) {
	doc, status, message := documentOrError(item)
	if doc == nil {
		return status, message
	}

	var heading string
	for _, group := range doc.All("subj-group") {
		groupType := group.Attr("subj-group-type")
		if groupType == "" || groupType == "heading" {
			heading = group.ChildText("subject")
			if heading != "" {
				break
			}
		}
	}
	if heading == "" {
		return store.StatusError, "article declares no section heading"
	}
	if item.Issue == nil || len(item.Issue.SectionTitles) == 0 {
		return store.StatusWarning, fmt.Sprintf("issue registers no section titles; found %q", heading)
	}
	for _, title := range item.Issue.SectionTitles {
		if titlesEqual(heading, title) {
			return store.StatusOK, fmt.Sprintf("section %q registered for the issue", heading)
		}
	}
	return store.StatusError, fmt.Sprintf("section %q not registered for the issue (registered: %s)",
		heading, strings.Join(item.Issue.SectionTitles, "; "))
}

// PublicationDateStage checks the document's pub-date against the issue's
// declared publication window. Months may be numeric or three-letter
// abbreviations; season issues may carry a month range.
type PublicationDateStage struct{ validOnly }

func (PublicationDateStage) Name() string { return "publication-date" }

func (PublicationDateStage) Validate(_ context.Context, item *Item) (store.Status, string) {
	doc, status, message := documentOrError(item)
	if doc == nil {
		return status, message
	}
	if item.Issue == nil {
		return store.StatusError, "no issue context to check the publication date against"
	}

	pubDate := doc.First("pub-date")
	if pubDate == nil {
		return store.StatusError, "document declares no pub-date"
	}

	year := pubDate.ChildText("year")
	monthValue := pubDate.ChildText("month")
	if monthValue == "" {
		monthValue = pubDate.ChildText("season")
	}

	foundStart, foundEnd, ok := parseMonthRange(monthValue)
	if !ok {
		return store.StatusError, fmt.Sprintf("cannot interpret publication month %q", monthValue)
	}

	expectedStart := item.Issue.MonthStart
	expectedEnd := item.Issue.MonthEnd
	if expectedEnd == 0 {
		expectedEnd = expectedStart
	}

	found := formatDateWindow(foundStart, foundEnd, year)
	expected := formatDateWindow(expectedStart, expectedEnd, item.Issue.Year)

	if item.Issue.Year != "" && year != item.Issue.Year {
		return store.StatusError, fmt.Sprintf("publication date %s outside issue window %s", found, expected)
	}
	if foundStart < expectedStart || foundEnd > expectedEnd {
		return store.StatusError, fmt.Sprintf("publication date %s outside issue window %s", found, expected)
	}
	return store.StatusOK, fmt.Sprintf("publication date %s within issue window %s", found, expected)
}

var monthAbbrevs = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

func parseMonth(value string) (int, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if month, err := strconv.Atoi(value); err == nil {
		if month >= 1 && month <= 12 {
			return month, true
		}
		return 0, false
	}
	lowered := strings.ToLower(value)
	if len(lowered) > 3 {
		lowered = lowered[:3]
	}
	month, ok := monthAbbrevs[lowered]
	return month, ok
}

// parseMonthRange accepts "9", "09", "Sep", or season ranges like
// "Sep-Oct" and "Sep/Oct".
func parseMonthRange(value string) (start, end int, ok bool) {
	value = strings.TrimSpace(value)
	for _, sep := range []string{"-", "/"} {
		if left, right, found := strings.Cut(value, sep); found {
			start, okStart := parseMonth(left)
			end, okEnd := parseMonth(right)
			if okStart && okEnd && start <= end {
				return start, end, true
			}
			return 0, 0, false
		}
	}
	month, ok := parseMonth(value)
	return month, month, ok
}

func formatDateWindow(start, end int, year string) string {
	if year == "" {
		year = "?"
	}
	if end == 0 || end == start {
		return fmt.Sprintf("%02d/%s", start, year)
	}
	return fmt.Sprintf("%02d-%02d/%s", start, end, year)
}

// JournalRecordStage compares the document's publisher name, abbreviated
// journal title, and NLM title against the editorial system's journal
// record.
type JournalRecordStage struct{ validOnly }

func (JournalRecordStage) Name() string { return "journal-record" }

func (JournalRecordStage) Validate(_ context.Context, item *Item) (store.Status, string) {
	doc, status, message := documentOrError(item)
	if doc == nil {
		return status, message
	}
	if item.Journal == nil {
		return store.StatusError, "no journal record to compare against"
	}

	var nlmTitle string
	for _, id := range doc.All("journal-id") {
		if id.Attr("journal-id-type") == "nlm-ta" {
			nlmTitle = id.Text()
			break
		}
	}

	checks := []struct {
		name     string
		declared string
		expected string
	}{
		{"publisher name", doc.First("publisher").ChildText("publisher-name"), item.Journal.Publisher},
		{"abbreviated journal title", doc.First("abbrev-journal-title").Text(), item.Journal.AbbrevTitle},
		{"nlm title", nlmTitle, item.Journal.NLMTitle},
	}

	var mismatches []string
	for _, check := range checks {
		if check.expected == "" {
			continue
		}
		if !titlesEqual(check.declared, check.expected) {
			mismatches = append(mismatches, fmt.Sprintf("%s %q does not match registered %q",
				check.name, check.declared, check.expected))
		}
	}
	if len(mismatches) > 0 {
		return store.StatusError, strings.Join(mismatches, "; ")
	}
	return store.StatusOK, "journal record fields match"
}

var yearPattern = regexp.MustCompile(`^\d{4}$`)

// ReferencesStage requires every reference to carry a source and a 4-digit
// year, and journal references an article title. Offenders are aggregated
// into one description keyed by reference id.
type ReferencesStage struct{ validOnly }

func (ReferencesStage) Name() string { return "references" }

func (ReferencesStage) Validate(_ context.Context, item *Item) (store.Status, string) {
	doc, status, message := documentOrError(item)
	if doc == nil {
		return status, message
	}

	refList := doc.First("ref-list")
	if refList == nil {
		return store.StatusWarning, "document carries no reference list"
	}

	refs := refList.All("ref")
	var offenders []string
	for idx, ref := range refs {
		id := ref.Attr("id")
		if id == "" {
			id = fmt.Sprintf("#%d", idx+1)
		}

		var problems []string
		if ref.ChildText("source") == "" {
			problems = append(problems, "missing source")
		}
		if !yearPattern.MatchString(ref.ChildText("year")) {
			problems = append(problems, "missing or malformed year")
		}
		if referenceType(ref) == "journal" && ref.ChildText("article-title") == "" {
			problems = append(problems, "missing article title")
		}
		if len(problems) > 0 {
			offenders = append(offenders, fmt.Sprintf("%s: %s", id, strings.Join(problems, ", ")))
		}
	}
	if len(offenders) > 0 {
		return store.StatusError, fmt.Sprintf("incomplete references: %s", strings.Join(offenders, "; "))
	}
	return store.StatusOK, fmt.Sprintf("%d references complete", len(refs))
}

func referenceType(ref *archive.Node) string {
	for _, name := range []string{"element-citation", "mixed-citation", "citation", "nlm-citation"} {
		if citation := ref.First(name); citation != nil {
			if kind := citation.Attr("publication-type"); kind != "" {
				return kind
			}
			if kind := citation.Attr("citation-type"); kind != "" {
				return kind
			}
		}
	}
	return ""
}
