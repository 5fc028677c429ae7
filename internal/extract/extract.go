// Package extract maps the rendered result and detail tables of the trademark
// research page onto typed records. Every function here is pure: the same HTML
// always yields the same output, and malformed markup degrades to partial or
// empty results instead of an error.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/xkilldash9x/markasorgu/api/schemas"
)

// Column layout of the search results table. Column 5 is not used.
const (
	colApplicationNo   = 1
	colMarkaName       = 2
	colHolderName      = 3
	colApplicationDate = 4
	colCurrentStatus   = 6
	colNiceClasses     = 7

	// minSearchCells is the minimum number of cells a result row must expose.
	minSearchCells = 7
	// minProcessCells is the minimum number of cells a process log row must expose.
	minProcessCells = 3
)

// processLabel marks rows that belong to the process log table.
const processLabel = "İşlem"

// detailRowSelector matches plain table rows and MUI rendered rows alike.
const detailRowSelector = "table tr, .MuiTableRow-root"

// SearchRecords extracts at most limit records from the results table.
// The first row is treated as a header. Rows with fewer than seven cells are skipped.
func SearchRecords(html string, limit int) []schemas.BrandRecord {
	records := make([]schemas.BrandRecord, 0)
	if limit <= 0 {
		return records
	}
	doc, ok := parse(html)
	if !ok {
		return records
	}

	doc.Find("tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		if i == 0 {
			return true
		}
		cells := cellTexts(row.Find("td"))
		if len(cells) < minSearchCells {
			return true
		}
		records = append(records, schemas.BrandRecord{
			ApplicationNo:   at(cells, colApplicationNo),
			MarkaName:       at(cells, colMarkaName),
			HolderName:      at(cells, colHolderName),
			ApplicationDate: at(cells, colApplicationDate),
			CurrentStatus:   at(cells, colCurrentStatus),
			NiceClasses:     at(cells, colNiceClasses),
		})
		return len(records) < limit
	})
	return records
}

// Detail extracts the label/value profile and the process log from a detail view.
func Detail(html string) schemas.DetailResult {
	result := schemas.NewDetailResult()
	doc, ok := parse(html)
	if !ok {
		return result
	}

	doc.Find(detailRowSelector).Each(func(_ int, row *goquery.Selection) {
		cells := cellTexts(row.Find("td, th"))
		if len(cells) < 2 {
			return
		}
		putLabel(result.MarkaBilgileri, cells[0], cells[1])
		if len(cells) >= 4 {
			putLabel(result.MarkaBilgileri, cells[2], cells[3])
		}
	})

	result.IslemBilgileri = processLog(doc)
	return result
}

// processLog reads the last table in the document as the process log, skipping its header row.
func processLog(doc *goquery.Document) []schemas.ProcessEntry {
	entries := make([]schemas.ProcessEntry, 0)
	doc.Find("table").Last().Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := cellTexts(row.Find("td"))
		if len(cells) < minProcessCells {
			return
		}
		entries = append(entries, schemas.ProcessEntry{
			Tarih:        at(cells, 0),
			TebligTarihi: at(cells, 1),
			Islem:        at(cells, 2),
			Aciklama:     at(cells, 3),
		})
	})
	return entries
}

func putLabel(m map[string]string, label, value string) {
	if label == "" || value == "" || strings.Contains(label, processLabel) {
		return
	}
	m[label] = value
}

func parse(html string) (*goquery.Document, bool) {
	if strings.TrimSpace(html) == "" {
		return nil, false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false
	}
	return doc, true
}

// cellTexts returns the normalized text of every cell in the selection.
func cellTexts(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, cell *goquery.Selection) {
		out = append(out, normalize(cell.Text()))
	})
	return out
}

// normalize trims the text and collapses inner whitespace runs to a single space.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func at(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return cells[i]
}
