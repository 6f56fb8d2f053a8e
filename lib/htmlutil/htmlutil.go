package htmlutil

import (
	"bytes"
	"strings"

	"resultsync-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// GetText concatenates every text node under node, skipping script,
// style and noscript subtrees. Inline script bodies would otherwise
// count as page text.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	if node.Type == html.ElementNode {
		switch node.Data {
		case "script", "style", "noscript":
			return
		}
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

// CleanedText returns the selection's rendered text content after
// whitespace and non-printable cleanup.
func CleanedText(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, node := range sel.Nodes {
		getTextRecursive(node, &buffer)
	}
	return textutil.CleanText(buffer.String())
}

// RowCells returns the cleaned text of every th/td cell in a table row.
func RowCells(row *goquery.Selection) []string {
	var cells []string
	row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, CleanedText(cell))
	})
	return cells
}

// TableRows returns the rows of a table, preferring tbody/thead children
// but falling back to any tr descendant for tables without sectioning.
func TableRows(table *goquery.Selection) []*goquery.Selection {
	var rows []*goquery.Selection
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		// skip rows belonging to nested tables
		if row.Closest("table").Get(0) != table.Get(0) {
			return
		}
		rows = append(rows, row)
	})
	return rows
}

// FirstText returns the cleaned text of the first selector in the
// candidate list that matches an element with non-empty text.
func FirstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		text := ""
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text = CleanedText(s)
			return text == ""
		})
		if text != "" {
			return text
		}
	}
	return ""
}

// HasVisible reports whether any element matching the selector exists and
// is not hidden by inline style. Visibility beyond inline styles cannot be
// judged from a serialized document.
func HasVisible(doc *goquery.Document, selector string) bool {
	found := false
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		style := strings.ReplaceAll(s.AttrOr("style", ""), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return true
		}
		if s.AttrOr("type", "") == "hidden" {
			return true
		}
		found = true
		return false
	})
	return found
}

// BodyTextLength returns the length of the document body's cleaned text.
func BodyTextLength(doc *goquery.Document) int {
	return len(CleanedText(doc.Find("body")))
}
