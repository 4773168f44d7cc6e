package htmlutil

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"
)

var tracer = otel.Tracer("courtdata.lib.htmlutil")

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
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

// TextNodes returns every text node beneath the selection in document
// order, passed through clean, with empty results dropped. clean may be
// nil, in which case strings.TrimSpace is used.
func TextNodes(sel *goquery.Selection, clean func(string) string) []string {
	if clean == nil {
		clean = strings.TrimSpace
	}
	var out []string
	for _, n := range sel.Nodes {
		collectTextNodes(n, clean, &out)
	}
	return out
}

func collectTextNodes(node *html.Node, clean func(string) string, out *[]string) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		if strings.TrimSpace(node.Data) != "" {
			if cleaned := clean(node.Data); cleaned != "" {
				*out = append(*out, cleaned)
			}
		}
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectTextNodes(child, clean, out)
	}
}

// TableRows tokenizes each <tr> of the selection into its cleaned text
// nodes, skipping rows that produce no tokens.
func TableRows(table *goquery.Selection, clean func(string) string) [][]string {
	var rows [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		tokens := TextNodes(tr, clean)
		if len(tokens) > 0 {
			rows = append(rows, tokens)
		}
	})
	return rows
}

// HeaderRows is TableRows restricted to rows that contain a <th> cell.
func HeaderRows(table *goquery.Selection, clean func(string) string) [][]string {
	var rows [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.Find("th").Length() == 0 {
			return
		}
		tokens := TextNodes(tr, clean)
		if len(tokens) > 0 {
			rows = append(rows, tokens)
		}
	})
	return rows
}

type Anchor struct {
	Name string
	Href string
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

func GetAnchors(ctx context.Context, sel *goquery.Selection) []Anchor {
	ctx, span := tracer.Start(ctx, "GetAnchors")
	defer span.End()

	anchors := []Anchor{}
	for _, n := range sel.Nodes {
		href := ""
		for _, a := range n.Attr {
			if a.Key == "href" {
				href = a.Val
				break
			}
		}

		link, err := url.Parse(href)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "got error while parsing url")
			continue
		}

		name := GetText(n)
		name = removeNonPrintable(name)
		name = strings.Trim(name, " \t\n")
		name = innerWhitespace.ReplaceAllString(name, " ")

		linkStr := link.String()
		anchors = append(anchors, Anchor{
			Name: name,
			Href: linkStr,
		})
		span.AddEvent("anchor", trace.WithAttributes(
			attribute.String("name", name),
			attribute.String("url", linkStr),
		))
	}

	return anchors
}
