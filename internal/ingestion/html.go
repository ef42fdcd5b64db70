package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/yshsolar/catalog-pipeline/internal/config"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

// HTMLAdapter reads a saved portal page. With selectors configured, every item match becomes a
// record; otherwise the whole page becomes one record carrying the HTML excerpt.
type HTMLAdapter struct {
	source config.Source
}

func (a *HTMLAdapter) Name() string { return config.AdapterHTML }

func (a *HTMLAdapter) Read(ctx context.Context, path string, emit func(types.RawProduct), reject func(*InputFormatError)) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	data, err = DecodeText(data)
	if err != nil {
		return &InputFormatError{Message: "cannot decode text", Cause: err}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return &InputFormatError{Message: "failed to parse HTML", Cause: err}
	}

	sel := a.source.HTMLSelectors
	if sel != nil && sel.Item != "" {
		items := doc.Find(sel.Item)
		if items.Length() > 0 {
			emitted := 0
			items.EachWithBreak(func(i int, item *goquery.Selection) bool {
				if ctx.Err() != nil {
					return false
				}
				row := i + 1
				fields := selectFields(item, sel.Fields)
				if len(fields) == 0 {
					reject(&InputFormatError{Row: row, Message: "item matched no field selectors"})
					return true
				}
				refs := imageRefs(fields, a.source.ImageRoles)
				if sel.Image != "" {
					item.Find(selectorOf(sel.Image)).Each(func(_ int, img *goquery.Selection) {
						if ref := attrOf(img, sel.Image, "src"); ref != "" && !hasRef(refs, ref) {
							refs = append(refs, types.ImageRef{Ref: ref})
						}
					})
				}
				emit(types.RawProduct{
					SourceID:  sourceID(fields, ""),
					Row:       row,
					RawFields: fields,
					ImageRefs: refs,
					FreeText:  freeText(fields),
				})
				emitted++
				return true
			})
			if err := ctx.Err(); err != nil {
				return err
			}
			if emitted > 0 {
				return nil
			}
		}
	}

	title := CleanText(doc.Find("title").First().Text())
	if title == "" {
		title = CleanText(doc.Find("h1").First().Text())
	}
	emit(types.RawProduct{
		Row: 1,
		RawFields: map[string]any{
			"html_excerpt": string(data),
			"title":        title,
		},
		FreeText: title,
	})
	return nil
}

// selectFields evaluates the field selectors inside one item. A selector of the form
// "css@attr" reads an attribute instead of the text.
func selectFields(item *goquery.Selection, selectors map[string]string) map[string]any {
	names := make([]string, 0, len(selectors))
	for name := range selectors {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make(map[string]any, len(selectors))
	for _, name := range names {
		spec := selectors[name]
		var target *goquery.Selection
		if css := selectorOf(spec); css == "" {
			target = item
		} else {
			target = item.Find(css).First()
		}
		if target.Length() == 0 {
			continue
		}
		v := attrOf(target, spec, "")
		if v == "" {
			continue
		}
		fields[name] = v
	}
	return fields
}

func selectorOf(spec string) string {
	if i := strings.LastIndexByte(spec, '@'); i >= 0 {
		return strings.TrimSpace(spec[:i])
	}
	return strings.TrimSpace(spec)
}

// attrOf reads the attribute named after '@' in spec, defaultAttr when spec has none, or the
// element text when both are empty.
func attrOf(s *goquery.Selection, spec, defaultAttr string) string {
	attr := defaultAttr
	if i := strings.LastIndexByte(spec, '@'); i >= 0 {
		attr = strings.TrimSpace(spec[i+1:])
	}
	if attr == "" {
		return CleanText(s.Text())
	}
	v, _ := s.Attr(attr)
	return strings.TrimSpace(v)
}

func hasRef(refs []types.ImageRef, ref string) bool {
	for _, r := range refs {
		if r.Ref == ref {
			return true
		}
	}
	return false
}
