package scrape

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Pre-compiled regexes for script scanning. Compiled once to avoid ReDoS
// with runtime compilation.
var (
	scriptBodyRe = regexp.MustCompile(`(?is)<script[^>]*>(.*?)</script>`)
	chartDataRe  = regexp.MustCompile(`(?s)chartData\s*[:=]\s*(\{.*?\})`)
	priceDataRe  = regexp.MustCompile(`(?s)priceData\s*[:=]\s*(\[.*?\])`)
	labelsRe     = regexp.MustCompile(`(?s)labels\s*:\s*\[(.*?)\]`)
	dataRe       = regexp.MustCompile(`(?s)data\s*:\s*\[(.*?)\]`)
	brandCleanRe = regexp.MustCompile(`[^\w\s-]`)
)

// seriesAnchor is the date assigned to the first point when a bare numeric
// array is recovered from a chart script with no label information.
var seriesAnchor = time.Date(2022, 11, 1, 0, 0, 0, 0, time.UTC)

// minBareSeriesLen is the minimum length for a bare numeric array to be
// treated as a price series rather than unrelated chart data.
const minBareSeriesLen = 11

// ProductInfo holds the product metadata extracted from a page.
type ProductInfo struct {
	Title string
	Brand string
}

// PricePoint is a single dated price observation.
type PricePoint struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// titleSelectors are tried in order when extracting the product title.
var titleSelectors = []string{
	"h1",
	".product-title",
	`[class*="title"]`,
	`[class*="product-name"]`,
}

// ExtractProductInfo extracts the product title and brand from page HTML.
// The brand is taken as the first word of the title with punctuation
// stripped. Missing values fall back to "Unknown Product"/"Unknown Brand".
func ExtractProductInfo(htmlContent []byte) ProductInfo {
	info := ProductInfo{
		Title: "Unknown Product",
		Brand: "Unknown Brand",
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlContent))
	if err != nil {
		return info
	}

	var title string
	for _, selector := range titleSelectors {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			title = strings.TrimSpace(sel.Text())
			if title != "" {
				break
			}
		}
	}

	if title == "" {
		if content, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
			title = strings.TrimSpace(content)
		}
	}

	if title == "" {
		return info
	}
	info.Title = title

	words := strings.Fields(title)
	if len(words) > 0 {
		brand := strings.TrimSpace(brandCleanRe.ReplaceAllString(words[0], ""))
		if brand != "" {
			info.Brand = brand
		}
	}

	return info
}

// ExtractSeries recovers a price series from chart data embedded in inline
// scripts. Patterns are tried in order: a chartData object, a priceData
// array, paired labels/data arrays, and finally a bare numeric data array
// which is assigned weekly dates from the series anchor. Returns nil when
// no series is found.
func ExtractSeries(htmlContent []byte) []PricePoint {
	for _, m := range scriptBodyRe.FindAllSubmatch(htmlContent, -1) {
		script := string(m[1])

		if points := extractFromScript(script); len(points) > 0 {
			return points
		}
	}
	return nil
}

// extractFromScript tries all known chart data patterns on one script body.
func extractFromScript(script string) []PricePoint {
	if m := chartDataRe.FindStringSubmatch(script); m != nil {
		var obj map[string]any
		if err := json.Unmarshal([]byte(m[1]), &obj); err == nil {
			if points, ok := NormalizeSeries(obj); ok {
				return points
			}
		}
	}

	if m := priceDataRe.FindStringSubmatch(script); m != nil {
		var list []any
		if err := json.Unmarshal([]byte(m[1]), &list); err == nil {
			if points, ok := NormalizeSeries(list); ok {
				return points
			}
		}
	}

	// Paired labels/data arrays (Chart.js inline config).
	labelsMatch := labelsRe.FindStringSubmatch(script)
	dataMatch := dataRe.FindStringSubmatch(script)
	if labelsMatch != nil && dataMatch != nil {
		var labels, data []any
		errL := json.Unmarshal([]byte("["+labelsMatch[1]+"]"), &labels)
		errD := json.Unmarshal([]byte("["+dataMatch[1]+"]"), &data)
		if errL == nil && errD == nil {
			if points := zipSeries(labels, data); len(points) > 0 {
				return points
			}
		}
	}

	// Bare numeric array: assign weekly dates from the anchor.
	if dataMatch != nil {
		var data []any
		if err := json.Unmarshal([]byte("["+dataMatch[1]+"]"), &data); err == nil && len(data) >= minBareSeriesLen {
			if points := anchoredSeries(data); len(points) > 0 {
				return points
			}
		}
	}

	return nil
}

// NormalizeSeries converts recognized chart data shapes into a canonical
// point list. Accepted shapes are maps with labels/data, dates/prices or
// x/y list pairs, and lists of objects carrying a date-like and a
// price-like key. The bool result reports whether the input was a valid
// series.
func NormalizeSeries(data any) ([]PricePoint, bool) {
	switch v := data.(type) {
	case map[string]any:
		for _, pair := range [][2]string{
			{"labels", "data"},
			{"dates", "prices"},
			{"x", "y"},
		} {
			labels, okL := v[pair[0]].([]any)
			values, okV := v[pair[1]].([]any)
			if okL && okV {
				points := zipSeries(labels, values)
				return points, len(points) > 0
			}
		}
		return nil, false

	case []any:
		points := make([]PricePoint, 0, len(v))
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			var dateVal, priceVal any
			var hasDate, hasPrice bool
			for key, value := range obj {
				switch strings.ToLower(key) {
				case "date", "time", "x", "timestamp":
					dateVal, hasDate = value, true
				case "price", "value", "y", "amount":
					priceVal, hasPrice = value, true
				}
			}
			if !hasDate || !hasPrice {
				return nil, false
			}
			price, ok := toPrice(priceVal)
			if !ok {
				return nil, false
			}
			points = append(points, PricePoint{Date: toDateString(dateVal), Price: price})
		}
		return points, len(points) > 0
	}

	return nil, false
}

// zipSeries pairs label and value lists into points. The shorter list wins.
func zipSeries(labels, values []any) []PricePoint {
	n := len(labels)
	if len(values) < n {
		n = len(values)
	}

	points := make([]PricePoint, 0, n)
	for i := 0; i < n; i++ {
		price, ok := toPrice(values[i])
		if !ok {
			continue
		}
		points = append(points, PricePoint{Date: toDateString(labels[i]), Price: price})
	}
	return points
}

// anchoredSeries assigns weekly dates starting at the anchor to a bare
// numeric array.
func anchoredSeries(values []any) []PricePoint {
	points := make([]PricePoint, 0, len(values))
	for i, v := range values {
		price, ok := toPrice(v)
		if !ok {
			return nil
		}
		date := seriesAnchor.AddDate(0, 0, i*7)
		points = append(points, PricePoint{Date: date.Format("2006-01-02"), Price: price})
	}
	return points
}

// toPrice converts a JSON value to a price.
func toPrice(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// toDateString renders a JSON label value as a date string.
func toDateString(v any) string {
	switch d := v.(type) {
	case string:
		return strings.TrimSpace(d)
	case float64:
		// Numeric labels are Unix timestamps in seconds or milliseconds.
		sec := int64(d)
		if sec > 1e12 {
			sec /= 1000
		}
		return time.Unix(sec, 0).UTC().Format("2006-01-02")
	}
	return fmt.Sprint(v)
}
