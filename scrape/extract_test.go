package scrape

import (
	"testing"
)

func TestExtractProductInfo(t *testing.T) {
	tests := []struct {
		name      string
		html      string
		wantTitle string
		wantBrand string
	}{
		{
			name:      "h1 title",
			html:      `<html><body><h1>Samsung Galaxy M05 (4 GB/64 GB)</h1></body></html>`,
			wantTitle: "Samsung Galaxy M05 (4 GB/64 GB)",
			wantBrand: "Samsung",
		},
		{
			name:      "product-title class",
			html:      `<html><body><div class="product-title">Redmi A4 5G</div></body></html>`,
			wantTitle: "Redmi A4 5G",
			wantBrand: "Redmi",
		},
		{
			name:      "og:title fallback",
			html:      `<html><head><meta property="og:title" content="Apple iPhone 13"></head><body></body></html>`,
			wantTitle: "Apple iPhone 13",
			wantBrand: "Apple",
		},
		{
			name:      "brand punctuation stripped",
			html:      `<html><body><h1>OnePlus! Nord CE4</h1></body></html>`,
			wantTitle: "OnePlus! Nord CE4",
			wantBrand: "OnePlus",
		},
		{
			name:      "empty page",
			html:      `<html><body></body></html>`,
			wantTitle: "Unknown Product",
			wantBrand: "Unknown Brand",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := ExtractProductInfo([]byte(tt.html))
			if info.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", info.Title, tt.wantTitle)
			}
			if info.Brand != tt.wantBrand {
				t.Errorf("Brand = %q, want %q", info.Brand, tt.wantBrand)
			}
		})
	}
}

func TestExtractSeriesLabelsData(t *testing.T) {
	html := `<html><body><script>
	var chart = new Chart(ctx, {
		labels: ["2023-01-01", "2023-01-08", "2023-01-15"],
		data: [2999, 2799, 3099]
	});
	</script></body></html>`

	points := ExtractSeries([]byte(html))
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	if points[0].Date != "2023-01-01" || points[0].Price != 2999 {
		t.Errorf("unexpected first point: %+v", points[0])
	}
	if points[2].Date != "2023-01-15" || points[2].Price != 3099 {
		t.Errorf("unexpected last point: %+v", points[2])
	}
}

func TestExtractSeriesPriceData(t *testing.T) {
	html := `<html><body><script>
	var priceData = [{"date": "2023-02-01", "price": 1500}, {"date": "2023-02-08", "price": 1450}];
	</script></body></html>`

	points := ExtractSeries([]byte(html))
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[1].Date != "2023-02-08" || points[1].Price != 1450 {
		t.Errorf("unexpected point: %+v", points[1])
	}
}

func TestExtractSeriesChartDataObject(t *testing.T) {
	html := `<html><body><script>
	window.chartData = {"labels": ["2023-03-01", "2023-03-08"], "data": [999, 899]};
	</script></body></html>`

	points := ExtractSeries([]byte(html))
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[0].Price != 999 {
		t.Errorf("unexpected price: %v", points[0].Price)
	}
}

func TestExtractSeriesBareArray(t *testing.T) {
	html := `<html><body><script>
	var cfg = { data: [100, 110, 120, 130, 140, 150, 160, 170, 180, 190, 200, 210] };
	</script></body></html>`

	points := ExtractSeries([]byte(html))
	if len(points) != 12 {
		t.Fatalf("expected 12 points, got %d", len(points))
	}
	// Bare arrays are anchored at the series anchor with weekly steps.
	if points[0].Date != "2022-11-01" {
		t.Errorf("first date = %q, want 2022-11-01", points[0].Date)
	}
	if points[1].Date != "2022-11-08" {
		t.Errorf("second date = %q, want 2022-11-08", points[1].Date)
	}
}

func TestExtractSeriesShortBareArrayIgnored(t *testing.T) {
	html := `<html><body><script>
	var cfg = { data: [1, 2, 3] };
	</script></body></html>`

	if points := ExtractSeries([]byte(html)); points != nil {
		t.Errorf("expected no series, got %d points", len(points))
	}
}

func TestExtractSeriesNoScripts(t *testing.T) {
	html := `<html><body><p>No charts here</p></body></html>`
	if points := ExtractSeries([]byte(html)); points != nil {
		t.Errorf("expected no series, got %d points", len(points))
	}
}

func TestNormalizeSeries(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		wantLen int
		wantOK  bool
	}{
		{
			name: "labels and data",
			input: map[string]any{
				"labels": []any{"2023-01-01", "2023-01-08"},
				"data":   []any{100.0, 200.0},
			},
			wantLen: 2,
			wantOK:  true,
		},
		{
			name: "dates and prices",
			input: map[string]any{
				"dates":  []any{"2023-01-01"},
				"prices": []any{99.0},
			},
			wantLen: 1,
			wantOK:  true,
		},
		{
			name: "x and y",
			input: map[string]any{
				"x": []any{"2023-01-01"},
				"y": []any{50.0},
			},
			wantLen: 1,
			wantOK:  true,
		},
		{
			name: "list of point objects",
			input: []any{
				map[string]any{"timestamp": "2023-01-01", "amount": 10.0},
				map[string]any{"timestamp": "2023-01-02", "amount": 20.0},
			},
			wantLen: 2,
			wantOK:  true,
		},
		{
			name:   "map without series keys",
			input:  map[string]any{"foo": []any{1.0}},
			wantOK: false,
		},
		{
			name:   "list with missing price key",
			input:  []any{map[string]any{"date": "2023-01-01"}},
			wantOK: false,
		},
		{
			name:   "scalar input",
			input:  42.0,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points, ok := NormalizeSeries(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && len(points) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(points), tt.wantLen)
			}
		})
	}
}

func TestZipSeriesShorterListWins(t *testing.T) {
	points := zipSeries(
		[]any{"2023-01-01", "2023-01-02", "2023-01-03"},
		[]any{10.0, 20.0},
	)
	if len(points) != 2 {
		t.Errorf("expected 2 points, got %d", len(points))
	}
}

func TestToDateString(t *testing.T) {
	if got := toDateString("  2023-05-01 "); got != "2023-05-01" {
		t.Errorf("got %q", got)
	}
	// Unix seconds
	if got := toDateString(1672531200.0); got != "2023-01-01" {
		t.Errorf("seconds: got %q", got)
	}
	// Unix milliseconds
	if got := toDateString(1672531200000.0); got != "2023-01-01" {
		t.Errorf("milliseconds: got %q", got)
	}
}
