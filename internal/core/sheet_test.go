package core

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/stockimport/internal/headers"
)

func sheetDict(t *testing.T) *headers.Dictionary {
	t.Helper()
	return headers.MustNew([]headers.Entry{
		{Field: "nombre", Aliases: []string{"producto"}},
		{Field: "sku", Aliases: []string{"codigo interno"}},
		{Field: "stock", Aliases: []string{"existencias", "cantidad disponible"}},
		{Field: "precioVenta", Aliases: []string{"precio venta", "pvp"}},
	})
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		head     []byte
		want     Format
		wantErr  error
	}{
		{"csv extension", "stock.CSV", nil, FormatCSV, nil},
		{"tsv extension", "stock.tsv", nil, FormatCSV, nil},
		{"xlsx extension", "stock.xlsx", nil, FormatXLSX, nil},
		{"legacy xls", "stock.xls", nil, "", ErrUnsupportedFormat},
		{"ods", "stock.ods", nil, "", ErrUnsupportedFormat},
		{"sniff zip", "upload", []byte("PK\x03\x04rest"), FormatXLSX, nil},
		{"sniff text", "upload", []byte("a,b,c"), FormatCSV, nil},
		{"no hint", "upload", nil, "", ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(tt.fileName, tt.head)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("DetectFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		head string
		want rune
	}{
		{"a,b,c\n1;2;3", ','},
		{"a;b;c\n", ';'},
		{"a\tb\tc", '\t'},
		{"a|b|c", '|'},
		{`"x;y",b,c`, ','},
		{"single", ','},
	}
	for _, tt := range tests {
		if got := detectDelimiter([]byte(tt.head)); got != tt.want {
			t.Errorf("detectDelimiter(%q) = %q, want %q", tt.head, got, tt.want)
		}
	}
}

func TestReadSheet_CSV(t *testing.T) {
	data := []byte("\xEF\xBB\xBFProducto;Existencias;PVP\n" +
		"Tornillo;10;1,50\n" +
		";;\n" +
		"\"Tuerca; grande\";5;2,00\n")

	sheet, err := ReadSheet(data, "inventario.csv")
	if err != nil {
		t.Fatalf("ReadSheet() error = %v", err)
	}
	if sheet.Format != FormatCSV {
		t.Errorf("Format = %q, want csv", sheet.Format)
	}

	want := []RawRow{
		{Line: 1, Cells: []string{"Producto", "Existencias", "PVP"}},
		{Line: 2, Cells: []string{"Tornillo", "10", "1,50"}},
		{Line: 4, Cells: []string{"Tuerca; grande", "5", "2,00"}},
	}
	if !reflect.DeepEqual(sheet.Rows, want) {
		t.Errorf("Rows = %v, want %v", sheet.Rows, want)
	}
}

func TestReadSheet_Errors(t *testing.T) {
	if _, err := ReadSheet(nil, "a.csv"); !errors.Is(err, ErrUnreadableFile) {
		t.Errorf("empty file error = %v, want ErrUnreadableFile", err)
	}
	if _, err := ReadSheet([]byte("not a zip"), "a.xlsx"); !errors.Is(err, ErrUnreadableFile) {
		t.Errorf("corrupt xlsx error = %v, want ErrUnreadableFile", err)
	}
	if _, err := ReadSheet([]byte("x"), "a.xls"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("xls error = %v, want ErrUnsupportedFormat", err)
	}
}

func buildXLSX(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if row == nil {
			continue
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestReadSheet_XLSX(t *testing.T) {
	data := buildXLSX(t, [][]any{
		{"Inventario junio"},
		nil,
		{"Producto", "Existencias"},
		{"Tornillo", 10},
		{"Tuerca", 2.5},
	})

	sheet, err := ReadSheet(data, "inventario.xlsx")
	if err != nil {
		t.Fatalf("ReadSheet() error = %v", err)
	}
	if sheet.Format != FormatXLSX {
		t.Errorf("Format = %q, want xlsx", sheet.Format)
	}
	if len(sheet.Rows) != 4 {
		t.Fatalf("got %d rows, want 4 (blank row dropped): %v", len(sheet.Rows), sheet.Rows)
	}
	if sheet.Rows[1].Line != 3 {
		t.Errorf("header line = %d, want 3", sheet.Rows[1].Line)
	}
	if got := sheet.Rows[3].Cells; len(got) != 2 || got[0] != "Tuerca" || got[1] != "2.5" {
		t.Errorf("last row = %v", got)
	}
}

func TestLocateHeader(t *testing.T) {
	dict := sheetDict(t)

	t.Run("skips banner rows", func(t *testing.T) {
		rows := []RawRow{
			{Line: 1, Cells: []string{"Ferretería López - Inventario"}},
			{Line: 2, Cells: []string{"Generado", "2024-06-01"}},
			{Line: 4, Cells: []string{"Producto", "Código Interno", "Existencias", "Precio Venta"}},
			{Line: 5, Cells: []string{"Tornillo", "T-1", "10", "1.5"}},
		}
		got, ok := LocateHeader(rows, dict)
		if !ok {
			t.Fatal("LocateHeader() found nothing")
		}
		if got.Index != 2 || got.Line != 4 {
			t.Errorf("header at index %d line %d, want index 2 line 4", got.Index, got.Line)
		}
		if got.Columns.MappedCount() != 4 {
			t.Errorf("MappedCount() = %d, want 4", got.Columns.MappedCount())
		}
		if len(got.Warnings) == 0 || got.Warnings[0].Kind != headers.WarnSkippedRows {
			t.Fatalf("Warnings = %v, want a skipped rows warning first", got.Warnings)
		}
		if msg := got.Warnings[0].Message; !strings.Contains(msg, "lines 1, 2") {
			t.Errorf("warning message = %q, want lines 1, 2", msg)
		}
	})

	t.Run("tie goes to earliest row", func(t *testing.T) {
		rows := []RawRow{
			{Line: 1, Cells: []string{"Producto", "Existencias"}},
			{Line: 2, Cells: []string{"Producto", "Existencias"}},
		}
		got, _ := LocateHeader(rows, dict)
		if got.Index != 0 {
			t.Errorf("Index = %d, want 0", got.Index)
		}
	})

	t.Run("nothing maps uses first row", func(t *testing.T) {
		rows := []RawRow{
			{Line: 1, Cells: []string{"foo", "bar"}},
			{Line: 2, Cells: []string{"1", "2"}},
		}
		got, ok := LocateHeader(rows, dict)
		if !ok || got.Index != 0 {
			t.Errorf("got index %d ok=%v, want 0 true", got.Index, ok)
		}
		if len(got.Warnings) != 2 {
			t.Errorf("got %d warnings, want 2 unmapped", len(got.Warnings))
		}
	})

	t.Run("empty sheet", func(t *testing.T) {
		if _, ok := LocateHeader(nil, dict); ok {
			t.Error("LocateHeader(nil) should report not found")
		}
	})
}

// ----------------------------------------------------------------------------
// Header Row Selection Tests
// ----------------------------------------------------------------------------

func TestLocateHeader_OnlySkipsBannerRows(t *testing.T) {
	dict := sheetDict(t)

	tests := []struct {
		name     string
		rows     []RawRow
		wantLine int
		wantSkip bool
	}{
		{
			name: "header-like data row does not displace first header",
			rows: []RawRow{
				{Line: 1, Cells: []string{"Producto", "Existencias", "Notas"}},
				{Line: 2, Cells: []string{"Tornillo", "10", "caja"}},
				{Line: 3, Cells: []string{"Producto", "Existencias", "PVP"}},
				{Line: 4, Cells: []string{"Tuerca", "5", "bolsa"}},
			},
			wantLine: 1,
		},
		{
			name: "narrower mapped banner is skipped",
			rows: []RawRow{
				{Line: 1, Cells: []string{"Existencias"}},
				{Line: 2, Cells: []string{"Producto", "Código Interno", "Existencias", "PVP"}},
				{Line: 3, Cells: []string{"Tornillo", "T-1", "10", "1.5"}},
			},
			wantLine: 2,
			wantSkip: true,
		},
		{
			name: "equally wide mapped row stays above a better header",
			rows: []RawRow{
				{Line: 1, Cells: []string{"Producto", "x", "y", "z"}},
				{Line: 2, Cells: []string{"Producto", "Código Interno", "Existencias", "PVP"}},
			},
			wantLine: 1,
		},
		{
			name: "unmapped rows of any width are skipped",
			rows: []RawRow{
				{Line: 1, Cells: []string{"Sucursal", "Centro", "Junio", "2024", "v2"}},
				{Line: 2, Cells: []string{"Producto", "Existencias"}},
			},
			wantLine: 2,
			wantSkip: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LocateHeader(tt.rows, dict)
			if !ok {
				t.Fatal("LocateHeader() found nothing")
			}
			if got.Line != tt.wantLine {
				t.Errorf("header line = %d, want %d", got.Line, tt.wantLine)
			}
			skipped := false
			for _, w := range got.Warnings {
				if w.Kind == headers.WarnSkippedRows {
					skipped = true
				}
			}
			if skipped != tt.wantSkip {
				t.Errorf("skipped rows warning = %v, want %v", skipped, tt.wantSkip)
			}
		})
	}
}
