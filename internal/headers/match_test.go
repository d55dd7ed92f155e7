package headers

import "testing"

func TestNormalize(t *testing.T) {
	d := MustNew(testEntries())

	tests := []struct {
		name       string
		header     string
		wantField  string
		wantMapped bool
		wantKind   MatchKind
	}{
		{"canonical name", "stock", "stock", true, MatchPhrase},
		{"canonical camel case", "PrecioVenta", "precioVenta", true, MatchPhrase},
		{"registered alias with accents", "Código de Barras", "codigoBarras", true, MatchPhrase},
		{"alias inside longer header", "Cantidad Disponible en Stock", "stock", true, MatchPhrase},
		{"scattered tokens", "Hand Qty On", "stock", true, MatchFull},
		{"partial below threshold", "Hand", "", false, MatchNone},
		{"unknown header", "Observaciones", "", false, MatchNone},
		{"only stop-words", "de la", "", false, MatchNone},
		{"empty", "", "", false, MatchNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Normalize(tt.header)
			if got.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", got.Field, tt.wantField)
			}
			if got.Mapped != tt.wantMapped {
				t.Errorf("Mapped = %v, want %v", got.Mapped, tt.wantMapped)
			}
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
		})
	}
}

func TestNormalize_ExactAliasAlwaysMapsToItsField(t *testing.T) {
	d := MustNew(testEntries())
	for _, e := range testEntries() {
		for _, a := range append([]string{e.Field}, e.Aliases...) {
			if got := d.Normalize(a); got.Field != e.Field {
				t.Errorf("Normalize(%q).Field = %q, want %q", a, got.Field, e.Field)
			}
		}
	}
}

func TestNormalize_LongestPhraseWins(t *testing.T) {
	d := MustNew([]Entry{
		{Field: "costoUnitario", Aliases: []string{"precio compra"}},
		{Field: "precio", Aliases: []string{"valor"}},
	})

	got := d.Normalize("Precio de Compra Unitario")
	if got.Field != "costoUnitario" {
		t.Errorf("Field = %q, want costoUnitario", got.Field)
	}
	if got.Alias != "precio compra" {
		t.Errorf("Alias = %q, want %q", got.Alias, "precio compra")
	}
}

func TestNormalize_TieGoesToFirstRegistered(t *testing.T) {
	d := MustNew([]Entry{
		{Field: "first", Aliases: []string{"alfa beta gamma"}},
		{Field: "second", Aliases: []string{"alfa beta delta"}},
	})

	// Both aliases cover 2 of 3 tokens.
	got := d.Normalize("alfa beta")
	if got.Field != "first" {
		t.Errorf("Field = %q, want first", got.Field)
	}
	if got.Kind != MatchPartial {
		t.Errorf("Kind = %v, want partial", got.Kind)
	}
}

func TestNormalize_ThresholdBoundary(t *testing.T) {
	entries := []Entry{{Field: "f", Aliases: []string{"uno dos tres cuatro cinco"}}}

	tests := []struct {
		header string
		want   bool
	}{
		{"uno dos tres", true},  // 0.6
		{"uno dos", false},      // 0.4
		{"dos tres cuatro cinco", true},
	}

	d := MustNew(entries)
	for _, tt := range tests {
		if got := d.Normalize(tt.header).Mapped; got != tt.want {
			t.Errorf("Normalize(%q).Mapped = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestMatchKind_String(t *testing.T) {
	tests := map[MatchKind]string{
		MatchNone:    "none",
		MatchPartial: "partial",
		MatchFull:    "full",
		MatchPhrase:  "phrase",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", k, got, want)
		}
	}
}
