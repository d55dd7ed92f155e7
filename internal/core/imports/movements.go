package imports

import (
	"context"
	"strings"

	"github.com/JonMunkholm/stockimport/internal/core"
	"github.com/JonMunkholm/stockimport/internal/headers"
)

// Movement fields. The product barcode reuses FieldBarcode.
const (
	FieldProduct   = "producto"
	FieldType      = "tipo"
	FieldQuantity  = "cantidad"
	FieldDate      = "fecha"
	FieldReference = "referencia"
	FieldNotes     = "observaciones"

	// FieldMovementKey is the composite natural key of a movement.
	FieldMovementKey = "clave"
	// FieldProductID is set on persisted movements, never read from files.
	FieldProductID = "productoId"
)

// Movement types.
const (
	MovementIn         = "entrada"
	MovementOut        = "salida"
	MovementAdjustment = "ajuste"
)

var movementRules = core.FieldRuleSet{
	{Field: FieldProduct, Label: "Producto", Type: core.RuleText, Required: true, MaxLen: 200},
	{Field: FieldBarcode, Label: "Codigo de barras", Type: core.RuleText, MaxLen: 64, Normalizer: NormalizeBarcode},
	{
		Field:      FieldType,
		Label:      "Tipo",
		Type:       core.RuleEnum,
		Required:   true,
		EnumValues: []string{MovementIn, MovementOut, MovementAdjustment},
		EnumAliases: map[string]string{
			"ingreso":    MovementIn,
			"compra":     MovementIn,
			"alta":       MovementIn,
			"in":         MovementIn,
			"egreso":     MovementOut,
			"venta":      MovementOut,
			"baja":       MovementOut,
			"out":        MovementOut,
			"ajustes":    MovementAdjustment,
			"adjustment": MovementAdjustment,
		},
	},
	{Field: FieldQuantity, Label: "Cantidad", Type: core.RuleNumber, Required: true},
	{Field: FieldDate, Label: "Fecha", Type: core.RuleDate, Required: true, NoFuture: true},
	{Field: FieldReference, Label: "Referencia", Type: core.RuleText, MaxLen: 100},
	{Field: FieldNotes, Label: "Observaciones", Type: core.RuleText, MaxLen: 1000},
}

var movementAliases = []headers.Entry{
	{Field: FieldProduct, Aliases: []string{"nombre producto", "articulo", "item", "product"}},
	{Field: FieldBarcode, Aliases: []string{"codigo de barras", "cod barras", "barcode", "ean"}},
	{Field: FieldType, Aliases: []string{"tipo movimiento", "movimiento", "type"}},
	{Field: FieldQuantity, Aliases: []string{"unidades", "qty", "quantity"}},
	{Field: FieldDate, Aliases: []string{"fecha movimiento", "date"}},
	{Field: FieldReference, Aliases: []string{"comprobante", "factura", "remito", "documento", "reference"}},
	{Field: FieldNotes, Aliases: []string{"notas", "comentarios", "notes"}},
}

func movementDefinition() core.Definition {
	return core.Definition{
		Key:        Movements,
		Label:      "Movimientos de stock",
		Kind:       core.KindMovement,
		Complexity: core.ComplexityMedium,
		Rules:      movementRules,
		Aliases:    movementAliases,
		Keys:       movementKeys,
		References: []core.Reference{
			{
				Field: FieldProduct,
				Kind:  core.KindProduct,
				Lookup: func(row core.TypedRow) []core.NaturalKey {
					name := row.String(FieldProduct)
					return []core.NaturalKey{
						{Field: FieldBarcode, Value: row.String(FieldBarcode)},
						{Field: FieldSKU, Value: name},
						{Field: FieldName, Value: name},
					}
				},
				Placeholder: productPlaceholder,
			},
		},
		Check: checkMovement,
		Build: func(row core.TypedRow, refs map[string]core.EntityRef) core.Record {
			fields := copyFields(row, movementRules.Fields())
			fields[FieldProductID] = refs[FieldProduct].ID
			return core.Record{Kind: core.KindMovement, Fields: fields}
		},
		OnCreate: func(ctx context.Context, store core.Store, row core.TypedRow, refs map[string]core.EntityRef) error {
			return store.AdjustDerived(ctx, refs[FieldProduct], FieldStock, stockDelta(row))
		},
	}
}

// movementKeys identifies a movement by product, type, date, quantity and
// reference. The product part is the resolved product ID so different
// spellings of one product collapse to the same key.
func movementKeys(row core.TypedRow, refs map[string]core.EntityRef) []core.NaturalKey {
	product := refs[FieldProduct].ID
	if product == "" {
		product = headers.NormalizeKey(row.String(FieldProduct))
	}
	parts := []string{
		product,
		row.String(FieldType),
		row.String(FieldDate),
		row.String(FieldQuantity),
		headers.NormalizeKey(row.String(FieldReference)),
	}
	return []core.NaturalKey{{Field: FieldMovementKey, Value: strings.Join(parts, "|")}}
}

// checkMovement requires a non-zero quantity. Entries and exits take the
// quantity as a magnitude; adjustments are signed.
func checkMovement(row core.TypedRow) []core.FieldError {
	q := row.Float(FieldQuantity)
	switch {
	case q == 0:
		return []core.FieldError{{Field: FieldQuantity, Value: row.String(FieldQuantity), Message: "must not be zero"}}
	case q < 0 && row.String(FieldType) != MovementAdjustment:
		return []core.FieldError{{Field: FieldQuantity, Value: row.String(FieldQuantity), Message: "must be greater than zero"}}
	}
	return nil
}

// stockDelta is the change a movement applies to product stock.
func stockDelta(row core.TypedRow) float64 {
	q := row.Float(FieldQuantity)
	if row.String(FieldType) == MovementOut {
		return -q
	}
	return q
}
