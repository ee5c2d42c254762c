package sheet

import (
	"datview/internal/colstat"
	"datview/internal/schema"
)

// validateImportedHeader reports whether a candidate header is compatible
// with the byte statistics over its range. This is the trust boundary of an
// import: serialized schemas are data, not code, and a header failing here
// is never applied. The result is a plain boolean; wrapping it into a
// user-facing error is the importer's job.
func validateImportedHeader(h *schema.Header, stats []colstat.ColumnStat, memsize int) bool {
	return validateWithOverlay(h, stats, buildOverlay(stats, memsize), memsize)
}

// validateWithOverlay is validateImportedHeader with the overlay already
// built, for callers that validate many headers against one snapshot.
//
// Rules by kind:
//   - string: spans exactly one unit starting on a RefString offset.
//   - key and both array variants: span exactly two units starting on a
//     RefArray offset.
//   - boolean: one byte whose observed values never exceed 1.
//   - integer: width 1..8; decimal: width 4 or 8. Neither may take bytes
//     from a detected string or array construct. Nullable overlay flags do
//     not block them; a nullable box is unit-wide evidence, not a claim.
//   - raw: any in-range positive length.
func validateWithOverlay(h *schema.Header, stats []colstat.ColumnStat, overlay []ColumnOverlay, memsize int) bool {
	if h.Offset < 0 || h.Length <= 0 || h.End() > len(stats) {
		return false
	}

	if h.Kind.Array {
		if h.Kind.Tag != schema.Integer && h.Kind.Tag != schema.Key {
			return false
		}
		return h.Length == 2*memsize && stats[h.Offset].RefArray
	}

	switch h.Kind.Tag {
	case schema.Raw:
		return true
	case schema.Boolean:
		return h.Length == 1 && stats[h.Offset].BMax <= 1 && plainRangeClear(overlay, h.Offset, h.Length)
	case schema.Integer:
		return h.Length <= 8 && plainRangeClear(overlay, h.Offset, h.Length)
	case schema.Decimal:
		return (h.Length == 4 || h.Length == 8) && plainRangeClear(overlay, h.Offset, h.Length)
	case schema.String:
		return h.Length == memsize && stats[h.Offset].RefString
	case schema.Key:
		return h.Length == 2*memsize && stats[h.Offset].RefArray
	}
	return false
}

// plainRangeClear reports whether [off, off+length) avoids every byte of
// every detected string and array construct.
func plainRangeClear(overlay []ColumnOverlay, off, length int) bool {
	for i := off; i < off+length; i++ {
		if overlay[i].String || overlay[i].Array {
			return false
		}
	}
	return true
}
