// Package fingerprint derives stable identities for recurring invoice concepts.
// Two invoices for the same recurring service must land on the same fingerprint
// even when the concept text carries the billing month or the amount drifts a
// little, so matching happens on normalized text plus bucketed amounts instead
// of raw strings.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// Set holds every fingerprint variant computed for one invoice. Variants trade
// precision for recall: Strict matches near-identical invoices, Concept matches
// the recurring service regardless of amount, AmountTolerant sits in between.
type Set struct {
	Strict         string // provider + concept + amount rounded to the nearest thousand units
	Concept        string // provider + concept only
	AmountTolerant string // provider + concept + geometric amount bucket (±10%)
	PurchaseOrder  string // provider + PO reference; empty when the invoice has none
}

// New computes all fingerprint variants for an invoice.
func New(providerID, concept string, totalCents int64, poNumber string) Set {
	normalized := Normalize(concept)

	set := Set{
		Strict:         hash(providerID, normalized, fmt.Sprintf("%d", roundCents(totalCents))),
		Concept:        hash(providerID, normalized),
		AmountTolerant: hash(providerID, normalized, fmt.Sprintf("b%d", amountBucket(totalCents))),
	}
	if po := strings.TrimSpace(poNumber); po != "" {
		set.PurchaseOrder = hash(providerID, "po", strings.ToUpper(po))
	}
	return set
}

// Normalize reduces a free-text concept to its significant tokens: lower-cased,
// accent-folded, punctuation stripped, stop words and date tokens removed, first
// four tokens kept. "Factura servicios cloud marzo 2024" and "FACTURA SERVICIOS
// CLOUD ABRIL 2024" normalize to the same string.
func Normalize(concept string) string {
	folded := accentFolder.Replace(strings.ToLower(concept))

	var b strings.Builder
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	var kept []string
	for _, tok := range strings.Fields(b.String()) {
		if len(tok) <= 2 {
			continue
		}
		if _, ok := stopWords[tok]; ok {
			continue
		}
		if _, ok := monthNames[tok]; ok {
			continue
		}
		if !hasLetter(tok) {
			continue // pure numbers are invoice ids, years or day-of-month noise
		}
		kept = append(kept, tok)
		if len(kept) == 4 {
			break
		}
	}

	if len(kept) == 0 {
		if acronyms := acronymTokens(concept); len(acronyms) > 0 {
			kept = acronyms
		} else {
			kept = []string{"product"}
		}
	}
	return strings.Join(kept, " ")
}

// HashDescription returns the match key for a line-item description.
func HashDescription(description string) string {
	normalized := NormalizeDescription(description)
	if normalized == "" {
		normalized = "item"
	}
	return hash(normalized)
}

// NormalizeDescription reduces a line-item description for matching. Unlike
// Normalize it keeps every significant token, since two different line items
// often share their leading words. The comparator runs fuzzy matching over the
// same text HashDescription hashes.
func NormalizeDescription(description string) string {
	folded := accentFolder.Replace(strings.ToLower(description))

	var b strings.Builder
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	var kept []string
	for _, tok := range strings.Fields(b.String()) {
		if _, ok := stopWords[tok]; ok {
			continue
		}
		if _, ok := monthNames[tok]; ok {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// ── helpers ───────────────────────────────────────────────────────────────────

func hash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:32]
}

// roundCents rounds to the nearest 1000 currency units so minor total drift
// does not break the strict variant.
func roundCents(cents int64) int64 {
	const unit = 100_000
	if cents < 0 {
		return -roundCents(-cents)
	}
	return ((cents + unit/2) / unit) * unit
}

// amountBucket maps an amount onto a geometric scale with ratio 1.2, so two
// amounts within roughly ±10% of each other share a bucket.
func amountBucket(cents int64) int {
	if cents <= 0 {
		return 0
	}
	return int(math.Floor(math.Log(float64(cents)) / math.Log(1.2)))
}

func hasLetter(tok string) bool {
	for _, r := range tok {
		if r >= 'a' && r <= 'z' {
			return true
		}
	}
	return false
}

// acronymTokens pulls all-caps tokens out of the raw concept, used as a last
// resort when normalization strips everything ("FACTURA IBM 03/2024" → "ibm").
func acronymTokens(concept string) []string {
	var out []string
	for _, tok := range strings.Fields(concept) {
		trimmed := strings.Trim(tok, ".,;:()[]")
		if len(trimmed) < 2 || len(trimmed) > 8 {
			continue
		}
		upper := true
		for _, r := range trimmed {
			if r < 'A' || r > 'Z' {
				upper = false
				break
			}
		}
		if !upper {
			continue
		}
		lower := strings.ToLower(trimmed)
		if _, ok := stopWords[lower]; ok {
			continue
		}
		out = append(out, lower)
		if len(out) == 4 {
			break
		}
	}
	return out
}

var accentFolder = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n", "ç", "c",
)

// Spanish and English filler vocabulary common in invoice concepts. Month names
// are kept separate so date stripping stays explicit.
var stopWords = map[string]struct{}{
	// Spanish
	"del": {}, "las": {}, "los": {}, "por": {}, "para": {}, "con": {}, "sin": {},
	"una": {}, "uno": {}, "mes": {}, "mensual": {}, "mensualidad": {},
	"factura": {}, "fact": {}, "fra": {}, "recibo": {}, "periodo": {},
	"cuota": {}, "pago": {}, "correspondiente": {}, "importe": {}, "total": {},
	// English
	"the": {}, "for": {}, "and": {}, "monthly": {}, "month": {},
	"invoice": {}, "inv": {}, "receipt": {}, "bill": {}, "billing": {},
	"period": {}, "fee": {}, "payment": {}, "charge": {}, "amount": {},
}

var monthNames = map[string]struct{}{
	"enero": {}, "febrero": {}, "marzo": {}, "abril": {}, "mayo": {}, "junio": {},
	"julio": {}, "agosto": {}, "septiembre": {}, "setiembre": {}, "octubre": {},
	"noviembre": {}, "diciembre": {},
	"ene": {}, "feb": {}, "abr": {}, "ago": {}, "sept": {}, "oct": {}, "nov": {}, "dic": {},
	"january": {}, "february": {}, "march": {}, "april": {}, "june": {},
	"july": {}, "august": {}, "september": {}, "october": {}, "november": {}, "december": {},
	"jan": {}, "mar": {}, "apr": {}, "may": {}, "jun": {}, "jul": {}, "aug": {}, "sep": {}, "dec": {},
}
