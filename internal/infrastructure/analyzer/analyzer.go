package analyzer

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/kirillkom/estate-docs/internal/core/domain"
)

// Analyzer extracts lease, invoice and utility bill fields from OCR text with
// ordered pattern lists; the first pattern that matches wins.
type Analyzer struct{}

func New() *Analyzer { return &Analyzer{} }

type docTypePatterns struct {
	name     string
	patterns []*regexp.Regexp
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// Evaluated in order; ties go to the earlier type.
var documentTypes = []docTypePatterns{
	{"invoice", compileAll(
		`invoice`, `tax\s+invoice`, `invoice#`, `bill\s+to`, `invoice\s+number`, `invoice\s+date`,
		`due\s+date`, `total\s+amount`, `amount\s+due`, `gstin`, `pan\s+no`, `payment\s+made`,
	)},
	{"rental_agreement", compileAll(
		`lease\s+agreement`, `rental\s+agreement`, `landlord`, `tenant`, `monthly\s+rent`,
		`lease\s+start`, `lease\s+end`, `security\s+deposit`,
	)},
	{"utility_bill", compileAll(
		`utility\s+bill`, `electric\s+bill`, `gas\s+bill`, `water\s+bill`, `service\s+period`,
		`meter\s+reading`, `usage`,
	)},
}

var (
	invoiceShortcut = regexp.MustCompile(`tax\s+invoice|invoice#|invoice\s+number`)

	tenantPatterns = compileAll(
		`(?i)tenant[:\s]*([A-Za-z\s]+?)(?:\n|$|,)`,
		`(?i)renter[:\s]*([A-Za-z\s]+?)(?:\n|$|,)`,
		`(?i)lessee[:\s]*([A-Za-z\s]+?)(?:\n|$|,)`,
	)
	landlordPatterns = compileAll(
		`(?i)landlord[:\s]*([A-Za-z\s]+?)(?:\n|$|,)`,
		`(?i)lessor[:\s]*([A-Za-z\s]+?)(?:\n|$|,)`,
		`(?i)owner[:\s]*([A-Za-z\s]+?)(?:\n|$|,)`,
		`(?i)property\s+owner[:\s]*([A-Za-z\s]+?)(?:\n|$|,)`,
	)
	addressPatterns = compileAll(
		`(?i)property\s+address[:\s]*([^\n]+)`,
		`(?i)address[:\s]*([^\n]+(?:\d{5}|\d{6}))`,
		`(?i)located\s+at[:\s]*([^\n]+)`,
		`(?i)premises[:\s]*([^\n]+)`,
	)
	leaseStartPatterns = compileAll(
		`(?i)lease\s+start\s+date[:\s]*([A-Za-z]+ \d{1,2},? \d{4})`,
		`(?i)start\s+date[:\s]*([A-Za-z]+ \d{1,2},? \d{4})`,
		`(?i)commencement\s+date[:\s]*([A-Za-z]+ \d{1,2},? \d{4})`,
		`(?i)lease\s+begins[:\s]*([A-Za-z]+ \d{1,2},? \d{4})`,
	)
	leaseEndPatterns = compileAll(
		`(?i)lease\s+end\s+date[:\s]*([A-Za-z]+ \d{1,2},? \d{4})`,
		`(?i)end\s+date[:\s]*([A-Za-z]+ \d{1,2},? \d{4})`,
		`(?i)expiration\s+date[:\s]*([A-Za-z]+ \d{1,2},? \d{4})`,
		`(?i)lease\s+expires[:\s]*([A-Za-z]+ \d{1,2},? \d{4})`,
	)
	rentPatterns = compileAll(
		`(?i)monthly\s+rent[:\s]*\$?([\d,]+\.?\d*)`,
		`(?i)rent[:\s]*\$?([\d,]+\.?\d*)\s*(?:per\s+month|monthly|/month)`,
		`(?i)rental\s+amount[:\s]*\$?([\d,]+\.?\d*)`,
	)
	depositPatterns = compileAll(
		`(?i)security\s+deposit[:\s]*\$?([\d,]+\.?\d*)`,
		`(?i)deposit[:\s]*\$?([\d,]+\.?\d*)`,
		`(?i)damage\s+deposit[:\s]*\$?([\d,]+\.?\d*)`,
	)
	pinPatterns = compileAll(
		`(?i)pin\s+code\s*:\s*(\d{5,6})`,
		`(?i)pin\s+code[:\s]*(\d{5,6})`,
		`(?i)zip\s+code[:\s]*(\d{5})`,
		`(?i)postal\s+code[:\s]*(\d{5,6})`,
		`(?i)\b(\d{6})\b\s*(?:Tamil\s+Nadu|India|Telangana)`,
		`(?i)\b(\d{5})\b\s*(?:Tamil\s+Nadu|India|Telangana)`,
	)
	phonePatterns = compileAll(
		`\((\d{3})\)\s*(\d{3})-(\d{4})`,
		`(\d{3})-(\d{3})-(\d{4})`,
		`(\d{3})\.(\d{3})\.(\d{4})`,
		`(\d{3})\s+(\d{3})\s+(\d{4})`,
		`\+?1?[-.\s]?\(?(\d{3})\)?[-.\s]?(\d{3})[-.\s]?(\d{4})`,
	)
	invoiceNumberPatterns = compileAll(
		`(?i)INVOICE#\s*:\s*([A-Za-z0-9-]+)`,
		`(?i)invoice\s+(?:number|#)[:\s]*([A-Za-z0-9-]+)`,
		`(?i)invoice[:\s]*([A-Za-z0-9-]+)`,
		`(?i)bill\s+(?:number|#)[:\s]*([A-Za-z0-9-]+)`,
		`(?i)TAX\s+INVOICE[^#]*#\s*:\s*([A-Za-z0-9-]+)`,
	)
	invoiceDatePatterns = compileAll(
		`(?i)DATE\s*:\s*(\d{1,2}\s+[A-Za-z]+\s+\d{4})`,
		`(?i)invoice\s+date[:\s]*([A-Za-z]+ \d{1,2},? \d{4})`,
		`(?i)date[:\s]*([A-Za-z]+ \d{1,2},? \d{4})`,
		`(?i)bill\s+date[:\s]*([A-Za-z]+ \d{1,2},? \d{4})`,
	)
	dueDatePatterns = compileAll(
		`(?i)DUE\s+DATE\s*:\s*(\d{1,2}\s+[A-Za-z]+\s+\d{4})`,
		`(?i)due\s+date[:\s]*([A-Za-z]+ \d{1,2},? \d{4})`,
		`(?i)payment\s+due[:\s]*([A-Za-z]+ \d{1,2},? \d{4})`,
		`(?i)due\s+by[:\s]*([A-Za-z]+ \d{1,2},? \d{4})`,
	)
	billToNamePatterns = compileAll(
		`(?i)Bill\s+To\s*\n\s*([A-Za-z\s]+?)(?:\n|Attn:)`,
		`(?i)bill\s+to[:\s]*([A-Za-z\s]+?)(?:\n|$|,)`,
		`(?i)billed\s+to[:\s]*([A-Za-z\s]+?)(?:\n|$|,)`,
		`(?i)customer[:\s]*([A-Za-z\s]+?)(?:\n|$|,)`,
		`(?i)Bill\s+To[^A-Za-z]*([A-Za-z\s]+?)(?:Attn:|H\s+No\.|Address:|$)`,
	)
	billToAddressPatterns = compileAll(
		`(?i)Bill\s+To[^H]*H\s+No\.([^G]*?)(?:GSTIN|Telangana)`,
		`(?i)bill\s+to[:\s]*[A-Za-z\s]+\n([^\n]+(?:\d{5}|\d{6}))`,
		`(?i)billing\s+address[:\s]*([^\n]+)`,
		`(?i)customer\s+address[:\s]*([^\n]+)`,
		`(?i)Attn:[^\n]*\n([^G]*?)(?:GSTIN|$)`,
	)
	totalPatterns = compileAll(
		`(?i)Total\s+₹([\d,]+\.?\d*)`,
		`(?i)Total\s+Rs\.?\s*([\d,]+\.?\d*)`,
		`(?i)total\s+amount[:\s]*\$?([\d,]+\.?\d*)`,
		`(?i)total\s+amount[:\s]*₹([\d,]+\.?\d*)`,
		`(?i)total[:\s]*\$?([\d,]+\.?\d*)`,
		`(?i)total[:\s]*₹([\d,]+\.?\d*)`,
		`(?i)amount\s+due[:\s]*\$?([\d,]+\.?\d*)`,
		`(?i)amount\s+due[:\s]*₹([\d,]+\.?\d*)`,
		`(?i)balance\s+due[:\s]*\$?([\d,]+\.?\d*)`,
		`(?i)balance\s+due[:\s]*₹([\d,]+\.?\d*)`,
	)
	taxPatterns = compileAll(
		`(?i)IGST18\s*\(18%\)\s*([\d,]+\.?\d*)`,
		`(?i)IGST\s*\d+\s*\([^)]+\)\s*([\d,]+\.?\d*)`,
		`(?i)tax[:\s]*\$?([\d,]+\.?\d*)`,
		`(?i)tax[:\s]*₹([\d,]+\.?\d*)`,
		`(?i)sales\s+tax[:\s]*\$?([\d,]+\.?\d*)`,
		`(?i)sales\s+tax[:\s]*₹([\d,]+\.?\d*)`,
		`(?i)vat[:\s]*\$?([\d,]+\.?\d*)`,
		`(?i)vat[:\s]*₹([\d,]+\.?\d*)`,
		`(?i)GST[:\s]*₹([\d,]+\.?\d*)`,
	)

	paidPattern     = regexp.MustCompile(`\bpaid\b|\bpayment\s+received\b|\bcomplete\b|\bpayment\s+made\b`)
	zeroBalance     = regexp.MustCompile(`balance\s+due\s*₹?0\.00|balance\s+due\s*\$?0\.00`)
	duePattern      = regexp.MustCompile(`\bdue\b|\bpending\b|\bunpaid\b|\boverdue\b`)
	partialPattern  = regexp.MustCompile(`\bpartial\b|\bpartially\s+paid\b`)
	petPattern      = regexp.MustCompile(`\bpets?\b|\bdog\b|\bcat\b|\banimal\b|\bpuppy\b|\bkitten\b`)
	hasDigit        = regexp.MustCompile(`\d`)
	looksLikeStreet = regexp.MustCompile(`\d+.*[A-Za-z]`)
	hasStructure    = regexp.MustCompile(`[:\n]`)
)

// extractableFields is the denominator of the confidence score.
const extractableFields = 20

func (a *Analyzer) Analyze(text string) domain.Analysis {
	out := domain.Analysis{
		DocumentType:    identifyDocumentType(text),
		TenantName:      firstName(tenantPatterns, text),
		LandlordName:    firstName(landlordPatterns, text),
		PropertyAddress: firstAddress(addressPatterns, text),
		LeaseStartDate:  firstMatch(leaseStartPatterns, text),
		LeaseEndDate:    firstMatch(leaseEndPatterns, text),
		MonthlyRent:     firstAmount(rentPatterns, text, "$"),
		SecurityDeposit: firstAmount(depositPatterns, text, "$"),
		PinCode:         firstMatch(pinPatterns, text),
		PhoneNumbers:    phoneNumbers(text),
		InvoiceNumber:   firstMatch(invoiceNumberPatterns, text),
		InvoiceDate:     firstMatch(invoiceDatePatterns, text),
		DueDate:         firstMatch(dueDatePatterns, text),
		BillToName:      firstName(billToNamePatterns, text),
		BillToAddress:   firstAddress(billToAddressPatterns, text),
		TotalAmount:     firstAmount(totalPatterns, text, currencySymbol(text)),
		TaxAmount:       firstAmount(taxPatterns, text, currencySymbol(text)),
		PaymentStatus:   paymentStatus(text),
		PetsMentioned:   petPattern.MatchString(strings.ToLower(text)),
	}
	out.ConfidenceScore = confidence(text, out)
	return out
}

func identifyDocumentType(text string) string {
	lower := strings.ToLower(text)
	if invoiceShortcut.MatchString(lower) {
		return "invoice"
	}
	best, bestScore := "", 0
	for _, dt := range documentTypes {
		score := 0
		for _, p := range dt.patterns {
			score += len(p.FindAllStringIndex(lower, -1))
		}
		if score > bestScore {
			best, bestScore = dt.name, score
		}
	}
	return best
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func firstName(patterns []*regexp.Regexp, text string) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			name := strings.TrimSpace(m[1])
			if len(name) > 2 && !hasDigit.MatchString(name) {
				return name
			}
		}
	}
	return ""
}

func firstAddress(patterns []*regexp.Regexp, text string) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			address := strings.TrimSpace(m[1])
			if looksLikeStreet.MatchString(address) {
				return address
			}
		}
	}
	return ""
}

func firstAmount(patterns []*regexp.Regexp, text, symbol string) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return symbol + strings.ReplaceAll(m[1], ",", "")
		}
	}
	return ""
}

func currencySymbol(text string) string {
	if strings.Contains(text, "₹") {
		return "₹"
	}
	return "$"
}

func phoneNumbers(text string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, p := range phonePatterns {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			phone := fmt.Sprintf("(%s) %s-%s", m[1], m[2], m[3])
			if _, ok := seen[phone]; ok {
				continue
			}
			seen[phone] = struct{}{}
			out = append(out, phone)
		}
	}
	return out
}

func paymentStatus(text string) string {
	lower := strings.ToLower(text)
	switch {
	case paidPattern.MatchString(lower), zeroBalance.MatchString(lower):
		return "paid"
	case duePattern.MatchString(lower):
		return "due"
	case partialPattern.MatchString(lower):
		return "partial"
	default:
		return ""
	}
}

func confidence(text string, a domain.Analysis) float64 {
	found := 0
	for _, v := range []string{
		a.DocumentType, a.TenantName, a.LandlordName, a.PropertyAddress, a.LeaseStartDate, a.LeaseEndDate,
		a.MonthlyRent, a.SecurityDeposit, a.PinCode, a.InvoiceNumber, a.InvoiceDate, a.DueDate,
		a.BillToName, a.BillToAddress, a.TotalAmount, a.TaxAmount, a.PaymentStatus,
	} {
		if v != "" {
			found++
		}
	}
	if len(a.PhoneNumbers) > 0 {
		found++
	}
	if a.PetsMentioned {
		found++
	}

	quality := 1.0
	if len([]rune(text)) > 100 {
		quality += 0.1
	}
	if hasStructure.MatchString(text) {
		quality += 0.1
	}
	if hasDigit.MatchString(text) {
		quality += 0.1
	}
	if strings.Contains(text, "$") {
		quality += 0.1
	}

	score := math.Min(float64(found)/extractableFields*quality, 1.0)
	return math.Round(score*100) / 100
}
