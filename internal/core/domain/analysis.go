package domain

// Analysis holds the structured fields recognized in a document's text.
// Empty strings mean the field was not found.
type Analysis struct {
	DocumentType    string   `json:"document_type,omitempty"`
	TenantName      string   `json:"tenant_name,omitempty"`
	LandlordName    string   `json:"landlord_name,omitempty"`
	PropertyAddress string   `json:"property_address,omitempty"`
	LeaseStartDate  string   `json:"lease_start_date,omitempty"`
	LeaseEndDate    string   `json:"lease_end_date,omitempty"`
	MonthlyRent     string   `json:"monthly_rent,omitempty"`
	SecurityDeposit string   `json:"security_deposit,omitempty"`
	PinCode         string   `json:"pin_code,omitempty"`
	PhoneNumbers    []string `json:"phone_numbers"`
	InvoiceNumber   string   `json:"invoice_number,omitempty"`
	InvoiceDate     string   `json:"invoice_date,omitempty"`
	DueDate         string   `json:"due_date,omitempty"`
	BillToName      string   `json:"bill_to_name,omitempty"`
	BillToAddress   string   `json:"bill_to_address,omitempty"`
	TotalAmount     string   `json:"total_amount,omitempty"`
	TaxAmount       string   `json:"tax_amount,omitempty"`
	PaymentStatus   string   `json:"payment_status,omitempty"`
	PetsMentioned   bool     `json:"pets_mentioned"`
	ConfidenceScore float64  `json:"confidence_score"`
}

// Fields flattens the string-valued fields for search, keyed by their wire names.
func (a *Analysis) Fields() map[string][]string {
	if a == nil {
		return nil
	}
	out := map[string][]string{}
	add := func(key, value string) {
		if value != "" {
			out[key] = append(out[key], value)
		}
	}
	add("document_type", a.DocumentType)
	add("tenant_name", a.TenantName)
	add("landlord_name", a.LandlordName)
	add("property_address", a.PropertyAddress)
	add("lease_start_date", a.LeaseStartDate)
	add("lease_end_date", a.LeaseEndDate)
	add("monthly_rent", a.MonthlyRent)
	add("security_deposit", a.SecurityDeposit)
	add("pin_code", a.PinCode)
	add("invoice_number", a.InvoiceNumber)
	add("invoice_date", a.InvoiceDate)
	add("due_date", a.DueDate)
	add("bill_to_name", a.BillToName)
	add("bill_to_address", a.BillToAddress)
	add("total_amount", a.TotalAmount)
	add("tax_amount", a.TaxAmount)
	add("payment_status", a.PaymentStatus)
	for _, phone := range a.PhoneNumbers {
		add("phone_numbers", phone)
	}
	return out
}
