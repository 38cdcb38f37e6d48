package model

import "regexp"

// VendorType identifies which delivery platform an invoice belongs to.
type VendorType string

const (
	VendorUberEats VendorType = "ubereats"
	VendorDoorDash VendorType = "doordash"
	VendorGrubhub  VendorType = "grubhub"
	VendorIfood    VendorType = "ifood"
	VendorRappi    VendorType = "rappi"
	VendorOther    VendorType = "other"
)

// vendorPatterns maps the stem prefix regex to its vendor. Order doesn't
// matter: the prefixes are mutually exclusive by construction.
var vendorPatterns = []struct {
	re     *regexp.Regexp
	vendor VendorType
}{
	{regexp.MustCompile(`^UE-[A-Za-z0-9-]+$`), VendorUberEats},
	{regexp.MustCompile(`^DD-[A-Za-z0-9-]+$`), VendorDoorDash},
	{regexp.MustCompile(`^GH-[A-Za-z0-9-]+$`), VendorGrubhub},
	{regexp.MustCompile(`^IF-[A-Za-z0-9-]+$`), VendorIfood},
	{regexp.MustCompile(`^RP-[A-Za-z0-9-]+$`), VendorRappi},
}

// DetectVendor applies the five vendor prefix patterns to an invoice id
// stem. It returns VendorOther when nothing matches. This is the single
// source of truth shared by Stage A (to mint an InvoiceId from an object
// name) and Stage B (to authoritatively classify a Converted event).
func DetectVendor(stem string) VendorType {
	for _, p := range vendorPatterns {
		if p.re.MatchString(stem) {
			return p.vendor
		}
	}
	return VendorOther
}

// Valid reports whether v is one of the six defined vendor values.
func (v VendorType) Valid() bool {
	switch v {
	case VendorUberEats, VendorDoorDash, VendorGrubhub, VendorIfood, VendorRappi, VendorOther:
		return true
	default:
		return false
	}
}
