package dictionary

// CategoryDef is one curated revenue category offered to every restaurant.
type CategoryDef struct {
	Code     string `json:"code"`
	Label    string `json:"label"`
	Reserved bool   `json:"reserved"`
}

var curated = []CategoryDef{
	{Code: "food", Label: "Food", Reserved: false},
	{Code: "beverage", Label: "Beverage", Reserved: false},
	{Code: "alcohol", Label: "Alcohol", Reserved: false},
	{Code: "dessert", Label: "Dessert", Reserved: false},
	{Code: "merchandise", Label: "Merchandise", Reserved: false},
	{Code: "gift_card", Label: "Gift Card", Reserved: false},
	{Code: "catering", Label: "Catering", Reserved: false},
	{Code: "delivery_fee", Label: "Delivery Fee", Reserved: false},
	{Code: "service_charge", Label: "Service Charge", Reserved: false},
	{Code: "uncategorized", Label: "Uncategorized", Reserved: true},
}

// Defaults returns the curated category set seeded for new restaurants.
func Defaults() []CategoryDef {
	out := make([]CategoryDef, len(curated))
	copy(out, curated)
	return out
}

// IsReserved reports whether a category code is reserved for system use.
func IsReserved(code string) bool {
	for _, c := range curated {
		if c.Code == code && c.Reserved {
			return true
		}
	}
	return false
}
