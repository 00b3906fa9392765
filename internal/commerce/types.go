package commerce

// Address is a postal destination as the backend stores it. Key joins the
// address to shipping targets, shipping entries and delivery-method records.
type Address struct {
	Key                   string `json:"key,omitempty"`
	FirstName             string `json:"firstName,omitempty"`
	LastName              string `json:"lastName,omitempty"`
	StreetName            string `json:"streetName,omitempty"`
	StreetNumber          string `json:"streetNumber,omitempty"`
	PostalCode            string `json:"postalCode,omitempty"`
	City                  string `json:"city,omitempty"`
	Region                string `json:"region,omitempty"`
	Country               string `json:"country" validate:"required,iso3166_1_alpha2"`
	Phone                 string `json:"phone,omitempty"`
	Email                 string `json:"email,omitempty" validate:"omitempty,email"`
	AdditionalAddressInfo string `json:"additionalAddressInfo,omitempty"`
}

// ShippingTarget states that Quantity units of a line item ship to the
// address identified by AddressKey. ShippingMethodKey is a separate
// identifier space; the backend happens to reuse the address key for it
// but nothing here relies on that.
type ShippingTarget struct {
	AddressKey        string `json:"addressKey"`
	Quantity          int64  `json:"quantity"`
	ShippingMethodKey string `json:"shippingMethodKey,omitempty"`
}

// ItemShippingDetails groups the per-address targets of one line item.
type ItemShippingDetails struct {
	Targets []ShippingTarget `json:"targets"`
}

// LineItem is one product/quantity entry in the cart. Read-only to this
// service; only its shipping targets are ever rewritten.
type LineItem struct {
	ID              string               `json:"id"`
	ProductID       string               `json:"productId,omitempty"`
	Name            string               `json:"name"`
	SKU             string               `json:"sku,omitempty"`
	Quantity        int64                `json:"quantity"`
	ShippingDetails *ItemShippingDetails `json:"shippingDetails,omitempty"`
}

// ShippingMethod is a delivery option offered by the backend.
type ShippingMethod struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsDefault   bool   `json:"isDefault,omitempty"`
}

// ShippingMethodRef points at a shipping method from a cart shipping entry.
type ShippingMethodRef struct {
	ID string `json:"id"`
}

// ShippingInfo carries the delivery method attached to a shipping entry.
type ShippingInfo struct {
	ShippingMethod     *ShippingMethodRef `json:"shippingMethod,omitempty"`
	ShippingMethodName string             `json:"shippingMethodName,omitempty"`
}

// ShippingEntry is one per-address shipping record on a multi-destination
// cart, keyed by ShippingKey and joined to its address by Address.Key.
type ShippingEntry struct {
	ShippingKey     string        `json:"shippingKey"`
	ShippingAddress Address       `json:"shippingAddress"`
	ShippingInfo    *ShippingInfo `json:"shippingInfo,omitempty"`
}

// Cart is the backend's full cart snapshot. Version is the optimistic
// concurrency token; every mutating call must echo the version returned
// by the previous call.
type Cart struct {
	ID                    string          `json:"id"`
	Version               int64           `json:"version"`
	LineItems             []LineItem      `json:"lineItems"`
	ShippingAddress       *Address        `json:"shippingAddress,omitempty"`
	BillingAddress        *Address        `json:"billingAddress,omitempty"`
	ItemShippingAddresses []Address       `json:"itemShippingAddresses,omitempty"`
	Shipping              []ShippingEntry `json:"shipping,omitempty"`
}

// MethodAssignment binds a shipping method to a destination address.
type MethodAssignment struct {
	ShippingKey      string  `json:"shippingKey"`
	ShippingMethodID string  `json:"shippingMethodId"`
	ShippingAddress  Address `json:"shippingAddress"`
}

// ProjectSettings is the reference-data payload backing country pickers.
type ProjectSettings struct {
	Countries  []string `json:"countries"`
	Currencies []string `json:"currencies,omitempty"`
	Languages  []string `json:"languages,omitempty"`
}

// LineItemByID returns the line item with the given id, if present.
func (c Cart) LineItemByID(id string) (LineItem, bool) {
	for _, li := range c.LineItems {
		if li.ID == id {
			return li, true
		}
	}
	return LineItem{}, false
}

// ItemShippingAddressByKey returns the stored item-shipping address with
// the given key, if present.
func (c Cart) ItemShippingAddressByKey(key string) (Address, bool) {
	for _, addr := range c.ItemShippingAddresses {
		if addr.Key == key {
			return addr, true
		}
	}
	return Address{}, false
}

// ShippingEntryByAddressKey returns the shipping entry whose address
// carries the given key, if present.
func (c Cart) ShippingEntryByAddressKey(key string) (ShippingEntry, bool) {
	for _, entry := range c.Shipping {
		if entry.ShippingAddress.Key == key {
			return entry, true
		}
	}
	return ShippingEntry{}, false
}
