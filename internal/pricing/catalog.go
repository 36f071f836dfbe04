package pricing

// ApplicableToAll marks an add-on usable with any service.
const ApplicableToAll = "all"

// CatalogItem is a service, add-on or bundle as seen by the pricing engine.
type CatalogItem struct {
	Key   string
	Name  string
	Price Price
	// Applicability is only meaningful for add-ons.
	Applicability []string
	// MinTerm is informational and never enforced here.
	MinTerm string
}

// AppliesTo reports whether an add-on may be billed next to the given services.
func (c CatalogItem) AppliesTo(serviceKeys []string) bool {
	for _, a := range c.Applicability {
		if a == ApplicableToAll {
			return true
		}
		for _, s := range serviceKeys {
			if a == s {
				return true
			}
		}
	}
	return false
}

// Catalog is an immutable snapshot of the three collections.
type Catalog struct {
	Services []CatalogItem
	Addons   []CatalogItem
	Bundles  []CatalogItem
}

// Index is a keyed view over a Catalog.
type Index struct {
	services map[string]CatalogItem
	addons   map[string]CatalogItem
	bundles  map[string]CatalogItem
}

// Index builds lookup maps. When a key repeats, the first entry wins.
func (c Catalog) Index() Index {
	return Index{
		services: indexItems(c.Services),
		addons:   indexItems(c.Addons),
		bundles:  indexItems(c.Bundles),
	}
}

func indexItems(items []CatalogItem) map[string]CatalogItem {
	out := make(map[string]CatalogItem, len(items))
	for _, it := range items {
		if _, ok := out[it.Key]; ok {
			continue
		}
		out[it.Key] = it
	}
	return out
}

// Service looks up a service by key.
func (i Index) Service(key string) (CatalogItem, bool) {
	it, ok := i.services[key]
	return it, ok
}

// Addon looks up an add-on by key.
func (i Index) Addon(key string) (CatalogItem, bool) {
	it, ok := i.addons[key]
	return it, ok
}

// Bundle looks up a bundle by key.
func (i Index) Bundle(key string) (CatalogItem, bool) {
	it, ok := i.bundles[key]
	return it, ok
}

// Selection is the set of chosen keys plus the billing plan.
type Selection struct {
	Services []string `json:"services"`
	Bundles  []string `json:"bundles"`
	Addons   []string `json:"addons"`
	Plan     Plan     `json:"plan"`
}

// Empty reports whether nothing is selected.
func (s Selection) Empty() bool {
	return len(s.Services) == 0 && len(s.Bundles) == 0 && len(s.Addons) == 0
}
