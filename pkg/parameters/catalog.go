package parameters

// CatalogEntry describes one addressable dynamic-parameter leaf: its
// dotted path, expected value shape, and (for devices.*[] paths) whether
// a selector id is required. Grounded on
// parameter_dynamic_catalog.py's DynamicParameterCatalogEntry.
type CatalogEntry struct {
	ParameterKey     string
	Label            string
	Hint             string
	ValueType        string
	ExpectedUnit     string
	Minimum          *float64
	Maximum          *float64
	Options          []string
	RequiresSelector bool
	SelectorHint     string
	Examples         []string
}

func f(v float64) *float64 { return &v }

const deviceSelectorHint = "Device ID (e.g. lfp or shaby)"

var defaultCatalog = []CatalogEntry{
	{
		ParameterKey: "ems.mode",
		Label:        "EMS mode",
		Hint:         "Controls the energy-management execution mode.",
		ValueType:    "enum",
		Options:      []string{"OPTIMIZATION", "IDLE", "DISABLED"},
		Examples:     []string{"OPTIMIZATION"},
	},
	{
		ParameterKey: "ems.interval",
		Label:        "EMS interval",
		Hint:         "Interval in seconds between automatic runs.",
		ValueType:    "number",
		ExpectedUnit: "s",
		Minimum:      f(1),
		Maximum:      f(86400),
		Examples:     []string{"900"},
	},
	{
		ParameterKey:     "devices.batteries[].min_soc_percentage",
		Label:            "Battery min SOC",
		Hint:             "Lower bound for battery SOC, in percent.",
		ValueType:        "number",
		ExpectedUnit:     "%",
		Minimum:          f(0),
		Maximum:          f(100),
		RequiresSelector: true,
		SelectorHint:     deviceSelectorHint,
		Examples:         []string{"10"},
	},
	{
		ParameterKey:     "devices.batteries[].max_soc_percentage",
		Label:            "Battery max SOC",
		Hint:             "Upper bound for battery SOC, in percent.",
		ValueType:        "number",
		ExpectedUnit:     "%",
		Minimum:          f(0),
		Maximum:          f(100),
		RequiresSelector: true,
		SelectorHint:     deviceSelectorHint,
		Examples:         []string{"95"},
	},
	{
		ParameterKey:     "devices.batteries[].min_charge_power_w",
		Label:            "Battery min charge power",
		Hint:             "Minimum charge power, in watts.",
		ValueType:        "number",
		ExpectedUnit:     "W",
		Minimum:          f(0),
		Maximum:          f(100000),
		RequiresSelector: true,
		SelectorHint:     deviceSelectorHint,
		Examples:         []string{"500"},
	},
	{
		ParameterKey:     "devices.batteries[].max_charge_power_w",
		Label:            "Battery max charge power",
		Hint:             "Maximum charge power, in watts.",
		ValueType:        "number",
		ExpectedUnit:     "W",
		Minimum:          f(0),
		Maximum:          f(100000),
		RequiresSelector: true,
		SelectorHint:     deviceSelectorHint,
		Examples:         []string{"18000"},
	},
	{
		ParameterKey:     "devices.electric_vehicles[].min_soc_percentage",
		Label:            "EV min SOC",
		Hint:             "Lower bound for EV SOC, in percent.",
		ValueType:        "number",
		ExpectedUnit:     "%",
		Minimum:          f(0),
		Maximum:          f(100),
		RequiresSelector: true,
		SelectorHint:     deviceSelectorHint,
		Examples:         []string{"20"},
	},
	{
		ParameterKey:     "devices.electric_vehicles[].max_soc_percentage",
		Label:            "EV max SOC",
		Hint:             "Upper bound for EV SOC, in percent.",
		ValueType:        "number",
		ExpectedUnit:     "%",
		Minimum:          f(0),
		Maximum:          f(100),
		RequiresSelector: true,
		SelectorHint:     deviceSelectorHint,
		Examples:         []string{"90"},
	},
	{
		ParameterKey:     "devices.electric_vehicles[].min_charge_power_w",
		Label:            "EV min charge power",
		Hint:             "Minimum EV charge power, in watts.",
		ValueType:        "number",
		ExpectedUnit:     "W",
		Minimum:          f(0),
		Maximum:          f(100000),
		RequiresSelector: true,
		SelectorHint:     deviceSelectorHint,
		Examples:         []string{"1400"},
	},
	{
		ParameterKey:     "devices.electric_vehicles[].max_charge_power_w",
		Label:            "EV max charge power",
		Hint:             "Maximum EV charge power, in watts.",
		ValueType:        "number",
		ExpectedUnit:     "W",
		Minimum:          f(0),
		Maximum:          f(100000),
		RequiresSelector: true,
		SelectorHint:     deviceSelectorHint,
		Examples:         []string{"11000"},
	},
	{
		ParameterKey:     "devices.inverters[].max_power_w",
		Label:            "Inverter max power",
		Hint:             "Maximum inverter power, in watts.",
		ValueType:        "number",
		ExpectedUnit:     "W",
		Minimum:          f(0),
		Maximum:          f(100000),
		RequiresSelector: true,
		SelectorHint:     deviceSelectorHint,
		Examples:         []string{"30000"},
	},
	{
		ParameterKey: "elecprice.charges_kwh",
		Label:        "Electricity price surcharge",
		Hint:         "Additional cost per kWh, in EUR/kWh.",
		ValueType:    "number",
		ExpectedUnit: "EUR/kWh",
		Minimum:      f(0),
		Maximum:      f(10),
		Examples:     []string{"0.23"},
	},
	{
		ParameterKey: "elecprice.vat_rate",
		Label:        "VAT factor",
		Hint:         "Factor, e.g. 1.19 for 19%.",
		ValueType:    "number",
		ExpectedUnit: "x",
		Minimum:      f(0),
		Maximum:      f(5),
		Examples:     []string{"1.19"},
	},
	{
		ParameterKey: "feedintariff.provider_settings.FeedInTariffFixed.feed_in_tariff_kwh",
		Label:        "Feed-in tariff",
		Hint:         "Fixed feed-in tariff, in EUR/kWh.",
		ValueType:    "number",
		ExpectedUnit: "EUR/kWh",
		Minimum:      f(0),
		Maximum:      f(10),
		Examples:     []string{"0.09"},
	},
	{
		ParameterKey: "measurement.keys",
		Label:        "Measurement keys",
		Hint:         "Comma-separated list or JSON list.",
		ValueType:    "string_list",
		Examples:     []string{"house_load_w,pv_power_w"},
	},
	{
		ParameterKey: "measurement.load_emr_keys",
		Label:        "Load EMR keys",
		Hint:         "Comma-separated list or JSON list.",
		ValueType:    "string_list",
		Examples:     []string{"house_load_emr_kwh"},
	},
	{
		ParameterKey: "measurement.grid_import_emr_keys",
		Label:        "Grid import EMR keys",
		Hint:         "Comma-separated list or JSON list.",
		ValueType:    "string_list",
		Examples:     []string{"grid_import_emr_kwh"},
	},
	{
		ParameterKey: "measurement.grid_export_emr_keys",
		Label:        "Grid export EMR keys",
		Hint:         "Comma-separated list or JSON list.",
		ValueType:    "string_list",
		Examples:     []string{"grid_export_emr_kwh"},
	},
	{
		ParameterKey: "measurement.pv_production_emr_keys",
		Label:        "PV production EMR keys",
		Hint:         "Comma-separated list or JSON list.",
		ValueType:    "string_list",
		Examples:     []string{"pv_production_emr_kwh"},
	},
}

// Catalog serves the static dynamic-parameter catalog.
type Catalog struct {
	entries []CatalogEntry
	byKey   map[string]CatalogEntry
}

// NewCatalog builds a Catalog over the default entry set.
func NewCatalog() *Catalog {
	byKey := make(map[string]CatalogEntry, len(defaultCatalog))
	for _, e := range defaultCatalog {
		byKey[e.ParameterKey] = e
	}
	return &Catalog{entries: defaultCatalog, byKey: byKey}
}

// ListEntries returns every catalog entry.
func (c *Catalog) ListEntries() []CatalogEntry {
	return c.entries
}

// GetEntry looks up a single entry by its dotted parameter key.
func (c *Catalog) GetEntry(parameterKey string) (CatalogEntry, bool) {
	e, ok := c.byKey[parameterKey]
	return e, ok
}
