package typereg

func fptr(f float64) *float64 { return &f }

// Default returns the built-in registry matching the dashboard's
// facility types.
func Default() *Registry {
	zero := fptr(0)

	numReq := func(key, label, suffix string) Field {
		return Field{Key: key, Label: label, Kind: KindNumber, Suffix: suffix, Rules: Rules{Required: true, Min: zero}}
	}
	numOpt := func(key, label string) Field {
		return Field{Key: key, Label: label, Kind: KindNumber, Rules: Rules{Min: zero}}
	}
	count := func(key, label string, required bool) Field {
		return Field{Key: key, Label: label, Kind: KindNumber, Rules: Rules{Required: required, Min: zero, Integer: true}}
	}
	text := func(key, label string, maxLen int) Field {
		return Field{Key: key, Label: label, Kind: KindText, Rules: Rules{MaxLength: maxLen}}
	}

	return New(map[string]Schema{
		"GREENHOUSE": {
			Label: "Issiqxona",
			Color: "#16a34a",
			Fields: []Field{
				numReq("totalAreaHa", "Umumiy yer maydoni", "ga"),
				text("heating_type", "Isitish tizimi turi", 120),
				numOpt("yield_amount", "Olinadigan mahsulot (tonna/yil)"),
				numOpt("revenue", "Olinadigan daromad"),
				numOpt("profit", "Olingan sof foyda"),
				text("tenant", "Ijarachi", 120),
			},
		},
		"COWSHED": {
			Label: "Molxona",
			Color: "#6b7280",
			Fields: []Field{
				numReq("areaM2", "Umumiy yer maydoni", "m²"),
				count("capacity", "Umumiy sig'imi (bosh)", true),
				count("current", "Hozirda mavjud (bosh)", false),
				numOpt("milk_l_per_day", "Sut (litr/kun)"),
				numOpt("revenue", "Olinadigan daromad"),
			},
		},
		"STABLE": {
			Label: "Otxona",
			Color: "#b45309",
			Fields: []Field{
				numReq("areaM2", "Umumiy yer maydoni", "m²"),
				count("capacity", "Umumiy sig'imi (bosh)", true),
				count("current", "Hozirda mavjud (bosh)", false),
			},
		},
		"FISHFARM": {
			Label: "Baliqchilik ko'li",
			Color: "#3b82f6",
			Fields: []Field{
				numReq("totalAreaHa", "Suv maydoni", "ga"),
				numOpt("yield_amount", "Olinadigan mahsulot (tonna/yil)"),
				text("species", "Baliq turi", 120),
			},
		},
		"WAREHOUSE": {
			Label: "Ombor",
			Color: "#ea580c",
			Fields: []Field{
				numReq("areaM2", "Umumiy yer maydoni", "m²"),
				numOpt("capacity_t", "Sig'imi (tonna)"),
				text("tenant", "Ijarachi", 120),
			},
		},
		"ORCHARD": {
			Label: "Bog'",
			Color: "#22c55e",
			Fields: []Field{
				numReq("totalAreaHa", "Umumiy yer maydoni", "ga"),
				text("crop", "Ekin turi", 120),
				numOpt("yield_amount", "Olinadigan mahsulot (tonna/yil)"),
			},
		},
		"FIELD": {
			Label: "Ekin maydoni",
			Color: "#84cc16",
			Fields: []Field{
				numReq("totalAreaHa", "Umumiy yer maydoni", "ga"),
				text("crop", "Ekin turi", 120),
				numOpt("yield_amount", "Olinadigan mahsulot (tonna/yil)"),
				text("government_decision", "Hukumat qarori", 160),
			},
		},
		"POULTRY": {
			Label: "Tovuqxona",
			Color: "#ef4444",
			Fields: []Field{
				numReq("areaM2", "Umumiy yer maydoni", "m²"),
				count("capacity", "Umumiy sig'imi (bosh)", true),
				count("current", "Hozirda mavjud (bosh)", false),
				count("eggs_per_day", "Tuxum (dona/kun)", false),
			},
		},
		"APIARY": {
			Label: "Asalarichilik",
			Color: "#f59e0b",
			Fields: []Field{
				count("hives", "Uyalar soni", true),
				numOpt("honey_kg_per_year", "Asal (kg/yil)"),
			},
		},
	})
}
