package config

import "os"

// Defaults returns the built-in configuration, with secrets taken from the environment.
func Defaults(catalogRoot string) Config {
	return Config{
		CatalogRoot:    catalogRoot,
		CatalogVersion: "1.0.0",
		Workers:        4,
		APIKey:         os.Getenv("GEMINI_API_KEY"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		ImageStore: ImageStore{
			Path:     "images_store",
			Encoders: DefaultEncoders(),
		},
		Vision: Vision{
			PrimaryAgentID:      "ollama:llava",
			MaxCalls:            500,
			MaxConcurrentCalls:  2,
			ConfidenceThreshold: 0.7,
			RequestsPerSecond:   2,
			CallTimeout:         "60s",
			RecordDeadline:      "3m",
			PromptVersion:       "v1",
			OllamaHost:          envOr("OLLAMA_HOST", "http://localhost:11434"),
		},
		VectorSink: VectorSink{
			Kind:           SinkQdrant,
			Endpoint:       envOr("QDRANT_URL", "localhost:6334"),
			EmbeddingDim:   768,
			EmbeddingModel: "text-embedding-004",
			APIKey:         os.Getenv("QDRANT_API_KEY"),
		},
	}
}

// DefaultEncoders maps each category to its encoder policy. Diagrams and line drawings
// (structures, string boxes, cables, accessories) stay lossless; product photos use lossy.
func DefaultEncoders() map[string]string {
	return map[string]string{
		"panel":      EncoderLossy95,
		"inverter":   EncoderLossy95,
		"battery":    EncoderLossy95,
		"kit":        EncoderLossy85,
		"ev_charger": EncoderLossy95,
		"controller": EncoderLossy95,
		"stringbox":  EncoderLossless,
		"structure":  EncoderLossless,
		"cable":      EncoderLossless,
		"accessory":  EncoderLossless,
		"post":       EncoderLossy85,
		"other":      EncoderLossy85,
	}
}

// DefaultCategoryAliases maps raw category strings seen in distributor feeds to categories.
// Keys are folded (lowercase, no accents) before lookup.
func DefaultCategoryAliases() map[string]string {
	return map[string]string{
		"painel":               "panel",
		"paineis":              "panel",
		"painel solar":         "panel",
		"modulo":               "panel",
		"modulos":              "panel",
		"modulo fotovoltaico":  "panel",
		"panels":               "panel",
		"inversor":             "inverter",
		"inversores":           "inverter",
		"microinversor":        "inverter",
		"inverters":            "inverter",
		"bateria":              "battery",
		"baterias":             "battery",
		"batteries":            "battery",
		"kit":                  "kit",
		"kits":                 "kit",
		"gerador":              "kit",
		"gerador fotovoltaico": "kit",
		"string box":           "stringbox",
		"stringbox":            "stringbox",
		"quadro de protecao":   "stringbox",
		"estrutura":            "structure",
		"estruturas":           "structure",
		"cabo":                 "cable",
		"cabos":                "cable",
		"carregador veicular":  "ev_charger",
		"carregador":           "ev_charger",
		"wallbox":              "ev_charger",
		"controlador":          "controller",
		"controlador de carga": "controller",
		"acessorio":            "accessory",
		"acessorios":           "accessory",
		"conector":             "accessory",
		"poste":                "post",
		"poste solar":          "post",
	}
}

// DefaultManufacturerAliases maps folded raw manufacturer spellings to canonical names.
func DefaultManufacturerAliases() map[string]string {
	return map[string]string{
		"lon gi":             "LONGi",
		"longi solar":        "LONGi",
		"canadian":           "Canadian Solar",
		"canadiansolar":      "Canadian Solar",
		"jinko":              "Jinko Solar",
		"jinkosolar":         "Jinko Solar",
		"trina":              "Trina Solar",
		"trinasolar":         "Trina Solar",
		"ja solar":           "JA Solar",
		"jasolar":            "JA Solar",
		"byd energy":         "BYD",
		"growatt new energy": "Growatt",
		"deye inverter":      "Deye",
		"sofar solar":        "Sofar",
		"fronius int":        "Fronius",
		"huawei fusionsolar": "Huawei",
		"sungrow power":      "Sungrow",
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
