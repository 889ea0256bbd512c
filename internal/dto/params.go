package dto

// Per-type job parameters. The engine treats parameters as an opaque map;
// these structs exist so enqueue can reject malformed payloads before the
// job ever reaches a worker.

type ClassificationParams struct {
	HSRevision     string  `json:"hs_revision" validate:"required"`
	Country        string  `json:"country" validate:"required,len=2"`
	MinConfidence  float64 `json:"min_confidence" validate:"gte=0,lte=1"`
	ReclassifyAll  bool    `json:"reclassify_all"`
	FallbackToGRI1 bool    `json:"fallback_to_gri1"`
}

type FeeCalculationParams struct {
	Country      string `json:"country" validate:"required,len=2"`
	CurrencyCode string `json:"currency_code" validate:"required,len=3"`
	Incoterm     string `json:"incoterm" validate:"omitempty,oneof=EXW FOB CIF DDP DAP"`
	IncludeVAT   bool   `json:"include_vat"`
}

type ImportParams struct {
	SourceURI    string `json:"source_uri" validate:"required"`
	Format       string `json:"format" validate:"required,oneof=csv xlsx json"`
	SkipExisting bool   `json:"skip_existing"`
}

type ExportParams struct {
	Format          string `json:"format" validate:"required,oneof=csv xlsx json"`
	IncludeArchived bool   `json:"include_archived"`
}
