package taxonomy

type ConsolidatePayload struct {
	Targets      []string `json:"targets" validate:"required,min=1,dive,min=1,max=300"`
	Values       []string `json:"values" validate:"required,min=1,dive,min=1,max=300"`
	RewriteFiles bool     `json:"rewrite_files"`
}

type DeletePayload struct {
	Values       []string `json:"values" validate:"required,min=1,dive,min=1,max=300"`
	RewriteFiles bool     `json:"rewrite_files"`
}
