package handler

import (
	"medisupply/internal/compliance/models"
	id "medisupply/pkg/domain"
)

// PeriodOption is one selectable reporting period.
type PeriodOption struct {
	Value      string        `json:"value"`
	Label      string        `json:"label"`
	PeriodType id.PeriodType `json:"period_type"`
}

var periodOptions = []PeriodOption{
	{Value: "bimestral", Label: "Bimestral", PeriodType: id.PeriodBimonthly},
	{Value: "trimestral", Label: "Trimestral", PeriodType: id.PeriodQuarterly},
	{Value: "semestral", Label: "Semestral", PeriodType: id.PeriodSemiannual},
	{Value: "anual", Label: "Anual", PeriodType: id.PeriodAnnual},
}

// PeriodsResponse is returned by GET /compliance/periods.
type PeriodsResponse struct {
	Periods []PeriodOption `json:"periods"`
}

// ResultsResponse is returned by GET /compliance/results.
type ResultsResponse struct {
	Results []*models.ComplianceResult `json:"results"`
	Count   int                        `json:"count"`
}

// SalesDataRequest is the body of POST /compliance/sales-data/validate.
type SalesDataRequest struct {
	VendorID   string `json:"vendor_id"`
	PeriodType string `json:"period_type"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

// SalesDataResponse reports whether a sales snapshot exists.
type SalesDataResponse struct {
	VendorID id.VendorID `json:"vendor_id"`
	Period   id.Period   `json:"period"`
	HasData  bool        `json:"has_data"`
}
