package compliance

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
}

// RegisterSteps registers compliance report step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &complianceSteps{tc: tc}

	ctx.Step(`^I list the reporting periods$`, steps.listPeriods)
	ctx.Step(`^I list compliance results for vendor "([^"]*)"$`, steps.listResultsForVendor)
	ctx.Step(`^the response should list (\d+) "([^"]*)"$`, steps.shouldListN)
	ctx.Step(`^the period "([^"]*)" should map to "([^"]*)"$`, steps.periodMapsTo)
}

type complianceSteps struct {
	tc TestContext
}

func (s *complianceSteps) listPeriods(ctx context.Context) error {
	return s.tc.GET("/compliance/periods", nil)
}

func (s *complianceSteps) listResultsForVendor(ctx context.Context, vendorID string) error {
	return s.tc.GET("/compliance/results?vendor_id="+vendorID, nil)
}

func (s *complianceSteps) list(field string) ([]interface{}, error) {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return nil, err
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s is not a list", field)
	}
	return items, nil
}

func (s *complianceSteps) shouldListN(ctx context.Context, n int, field string) error {
	items, err := s.list(field)
	if err != nil {
		return err
	}
	if len(items) != n {
		return fmt.Errorf("expected %d %s, got %d", n, field, len(items))
	}
	return nil
}

func (s *complianceSteps) periodMapsTo(ctx context.Context, value, periodType string) error {
	items, err := s.list("periods")
	if err != nil {
		return err
	}
	for _, item := range items {
		p, ok := item.(map[string]interface{})
		if !ok || p["value"] != value {
			continue
		}
		if p["period_type"] != periodType {
			return fmt.Errorf("period %q maps to %v, want %q", value, p["period_type"], periodType)
		}
		return nil
	}
	return fmt.Errorf("period %q not listed", value)
}
