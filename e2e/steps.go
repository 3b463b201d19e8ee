package e2e

import (
	"github.com/cucumber/godog"

	"medisupply/e2e/steps/common"
	"medisupply/e2e/steps/compliance"
	"medisupply/e2e/steps/orders"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (background, generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register order lifecycle steps
	orders.RegisterSteps(ctx, tc)

	// Register compliance report steps
	compliance.RegisterSteps(ctx, tc)
}
