package orders

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cucumber/godog"
)

// Seeded by the server's demo data.
var demoProducts = map[string]string{
	"GZE-001": "0f8e2d4c-5a6b-4c7d-9e1f-2a3b4c5d6e01",
	"SYR-005": "0f8e2d4c-5a6b-4c7d-9e1f-2a3b4c5d6e02",
	"GLV-100": "0f8e2d4c-5a6b-4c7d-9e1f-2a3b4c5d6e03",
}

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string, headers map[string]string) error
	POST(path string, body interface{}) error
	POSTWithHeaders(path string, body interface{}, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	Save(name, value string)
	Saved(name string) string
}

// RegisterSteps registers order lifecycle step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &orderSteps{tc: tc}

	ctx.Step(`^client "([^"]*)" orders (\d+) units of "([^"]*)"$`, steps.clientOrders)
	ctx.Step(`^client "([^"]*)" orders (\d+) units of "([^"]*)" with idempotency key "([^"]*)"$`, steps.clientOrdersWithKey)
	ctx.Step(`^I note the available quantity of "([^"]*)"$`, steps.noteAvailable)
	ctx.Step(`^the available quantity of "([^"]*)" should have dropped by (\d+)$`, steps.availableDroppedBy)
	ctx.Step(`^the available quantity of "([^"]*)" should be unchanged$`, steps.availableUnchanged)
	ctx.Step(`^I advance the order to "([^"]*)"$`, steps.advanceTo)
	ctx.Step(`^I cancel the order$`, steps.cancel)
	ctx.Step(`^I fetch the order history$`, steps.fetchHistory)
	ctx.Step(`^I track the orders of client "([^"]*)"$`, steps.trackClient)

	ctx.Step(`^the order should be in state "([^"]*)"$`, steps.orderInState)
	ctx.Step(`^the order id should match the previous order$`, steps.sameOrderAsBefore)
	ctx.Step(`^the history should have (\d+) transitions$`, steps.historyLength)
}

type orderSteps struct {
	tc        TestContext
	available map[string]int
}

func (s *orderSteps) orderBody(clientID string, qty int, sku string) (map[string]interface{}, error) {
	productID, ok := demoProducts[sku]
	if !ok {
		return nil, fmt.Errorf("unknown demo product %q", sku)
	}
	return map[string]interface{}{
		"client_id": clientID,
		"seller_id": "5d2c8f6e-9a1b-4e3d-8c7f-1b2a3c4d5e6f",
		"lines": []map[string]interface{}{
			{"product_id": productID, "quantity": qty},
		},
	}, nil
}

func (s *orderSteps) clientOrders(ctx context.Context, clientID string, qty int, sku string) error {
	return s.clientOrdersWithKey(ctx, clientID, qty, sku, "")
}

func (s *orderSteps) clientOrdersWithKey(ctx context.Context, clientID string, qty int, sku, key string) error {
	body, err := s.orderBody(clientID, qty, sku)
	if err != nil {
		return err
	}
	var headers map[string]string
	if key != "" {
		headers = map[string]string{"Idempotency-Key": key}
	}
	if err := s.tc.POSTWithHeaders("/orders", body, headers); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 201 {
		return nil
	}
	orderID, err := s.tc.GetResponseField("order_id")
	if err != nil {
		return err
	}
	if prev := s.tc.Saved("order_id"); prev != "" {
		s.tc.Save("previous_order_id", prev)
	}
	s.tc.Save("order_id", fmt.Sprint(orderID))
	return nil
}

func (s *orderSteps) availableOf(sku string) (int, error) {
	productID, ok := demoProducts[sku]
	if !ok {
		return 0, fmt.Errorf("unknown demo product %q", sku)
	}
	if err := s.tc.GET("/inventory/products/"+productID, nil); err != nil {
		return 0, err
	}
	if status := s.tc.GetLastResponseStatus(); status != 200 {
		return 0, fmt.Errorf("availability returned %d: %s", status, s.tc.GetLastResponseBody())
	}
	v, err := s.tc.GetResponseField("available")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(fmt.Sprint(v))
}

func (s *orderSteps) noteAvailable(ctx context.Context, sku string) error {
	qty, err := s.availableOf(sku)
	if err != nil {
		return err
	}
	if s.available == nil {
		s.available = map[string]int{}
	}
	s.available[sku] = qty
	return nil
}

func (s *orderSteps) availableDroppedBy(ctx context.Context, sku string, by int) error {
	before, ok := s.available[sku]
	if !ok {
		return fmt.Errorf("available quantity of %q was not noted", sku)
	}
	now, err := s.availableOf(sku)
	if err != nil {
		return err
	}
	if before-now != by {
		return fmt.Errorf("expected %s to drop by %d, went from %d to %d", sku, by, before, now)
	}
	return nil
}

func (s *orderSteps) availableUnchanged(ctx context.Context, sku string) error {
	return s.availableDroppedBy(ctx, sku, 0)
}

func (s *orderSteps) advanceTo(ctx context.Context, target string) error {
	return s.tc.POST("/orders/"+s.tc.Saved("order_id")+"/advance", map[string]interface{}{"target": target})
}

func (s *orderSteps) cancel(ctx context.Context) error {
	return s.tc.POST("/orders/"+s.tc.Saved("order_id")+"/cancel", map[string]interface{}{"reason": "client request"})
}

func (s *orderSteps) fetchHistory(ctx context.Context) error {
	return s.tc.GET("/orders/"+s.tc.Saved("order_id")+"/history", nil)
}

func (s *orderSteps) trackClient(ctx context.Context, clientID string) error {
	return s.tc.GET("/clients/"+clientID+"/orders", nil)
}

func (s *orderSteps) orderInState(ctx context.Context, state string) error {
	if err := s.tc.GET("/orders/"+s.tc.Saved("order_id"), nil); err != nil {
		return err
	}
	got, err := s.tc.GetResponseField("state")
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != state {
		return fmt.Errorf("expected order in %q, got %q", state, got)
	}
	return nil
}

func (s *orderSteps) sameOrderAsBefore(ctx context.Context) error {
	if prev, cur := s.tc.Saved("previous_order_id"), s.tc.Saved("order_id"); prev != cur {
		return fmt.Errorf("expected replay to return order %s, got %s", prev, cur)
	}
	return nil
}

func (s *orderSteps) historyLength(ctx context.Context, n int) error {
	v, err := s.tc.GetResponseField("transitions")
	if err != nil {
		return err
	}
	items, ok := v.([]interface{})
	if !ok {
		return fmt.Errorf("transitions is not a list")
	}
	if len(items) != n {
		return fmt.Errorf("expected %d transitions, got %d", n, len(items))
	}
	return nil
}
