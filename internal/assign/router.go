// Package assign resolves the initial assignee of a data quality issue.
package assign

import (
	"context"
	"fmt"
)

// UnassignedEmail receives issues nobody else can be resolved for.
const UnassignedEmail = "unassigned@company.com"

// InventoryLookup answers CDE ownership questions from the latest approved
// inventory of a report.
type InventoryLookup interface {
	CDEOwnerEmail(ctx context.Context, reportID, cdeID string) (string, error)
}

type Router struct {
	Inventory InventoryLookup
}

// Resolve picks the assignee for an issue. Routing order is fixed: the data
// owner of the first impacted CDE with one on record, then the steward
// mailbox of the data domain, then the unassigned mailbox.
func (r Router) Resolve(ctx context.Context, reportID string, impactedCDEs []string, dataDomain string) (string, error) {
	if r.Inventory != nil {
		for _, cdeID := range impactedCDEs {
			owner, err := r.Inventory.CDEOwnerEmail(ctx, reportID, cdeID)
			if err != nil {
				return "", err
			}
			if owner != "" {
				return owner, nil
			}
		}
	}
	if dataDomain != "" {
		return fmt.Sprintf("%s-steward@company.com", dataDomain), nil
	}
	return UnassignedEmail, nil
}
