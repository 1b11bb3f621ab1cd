package reconcile

import "github.com/aswathylr-builds/payment-reconciliation/models"

var actions = map[string]models.Action{
	models.EventPaymentAuthorized: models.ActionAuthorized,
	models.EventPaymentCaptured:   models.ActionCaptured,
	models.EventPaymentFailed:     models.ActionFailed,
}

// Classify maps a gateway event name to a payment-lifecycle action. Names
// outside the table are ActionIgnored.
func Classify(eventName string) models.Action {
	if action, ok := actions[eventName]; ok {
		return action
	}
	return models.ActionIgnored
}
