package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/casaora/automation_backend/config"
	"github.com/casaora/automation_backend/models"
	"github.com/casaora/automation_backend/notifications"
	"github.com/casaora/automation_backend/store"
	"github.com/casaora/automation_backend/utils"
)

// Reconciliation outcomes.
const (
	OutcomeExactMatch     = "exact_match"
	OutcomePartialPayment = "partial_payment"
	OutcomeOverpayment    = "overpayment"
	OutcomeNoCollection   = "no_collection"
)

// paymentTolerance absorbs rounding differences between processors.
var paymentTolerance = decimal.NewFromFloat(0.01)

// ReconciliationResult classifies one incoming payment against its linked
// collection record.
type ReconciliationResult struct {
	Outcome      string          `json:"outcome"`
	CollectionId string          `json:"collection_id"`
	Expected     decimal.Decimal `json:"expected"`
	Paid         decimal.Decimal `json:"paid"`
	Remaining    decimal.Decimal `json:"remaining"`
}

// ReconcilePayment applies an incoming payment to the collection record
// behind a payment instruction.
//
// Cumulative paid within tolerance of expected settles the collection; under
// pays keep it pending with amount_paid advanced; over pays settle it and
// raise a review notification. The instruction is marked paid regardless.
func (e *Engine) ReconcilePayment(ctx context.Context, instruction store.Row, paymentAmount decimal.Decimal, paymentMethod, paymentReference string) ReconciliationResult {
	collectionId := utils.RowString(instruction, "collection_record_id")
	orgId := utils.RowString(instruction, "organization_id")
	instructionId := utils.RowString(instruction, "id")
	referenceCode := utils.RowString(instruction, "reference_code")

	if instructionId != "" {
		_, err := e.Store.Update(ctx, "payment_instructions", instructionId, store.Row{
			"status": models.PaymentInstructionStatusPaid,
		}, "id")
		if err != nil {
			config.LogError(e.Logger, "workflow", "ReconcilePayment", "mark instruction paid", map[string]interface{}{
				"instruction_id": instructionId,
			}, err)
		}
	}

	if collectionId == "" {
		return ReconciliationResult{Outcome: OutcomeNoCollection, Paid: paymentAmount}
	}
	collection, err := e.Store.Get(ctx, "collection_records", collectionId, "id")
	if err != nil {
		return ReconciliationResult{Outcome: OutcomeNoCollection, CollectionId: collectionId, Paid: paymentAmount}
	}

	expected := decimal.NewFromFloat(utils.RowFloat(collection, "amount"))
	priorPaid := decimal.NewFromFloat(utils.RowFloat(collection, "amount_paid"))
	currency := utils.RowString(collection, "currency")
	totalPaid := priorPaid.Add(paymentAmount)

	isExact := totalPaid.Sub(expected).Abs().LessThan(paymentTolerance)
	isOverpayment := totalPaid.GreaterThan(expected.Add(paymentTolerance))

	outcome := OutcomePartialPayment
	newStatus := models.CollectionStatusPending
	if isExact || isOverpayment {
		newStatus = models.CollectionStatusPaid
		if isOverpayment {
			outcome = OutcomeOverpayment
		} else {
			outcome = OutcomeExactMatch
		}
	}

	patch := store.Row{
		"status":            newStatus,
		"amount_paid":       totalPaid.String(),
		"payment_method":    paymentMethod,
		"payment_reference": paymentReference,
	}
	if newStatus == models.CollectionStatusPaid {
		patch["paid_at"] = e.now().Format(time.RFC3339)
	}
	if _, err := e.Store.Update(ctx, "collection_records", collectionId, patch, "id"); err != nil {
		config.LogError(e.Logger, "workflow", "ReconcilePayment", "update collection record", map[string]interface{}{
			"collection_id": collectionId,
		}, err)
	}

	if orgId != "" {
		paid, _ := paymentAmount.Float64()
		total, _ := totalPaid.Float64()
		exp, _ := expected.Float64()
		e.Triggers.FireTrigger(ctx, orgId, "payment_received", map[string]any{
			"collection_id":          collectionId,
			"payment_method":         paymentMethod,
			"reference_code":         referenceCode,
			"amount":                 paid,
			"total_paid":             total,
			"expected":               exp,
			"currency":               currency,
			"reconciliation_outcome": outcome,
		})
	}

	if outcome == OutcomeOverpayment && orgId != "" && e.Notifier != nil {
		overpayment := totalPaid.Sub(expected)
		amountDisplay := formatAmount(overpayment, currency)
		over, _ := overpayment.Float64()
		_, err := e.Notifier.EmitEvent(ctx, notifications.EmitEventInput{
			OrganizationId: orgId,
			EventType:      "payment_overpayment",
			Category:       "payments",
			Severity:       models.SeverityWarning,
			Title:          fmt.Sprintf("Overpayment of %s received", amountDisplay),
			Body: fmt.Sprintf(
				"Payment ref %s received %s more than expected for collection %s. Review and issue a refund or credit if needed.",
				referenceCode, amountDisplay, collectionId),
			SourceTable: "collection_records",
			SourceId:    collectionId,
			Payload: map[string]any{
				"type":               "overpayment",
				"collection_id":      collectionId,
				"overpayment_amount": over,
				"currency":           currency,
			},
			DedupeKey: fmt.Sprintf("overpayment:%s:%s", collectionId, referenceCode),
		})
		if err != nil {
			config.LogError(e.Logger, "workflow", "ReconcilePayment", "emit overpayment notification", map[string]interface{}{
				"collection_id": collectionId,
			}, err)
		}
	}

	remaining := decimal.Zero
	if totalPaid.LessThan(expected) {
		remaining = expected.Sub(totalPaid)
	}
	return ReconciliationResult{
		Outcome:      outcome,
		CollectionId: collectionId,
		Expected:     expected,
		Paid:         totalPaid,
		Remaining:    remaining,
	}
}

// QueuePaymentReceipt sends a WhatsApp receipt confirming a processed
// payment. Missing phone or org makes it a no-op.
func (e *Engine) QueuePaymentReceipt(ctx context.Context, instruction store.Row, paymentAmount decimal.Decimal) {
	tenantPhone := utils.NormalizePhoneE164(utils.RowString(instruction, "tenant_phone_e164"))
	orgId := utils.RowString(instruction, "organization_id")
	if tenantPhone == "" || orgId == "" {
		return
	}
	referenceCode := utils.RowString(instruction, "reference_code")
	amountDisplay := formatAmount(paymentAmount, utils.RowString(instruction, "currency"))

	body := fmt.Sprintf(
		"✅ Pago recibido\n\nTu pago de %s (ref: %s) ha sido procesado exitosamente.\n\n— Casaora",
		amountDisplay, referenceCode)
	_, err := e.Store.Create(ctx, "message_logs", store.Row{
		"organization_id": orgId,
		"channel":         models.ChannelWhatsApp,
		"recipient":       tenantPhone,
		"status":          models.MessageStatusQueued,
		"direction":       "outbound",
		"payload":         map[string]any{"body": body},
	})
	if err != nil {
		config.LogError(e.Logger, "workflow", "QueuePaymentReceipt", "queue receipt", map[string]interface{}{
			"reference_code": referenceCode,
		}, err)
	}
}
