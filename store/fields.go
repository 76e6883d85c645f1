package store

// Field keys shared by the workflow engine, the entitlement resolver and the
// adapters. Quote/Shipment route and cargo fields are free-form text owned by
// the intake flows; the keys below are the ones the core reads or writes.
const (
	FieldOrigin           = "origin"
	FieldDestination      = "destination"
	FieldCargoDescription = "cargo_description"
	FieldClientEmail      = "client_email"

	// Quote
	FieldClientDecision = "client_decision"
	FieldPaymentStatus  = "payment_status"
	FieldQuoteAmount    = "quote_amount"
	FieldCurrency       = "currency"
	FieldShipmentRef    = "shipment_ref"

	// Shipment
	FieldLastUpdate    = "last_update"
	FieldInternalNotes = "internal_notes"
	FieldClientNotes   = "client_notes"

	// Agent
	FieldCompanyName    = "company_name"
	FieldContactEmail   = "contact_email"
	FieldPremiumListing = "is_premium_listing"

	// Subscription
	FieldPlanType  = "plan_type"
	FieldIsActive  = "is_active"
	FieldStartDate = "start_date"
	FieldEndDate   = "end_date"
)

// FieldStatus is reserved: ConditionalUpdate and Insert route it to the
// status column rather than the field set.
const FieldStatus = "status"

// FieldID is reserved on Insert for caller-allocated identifiers.
const FieldID = "id"
