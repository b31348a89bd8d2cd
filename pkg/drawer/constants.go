package drawer

const (
	operationOpen      = "open_session"
	operationCashIn    = "cash_in"
	operationCashOut   = "cash_out"
	operationSafeDrop  = "safe_drop"
	operationEndShift  = "end_shift"
	operationAutoClose = "auto_close"
	operationSweep     = "sweep"
	operationEdit      = "edit_transaction"
	operationDelete    = "delete_transaction"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	activityStartSession      = "start_session"
	activityEndSession        = "end_session"
	activityAutoCloseSession  = "auto_close_session"
	activityCashIn            = "cash_in"
	activityCashOut           = "cash_out"
	activitySafeDrop          = "safe_drop"
	activityEditTransaction   = "edit_transaction"
	activityDeleteTransaction = "delete_transaction"

	tableSessions     = "cash_drawer_sessions"
	tableTransactions = "cash_drawer_transactions"

	openingFloatDescription = "Starting cash amount"
	safeDropMarker          = "SAFE DROP"
	shiftCountMarker        = "End shift"
	descriptionSeparator    = " - "

	shiftDateLayout = "2006-01-02"
	amountScale     = 2

	defaultSuggestionLimit = 10
	maxSuggestionLimit     = 50
)
