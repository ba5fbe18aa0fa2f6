package channel

import "errors"

// Structural errors, returned when a statement received from a peer is malformed.
var (
	ErrInvalidRecords       = errors.New("invalid_records")
	ErrImbalancedRecords    = errors.New("imbalanced_records")
	ErrInvalidSource        = errors.New("invalid_source")
	ErrStatementCreation    = errors.New("statement_creation_error")
	ErrInvalidConditionType = errors.New("invalid_condition_type")
)

// Protocol errors, returned when an instruction batch violates the state machine.
var (
	ErrInvalidCoinbaseInstruction              = errors.New("invalid_coinbase_instruction")
	ErrNegativeValueTransfer                   = errors.New("negative_value_transfer")
	ErrInconsistentTotalBalances               = errors.New("inconsistent_total_balances")
	ErrInconsistentTotalBalancesAfterExpansion = errors.New("inconsistent_total_balances_after_expansion")
	ErrUnknownStatement                        = errors.New("unknown_statement")
)

// Identity errors.
var (
	ErrWrongOwner           = errors.New("wrong_owner")
	ErrWrongChain           = errors.New("wrong_chain")
	ErrInvalidSelfSignature = errors.New("invalid_self_signature")
	ErrInvalidPeerSignature = errors.New("invalid_peer_signature")
)

// Local errors, never sent to a peer.
var (
	ErrBalanceNotEnough  = errors.New("balance_not_enough")
	ErrStateUnattached   = errors.New("state_unattached")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrPermitUnsupported = errors.New("permit_unsupported")
)
