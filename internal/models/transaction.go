package models

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TxHandle identifies a submitted write
type TxHandle struct {
	Hash      common.Hash `json:"hash"`
	Method    string      `json:"method"`
	From      string      `json:"from"`
	Submitted time.Time   `json:"submitted"`
}

// TxStatus is the consensus status reported by a receipt
type TxStatus string

const (
	TxPending      TxStatus = "PENDING"
	TxProposing    TxStatus = "PROPOSING"
	TxCommitting   TxStatus = "COMMITTING"
	TxRevealing    TxStatus = "REVEALING"
	TxAccepted     TxStatus = "ACCEPTED"
	TxFinalized    TxStatus = "FINALIZED"
	TxUndetermined TxStatus = "UNDETERMINED"
	TxCanceled     TxStatus = "CANCELED"
)

// NormalizeTxStatus canonicalises the wire form of a status
func NormalizeTxStatus(s string) TxStatus {
	return TxStatus(strings.ToUpper(strings.TrimSpace(s)))
}

// IsSuccess reports whether the transaction was accepted by consensus
func (s TxStatus) IsSuccess() bool {
	return s == TxAccepted || s == TxFinalized
}

// IsFailure reports whether the transaction ended without executing
func (s TxStatus) IsFailure() bool {
	return s == TxUndetermined || s == TxCanceled
}

// IsTerminal reports whether polling can stop
func (s TxStatus) IsTerminal() bool {
	return s.IsSuccess() || s.IsFailure()
}

// Receipt is a polled transaction receipt
type Receipt struct {
	Hash           common.Hash `json:"hash" mapstructure:"hash"`
	Status         TxStatus    `json:"status" mapstructure:"status"`
	Result         interface{} `json:"result,omitempty" mapstructure:"result"`
	ExecutionError string      `json:"execution_error,omitempty" mapstructure:"execution_error"`
}

// Reverted reports whether the contract raised during execution
func (r *Receipt) Reverted() bool {
	return r.ExecutionError != "" || r.Status.IsFailure()
}
