package flankk

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Record mirrors the on-chain `Record { uint240 user0Balance; uint240 user1Balance; }` struct.
type Record struct {
	User0Balance *big.Int
	User1Balance *big.Int
}

// Statement mirrors the on-chain `Statement` struct that condition verifiers receive.
type Statement struct {
	From            Record
	To              Record
	Condition       common.Address
	ConditionParams []byte
}

var (
	recordComponents = []abi.ArgumentMarshaling{
		{Name: "user0Balance", Type: "uint240"},
		{Name: "user1Balance", Type: "uint240"},
	}
	statementComponents = []abi.ArgumentMarshaling{
		{Name: "from", Type: "tuple", Components: recordComponents},
		{Name: "to", Type: "tuple", Components: recordComponents},
		{Name: "condition", Type: "address"},
		{Name: "conditionParams", Type: "bytes"},
	}

	statementT, _  = abi.NewType("tuple", "", statementComponents)
	statementsT, _ = abi.NewType("tuple[]", "", statementComponents)
	uint256T, _    = abi.NewType("uint256", "", nil)
	bytes32T, _    = abi.NewType("bytes32", "", nil)
	addressT, _    = abi.NewType("address", "", nil)
	uint8T, _      = abi.NewType("uint8", "", nil)
	bytesT, _      = abi.NewType("bytes", "", nil)
)

const verifierABIJSON = `[{
	"type": "function",
	"name": "validate",
	"stateMutability": "view",
	"inputs": [
		{"name": "statement", "type": "tuple", "components": [
			{"name": "from", "type": "tuple", "components": [
				{"name": "user0Balance", "type": "uint240"},
				{"name": "user1Balance", "type": "uint240"}
			]},
			{"name": "to", "type": "tuple", "components": [
				{"name": "user0Balance", "type": "uint240"},
				{"name": "user1Balance", "type": "uint240"}
			]},
			{"name": "condition", "type": "address"},
			{"name": "conditionParams", "type": "bytes"}
		]},
		{"name": "source", "type": "bytes"}
	],
	"outputs": [{"name": "", "type": "bool"}]
}]`

// VerifierABI is the ABI of the condition verifier contracts.
var VerifierABI = mustParseABI(verifierABIJSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid abi definition: %v", err))
	}
	return parsed
}

// StatementID returns keccak256(abi.encode(statement, nonce)).
func StatementID(stmt Statement, nonce uint64) (common.Hash, error) {
	args := abi.Arguments{
		{Type: statementT},
		{Type: uint256T},
	}

	encoded, err := args.Pack(stmt, new(big.Int).SetUint64(nonce))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack statement: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}

// IdentifiedStatement pairs an on-chain statement with its content id.
type IdentifiedStatement struct {
	ID        common.Hash
	Statement Statement
}

// StatementsHash returns keccak256(abi.encode(Statement[])) with the statements
// ordered by descending id. The input slice is not modified.
func StatementsHash(stmts []IdentifiedStatement) (common.Hash, error) {
	sorted := make([]IdentifiedStatement, len(stmts))
	copy(sorted, stmts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID.Cmp(sorted[j].ID) > 0
	})

	list := make([]Statement, len(sorted))
	for i, s := range sorted {
		list[i] = s.Statement
	}

	args := abi.Arguments{{Type: statementsT}}
	encoded, err := args.Pack(list)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack statements: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}

// StateHash returns keccak256(abi.encode(bytes32 statementsHash, uint256 nonce)).
func StateHash(statementsHash common.Hash, nonce uint64) (common.Hash, error) {
	args := abi.Arguments{
		{Type: bytes32T},
		{Type: uint256T},
	}

	encoded, err := args.Pack(statementsHash, new(big.Int).SetUint64(nonce))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack state: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}

// PackValidateCall builds the calldata of `validate(statement, source)`.
func PackValidateCall(stmt Statement, source []byte) ([]byte, error) {
	if source == nil {
		source = []byte{}
	}
	return VerifierABI.Pack("validate", stmt, source)
}

// UnpackValidateResult decodes the boolean returned by `validate`.
func UnpackValidateResult(data []byte) (bool, error) {
	out, err := VerifierABI.Unpack("validate", data)
	if err != nil {
		return false, err
	}
	if len(out) != 1 {
		return false, fmt.Errorf("unexpected number of return values: %d", len(out))
	}
	valid, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected return type %T", out[0])
	}
	return valid, nil
}
