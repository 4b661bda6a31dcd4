package counter

import (
	"fmt"

	"github.com/blockberries/progchain/program"
	"github.com/blockberries/progchain/types"
)

// Instruction is a counter operation.
type Instruction uint8

const (
	Initialize Instruction = 0
	Increment  Instruction = 1
	Decrement  Instruction = 2
)

func (i Instruction) String() string {
	switch i {
	case Initialize:
		return "Initialize"
	case Increment:
		return "Increment"
	case Decrement:
		return "Decrement"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(i))
	}
}

// UnpackInstruction decodes instruction data.
func UnpackInstruction(data []byte) (Instruction, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty instruction data", program.ErrInvalidInstructionData)
	}
	ix := Instruction(data[0])
	switch ix {
	case Initialize, Increment, Decrement:
		return ix, nil
	default:
		return 0, fmt.Errorf("%w: unknown counter instruction %d", program.ErrInvalidInstructionData, data[0])
	}
}

// Pack encodes the instruction.
func (i Instruction) Pack() []byte { return []byte{byte(i)} }

func newInstruction(programID, counter types.Pubkey, op Instruction) types.Instruction {
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			{Pubkey: counter, IsSigner: false, IsWritable: true},
		},
		Data: op.Pack(),
	}
}

// InitializeInstruction builds an Initialize instruction for the
// counter account.
func InitializeInstruction(programID, counter types.Pubkey) types.Instruction {
	return newInstruction(programID, counter, Initialize)
}

// IncrementInstruction builds an Increment instruction.
func IncrementInstruction(programID, counter types.Pubkey) types.Instruction {
	return newInstruction(programID, counter, Increment)
}

// DecrementInstruction builds a Decrement instruction.
func DecrementInstruction(programID, counter types.Pubkey) types.Instruction {
	return newInstruction(programID, counter, Decrement)
}
