package starter

import (
	"encoding/hex"
	"testing"

	"github.com/blockberries/progchain/program"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscriminator(t *testing.T) {
	d := Discriminator("initialize")
	assert.Equal(t, "afaf6d1f0d989bed", hex.EncodeToString(d[:]))
	assert.NotEqual(t, d, Discriminator("increment"))
}

func TestInitialize(t *testing.T) {
	ix := InitializeInstruction(ProgramID)
	assert.Empty(t, ix.Accounts)
	require.Len(t, ix.Data, DiscriminatorLen)

	ictx := program.NewInvokeContext(ProgramID, 1)
	require.NoError(t, New().Process(ictx, nil, ix.Data))
	assert.Equal(t, []string{"Program log: Instruction: Initialize"}, ictx.Logs())
}

func TestUnknownMethod(t *testing.T) {
	ictx := program.NewInvokeContext(ProgramID, 1)
	err := New().Process(ictx, nil, MethodInstruction(ProgramID, "withdraw").Data)
	assert.ErrorIs(t, err, ErrInstructionFallbackNotFound)
	assert.Equal(t, program.CustomErrorBase+101, program.AsError(err).OutcomeCode())

	err = New().Process(ictx, nil, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInstructionMissing)
	assert.Empty(t, ictx.Logs())
}
