package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/content-rewards/internal/models"
	"github.com/smartdevs17/content-rewards/internal/receipt"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

func TestParseDeadline(t *testing.T) {
	zero, err := parseDeadline("")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	unix, err := parseDeadline("1700000000")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), unix.Unix())

	dated, err := parseDeadline("2030-01-02T03:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC).Unix(), dated.Unix())

	_, err = parseDeadline("next tuesday")
	assert.True(t, utils.IsCode(err, utils.ErrCodeValidation))
}

func TestParseContestID(t *testing.T) {
	id, err := parseContestID("42")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	_, err = parseContestID("-1")
	assert.True(t, utils.IsCode(err, utils.ErrCodeValidation))
}

func TestPrintOutcomeReportsUnknownOnTimeout(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	timeout := &receipt.TimeoutError{
		Handle:   models.TxHandle{Hash: common.HexToHash("0x01")},
		Attempts: 3,
	}
	err := printOutcome(cmd, nil, timeout)
	require.Error(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	assert.Equal(t, "unknown", body["outcome"])
	assert.Equal(t, 3.0, body["attempts"])
}
