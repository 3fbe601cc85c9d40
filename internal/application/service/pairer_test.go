package service

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOraclePairer_Pair(t *testing.T) {
	oracle := newFakeTextOracle().on(pairSystemPrompt,
		"```json\n"+`{"pairs": [{"claimed": 0, "receipt": 1, "same_tool": true, "note": "alias"}, {"claimed": 1, "receipt": 0}], "summary": "ok"}`+"\n```")

	claimed := []entity.ExpenseLineItem{{ToolName: "GPT Plus"}, {ToolName: "Cursor"}}
	observed := []entity.ExpenseLineItem{{ToolName: "Cursor"}, {ToolName: "ChatGPT Plus"}}

	pairing, err := NewOraclePairer(oracle, nil).Pair(context.Background(), claimed, observed)
	require.NoError(t, err)

	require.Len(t, pairing.Pairs, 2)
	assert.Equal(t, 0, pairing.Pairs[0].Claimed)
	assert.Equal(t, 1, pairing.Pairs[0].Observed)
	assert.Equal(t, "alias", pairing.Pairs[0].Note)
	assert.True(t, pairing.Pairs[1].SameTool)
	assert.Equal(t, "ok", pairing.Summary)
}

func TestOraclePairer_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{"prose", "They match.", nil},
		{"missing index", `{"pairs": [{"claimed": 0}]}`, nil},
		{"call failure", "", errors.New("timeout")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := newFakeTextOracle().on(pairSystemPrompt, tt.reply)
			if tt.err != nil {
				oracle.errs[pairSystemPrompt] = tt.err
			}
			_, err := NewOraclePairer(oracle, nil).Pair(context.Background(),
				[]entity.ExpenseLineItem{{ToolName: "a"}}, []entity.ExpenseLineItem{{ToolName: "b"}})

			var ae *entity.ReconciliationAdjudicationError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.reply, ae.RawText)
		})
	}
}
