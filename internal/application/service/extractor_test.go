package service

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_EmptyBodySkipsOracle(t *testing.T) {
	oracle := newFakeTextOracle()
	res := NewFactExtractor(oracle, nil).Extract(context.Background(), "", "  \n ")

	assert.True(t, res.Ok())
	assert.Empty(t, res.Facts.Items)
	assert.Zero(t, oracle.callCount(extractSystemPrompt))
}

func TestExtract_SubjectReachesOracle(t *testing.T) {
	oracle := newFakeTextOracle().on(extractSystemPrompt, cursorClaim)
	res := NewFactExtractor(oracle, nil).Extract(context.Background(), "Reimburse Cursor Pro 20 USD", "")

	require.True(t, res.Ok())
	require.Len(t, res.Facts.Items, 1)
	require.Len(t, oracle.prompts, 1)
	assert.Contains(t, oracle.prompts[0], "Subject: Reimburse Cursor Pro 20 USD")
}

func TestExtract_FencedReply(t *testing.T) {
	oracle := newFakeTextOracle().on(extractSystemPrompt, "Here you go:\n```json\n"+`{
		"ai_related": true,
		"applicant_name": " Bob ",
		"claimed_date": "2025/04/03",
		"items": [
			{"tool_name": "ChatGPT Plus", "amount": "$20.00", "currency": "$", "date": "2025-04-01"},
			{"tool_name": "Claude Pro", "amount": 18, "currency": "usd"}
		],
		"total_amount": null,
		"other_notes": "team plan"
	}`+"\n```")

	res := NewFactExtractor(oracle, nil).Extract(context.Background(), "", "please reimburse")
	require.True(t, res.Ok())

	facts := res.Facts
	assert.True(t, facts.AIRelated)
	assert.Equal(t, "Bob", facts.ApplicantName)
	require.NotNil(t, facts.ClaimedDate)
	assert.Equal(t, "2025-04-03", facts.ClaimedDate.Format(entity.DateLayout))
	require.Len(t, facts.Items, 2)
	assert.Equal(t, "USD", facts.Items[0].Currency)
	assert.Equal(t, "20.00", facts.Items[0].AmountString())
	assert.Equal(t, entity.SourceClaimed, facts.Items[1].Source)
	assert.Equal(t, "USD", facts.Items[1].Currency)
	require.NotNil(t, facts.TotalAmount)
	assert.Equal(t, "38.00", facts.TotalAmount.StringFixed(2))
	assert.Equal(t, "USD", facts.Currency)
}

func TestExtract_NoTotalForMixedCurrencies(t *testing.T) {
	oracle := newFakeTextOracle().on(extractSystemPrompt, `{"ai_related": true, "items": [
		{"tool_name": "Kimi", "amount": 99, "currency": "CNY"},
		{"tool_name": "Cursor", "amount": 20, "currency": "USD"}]}`)

	res := NewFactExtractor(oracle, nil).Extract(context.Background(), "", "body")
	require.True(t, res.Ok())
	assert.Nil(t, res.Facts.TotalAmount)
	assert.Empty(t, res.Facts.Currency)
}

func TestExtract_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"prose", "I think the user wants money for Cursor."},
		{"wrong shape", `{"items": "Cursor"}`},
		{"negative amount", `{"items": [{"tool_name": "Cursor", "amount": -20, "currency": "USD"}]}`},
		{"amount without tool", `{"items": [{"tool_name": "", "amount": 20, "currency": "USD"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := newFakeTextOracle().on(extractSystemPrompt, tt.reply)
			res := NewFactExtractor(oracle, nil).Extract(context.Background(), "", "body")

			require.False(t, res.Ok())
			assert.Equal(t, tt.reply, res.Malformed.RawText)
			assert.NotEmpty(t, res.Malformed.Reason)
		})
	}
}

func TestExtract_OracleError(t *testing.T) {
	oracle := newFakeTextOracle()
	oracle.errs[extractSystemPrompt] = errors.New("429 too many requests")

	res := NewFactExtractor(oracle, nil).Extract(context.Background(), "", "body")
	require.False(t, res.Ok())
	assert.Contains(t, res.Malformed.Reason, "429")
}
