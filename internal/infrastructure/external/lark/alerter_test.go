package lark

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/event"
)

type sentMessage struct {
	ReceiveIDType string
	ReceiveID     string `json:"receive_id"`
	MsgType       string `json:"msg_type"`
	Content       string `json:"content"`
}

type fakeLark struct {
	mu   sync.Mutex
	sent []sentMessage
	code int
}

func (f *fakeLark) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/open-apis/auth/v3/tenant_access_token"):
			_, _ = io.WriteString(w, `{"code":0,"msg":"ok","tenant_access_token":"t-test","expire":7200}`)
		case r.URL.Path == "/open-apis/im/v1/messages":
			var m sentMessage
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&m))
			m.ReceiveIDType = r.URL.Query().Get("receive_id_type")
			f.mu.Lock()
			f.sent = append(f.sent, m)
			code := f.code
			f.mu.Unlock()
			if code != 0 {
				_, _ = io.WriteString(w, `{"code":230002,"msg":"bot not in chat"}`)
				return
			}
			_, _ = io.WriteString(w, `{"code":0,"msg":"success","data":{"message_id":"om_1"}}`)
		default:
			http.NotFound(w, r)
		}
	}
}

func newTestAlerter(t *testing.T, f *fakeLark) *Alerter {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	client := NewSDKClient(Config{AppID: "cli_test", AppSecret: "secret", BaseURL: srv.URL}, zap.NewNop())
	return NewAlerter(client, "oc_finance", zap.NewNop())
}

func TestAlerter_Alert(t *testing.T) {
	f := &fakeLark{}
	a := newTestAlerter(t, f)

	require.NoError(t, a.Alert(context.Background(), `line "one"`+"\nline two"))

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.sent, 1)
	assert.Equal(t, "chat_id", f.sent[0].ReceiveIDType)
	assert.Equal(t, "oc_finance", f.sent[0].ReceiveID)
	assert.Equal(t, "text", f.sent[0].MsgType)

	var content map[string]string
	require.NoError(t, json.Unmarshal([]byte(f.sent[0].Content), &content))
	assert.Equal(t, `line "one"`+"\nline two", content["text"])
}

func TestAlerter_APIFailure(t *testing.T) {
	f := &fakeLark{code: 230002}
	a := newTestAlerter(t, f)

	err := a.Alert(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "230002")
}

func TestAlerter_EmptyText(t *testing.T) {
	a := NewAlerter(nil, "oc_finance", zap.NewNop())
	assert.Error(t, a.Alert(context.Background(), ""))
}

func TestCaseAlertText(t *testing.T) {
	total := decimal.RequireFromString("40")

	text, ok := CaseAlertText(event.CaseDecided{Case: entity.ReimbursementCase{
		ID:            "42",
		Subject:       "AI tools October",
		ApplicantName: "Zhang San",
		Status:        entity.CaseStatusReady,
		TotalAmount:   &total,
		Currency:      "USD",
	}})
	require.True(t, ok)
	assert.Equal(t, "[Ready to reimburse] Zhang San (42)\nTotal: 40.00 USD\nSubject: AI tools October", text)

	text, ok = CaseAlertText(event.CaseDecided{
		Case: entity.ReimbursementCase{
			ID:     "43",
			Sender: "li@example.com",
			Status: entity.CaseStatusNeedInfo,
			Issues: []string{"missing receipt for Cursor Pro"},
		},
		NotifyError: "connection refused",
	})
	require.True(t, ok)
	assert.Equal(t, "[Needs information] li@example.com (43)\n1. missing receipt for Cursor Pro\nClarification email failed: connection refused", text)

	_, ok = CaseAlertText(event.CaseDecided{Case: entity.ReimbursementCase{Status: entity.CaseStatusIgnored}})
	assert.False(t, ok)
}

func TestAlerter_HandleCaseDecidedSkipsOtherStatuses(t *testing.T) {
	f := &fakeLark{}
	a := newTestAlerter(t, f)

	evt := event.New(event.TypeCaseDecided, "1", event.CaseDecided{
		Case: entity.ReimbursementCase{ID: "1", Status: entity.CaseStatusIgnored},
	}, "")
	require.NoError(t, a.HandleCaseDecided(context.Background(), evt))

	evt = event.New(event.TypeCaseDecided, "2", event.CaseDecided{
		Case: entity.ReimbursementCase{ID: "2", Status: entity.CaseStatusReady},
	}, "")
	require.NoError(t, a.HandleCaseDecided(context.Background(), evt))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Len(t, f.sent, 1)
}
