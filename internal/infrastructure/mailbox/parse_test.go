package mailbox

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multipartClaim = "From: =?UTF-8?B?5byg5LiJ?= <Zhang.San@Example.com>\r\n" +
	"To: finance@example.com\r\n" +
	"Subject: =?UTF-8?B?QUnlt6XlhbfmiqXplIA=?= Cursor\r\n" +
	"Date: Mon, 06 Oct 2025 09:30:00 +0800\r\n" +
	"Message-ID: <claim-1@example.com>\r\n" +
	"References: <root@example.com>\r\n" +
	" <prev@example.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Please reimburse Cursor Pro, 20 USD.\r\n" +
	"--b1\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"cursor.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQ=\r\n" +
	"--b1\r\n" +
	"Content-Type: image/png; name=\"pasted.png\"\r\n" +
	"Content-Disposition: inline\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"cG5n\r\n" +
	"--b1--\r\n"

func TestParseMessage_Multipart(t *testing.T) {
	msg, err := ParseMessage("7", strings.NewReader(multipartClaim))
	require.NoError(t, err)

	assert.Equal(t, "7", msg.ID)
	assert.Equal(t, "AI工具报销 Cursor", msg.Subject)
	assert.Equal(t, "zhang.san@example.com", msg.From)
	assert.Equal(t, "张三", msg.FromName)
	assert.Equal(t, "<claim-1@example.com>", msg.MessageID)
	assert.Equal(t, "<root@example.com> <prev@example.com>", msg.References)
	assert.Equal(t, time.Date(2025, 10, 6, 1, 30, 0, 0, time.UTC), msg.Date)
	assert.Equal(t, "Please reimburse Cursor Pro, 20 USD.", msg.Body)

	require.Len(t, msg.Attachments, 2)
	assert.Equal(t, "cursor.pdf", msg.Attachments[0].FileName)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
	assert.Equal(t, "%PDF-1.4", string(msg.Attachments[0].Content))
	assert.Equal(t, int64(8), msg.Attachments[0].Size)
	assert.Equal(t, "pasted.png", msg.Attachments[1].FileName)
	assert.Equal(t, "png", string(msg.Attachments[1].Content))
}

func TestParseMessage_OversizedAttachmentIsSkipped(t *testing.T) {
	msg, err := parseMessage("7", strings.NewReader(multipartClaim), 4)
	require.NoError(t, err)

	assert.Equal(t, "Please reimburse Cursor Pro, 20 USD.", msg.Body)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "pasted.png", msg.Attachments[0].FileName)
	require.Len(t, msg.Skipped, 1)
	assert.Equal(t, "cursor.pdf", msg.Skipped[0].FileName)
	assert.Equal(t, "too large, over 4 bytes", msg.Skipped[0].Reason)
}

func TestSizeLabel(t *testing.T) {
	assert.Equal(t, "30 MB", sizeLabel(maxAttachmentBytes))
	assert.Equal(t, "1500 bytes", sizeLabel(1500))
}

func TestParseMessage_HTMLOnly(t *testing.T) {
	raw := "From: a@example.com\r\n" +
		"Subject: ChatGPT Plus\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<html><head><style>p{color:red}</style></head><body><p>Tool: ChatGPT Plus</p><p>Amount: 20 USD</p></body></html>\r\n"

	msg, err := ParseMessage("x", strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "Tool: ChatGPT Plus\nAmount: 20 USD", msg.Body)
	assert.Empty(t, msg.Attachments)
}

func TestHTMLToText(t *testing.T) {
	got := HTMLToText("<div>Hello<br>world</div><script>var x = 1;</script><table><tr><td>a</td><td>b</td></tr></table>")
	assert.Equal(t, "Hello\nworld\nab", got)
}

func TestKeywordFilter(t *testing.T) {
	f := NewKeywordFilter([]string{"报销", " Cursor ", ""})
	assert.Len(t, f, 2)

	assert.True(t, f.Match("AI工具报销申请"))
	assert.True(t, f.Match("invoice", "billing@CURSOR.sh"))
	assert.False(t, f.Match("weekly report", "boss@example.com"))

	assert.True(t, KeywordFilter(nil).Match("anything"))
}
