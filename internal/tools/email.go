package tools

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
)

// emailTimeout bounds every IMAP/SMTP session. A black-holed mail host
// must surface as a failed step, not stall the turn.
const emailTimeout = 30 * time.Second

// EmailAccount holds the server endpoints for a mail provider.
type EmailAccount struct {
	IMAPHost string
	IMAPPort int
	SMTPHost string
	SMTPPort int
}

// emailAccounts maps account type to server presets.
var emailAccounts = map[string]EmailAccount{
	"qq":      {IMAPHost: "imap.qq.com", IMAPPort: 993, SMTPHost: "smtp.qq.com", SMTPPort: 587},
	"gmail":   {IMAPHost: "imap.gmail.com", IMAPPort: 993, SMTPHost: "smtp.gmail.com", SMTPPort: 587},
	"outlook": {IMAPHost: "outlook.office365.com", IMAPPort: 993, SMTPHost: "smtp.office365.com", SMTPPort: 587},
}

// EmailSummary is a single fetched message.
type EmailSummary struct {
	ID      uint32 `json:"id"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Body    string `json:"body"`
}

// EmailTool reads and sends mail over IMAP/SMTP.
// Payloads carry an explicit success flag: the agent loop treats
// success=false from this tool as a failed step.
type EmailTool struct {
	mu          sync.Mutex
	accountType string
	address     string
	password    string
	timeout     time.Duration
}

// NewEmailTool creates a new EmailTool for the given account.
func NewEmailTool(accountType, address, password string) *EmailTool {
	if _, ok := emailAccounts[accountType]; !ok {
		accountType = "qq"
	}
	return &EmailTool{
		accountType: accountType,
		address:     address,
		password:    password,
		timeout:     emailTimeout,
	}
}

// AccountType returns the currently selected account type.
func (t *EmailTool) AccountType() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accountType
}

func (t *EmailTool) account() EmailAccount {
	t.mu.Lock()
	defer t.mu.Unlock()
	return emailAccounts[t.accountType]
}

func (t *EmailTool) Definition() Definition {
	return Definition{
		Name:        "email",
		Description: "Read, send and manage email over IMAP/SMTP.",
		Parameters: map[string]ParamSpec{
			"action": {
				Type:        "string",
				Description: "The action to perform",
				Required:    true,
				Enum:        []string{"list_emails", "send_email", "list_folders", "delete_email", "switch_email_type"},
			},
			"limit": {
				Type:        "integer",
				Description: "Number of messages to fetch (for list_emails)",
				Default:     10,
			},
			"folder": {
				Type:        "string",
				Description: "Mailbox folder (for list_emails, delete_email)",
				Default:     "INBOX",
			},
			"message_id": {
				Type:        "integer",
				Description: "Message id (for delete_email)",
			},
			"to": {
				Type:        "string",
				Description: "Recipient address (for send_email)",
			},
			"subject": {
				Type:        "string",
				Description: "Subject line (for send_email)",
			},
			"body": {
				Type:        "string",
				Description: "Message body (for send_email)",
			},
			"email_type": {
				Type:        "string",
				Description: "Account type to switch to (for switch_email_type)",
				Enum:        []string{"qq", "gmail", "outlook"},
			},
		},
		Examples: []string{
			`{"tool_name": "email", "parameters": {"action": "list_emails", "limit": 5}}`,
		},
	}
}

func failure(msg string) map[string]any {
	return map[string]any{"success": false, "message": msg}
}

func (t *EmailTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	action := GetString(params, "action", "")
	switch action {
	case "list_emails":
		return t.listEmails(ctx, GetString(params, "folder", "INBOX"), GetInt(params, "limit", 10))
	case "send_email":
		return t.sendEmail(ctx, GetString(params, "to", ""), GetString(params, "subject", ""), GetString(params, "body", ""))
	case "list_folders":
		return t.listFolders(ctx)
	case "delete_email":
		return t.deleteEmail(ctx, GetString(params, "folder", "INBOX"), uint32(GetInt(params, "message_id", 0)))
	case "switch_email_type":
		return t.switchType(GetString(params, "email_type", ""))
	default:
		return failure(fmt.Sprintf("不支持的操作: %s", action)), nil
	}
}

// sessionTimeout returns the deadline budget for one mail session,
// honoring an earlier context deadline when present.
func (t *EmailTool) sessionTimeout(ctx context.Context) time.Duration {
	timeout := t.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	return timeout
}

func (t *EmailTool) dial(ctx context.Context) (*client.Client, error) {
	acct := t.account()
	timeout := t.sessionTimeout(ctx)
	if timeout <= 0 {
		return nil, fmt.Errorf("connect to %s: %w", acct.IMAPHost, context.DeadlineExceeded)
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", acct.IMAPHost, acct.IMAPPort))
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", acct.IMAPHost, err)
	}
	// The absolute deadline covers the TLS handshake, greeting and every
	// command of the session.
	conn.SetDeadline(time.Now().Add(timeout))

	tlsConn := tls.Client(conn, &tls.Config{ServerName: acct.IMAPHost})
	c, err := client.New(tlsConn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect to %s: %w", acct.IMAPHost, err)
	}
	c.Timeout = timeout

	if err := c.Login(t.address, t.password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("login as %s: %w", t.address, err)
	}
	return c, nil
}

func (t *EmailTool) listEmails(ctx context.Context, folder string, limit int) (any, error) {
	if t.address == "" || t.password == "" {
		return failure("邮箱账号未配置"), nil
	}
	if limit <= 0 {
		limit = 10
	}

	c, err := t.dial(ctx)
	if err != nil {
		return failure(err.Error()), nil
	}
	defer c.Logout()

	mbox, err := c.Select(folder, true)
	if err != nil {
		return failure(fmt.Sprintf("打开文件夹失败: %v", err)), nil
	}
	if mbox.Messages == 0 {
		return map[string]any{"success": true, "emails": []EmailSummary{}, "count": 0}, nil
	}

	from := uint32(1)
	if mbox.Messages > uint32(limit) {
		from = mbox.Messages - uint32(limit) + 1
	}
	seqset := new(imap.SeqSet)
	seqset.AddRange(from, mbox.Messages)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, limit)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	var emails []EmailSummary
	for msg := range messages {
		summary := EmailSummary{ID: msg.Uid}
		if msg.Envelope != nil {
			summary.Subject = msg.Envelope.Subject
			summary.Date = msg.Envelope.Date.Format(time.RFC3339)
			if len(msg.Envelope.From) > 0 {
				summary.From = msg.Envelope.From[0].Address()
			}
		}
		if r := msg.GetBody(section); r != nil {
			summary.Body = readMailBody(r)
		}
		emails = append(emails, summary)
	}
	if err := <-done; err != nil {
		return failure(fmt.Sprintf("获取邮件失败: %v", err)), nil
	}

	// Newest first.
	for i, j := 0, len(emails)-1; i < j; i, j = i+1, j-1 {
		emails[i], emails[j] = emails[j], emails[i]
	}
	return map[string]any{"success": true, "emails": emails, "count": len(emails)}, nil
}

// readMailBody extracts the first text part of a raw message.
func readMailBody(r io.Reader) string {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return ""
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			return ""
		}
		if _, ok := part.Header.(*mail.InlineHeader); ok {
			body, err := io.ReadAll(part.Body)
			if err != nil {
				return ""
			}
			return string(body)
		}
	}
}

func (t *EmailTool) sendEmail(ctx context.Context, to, subject, body string) (any, error) {
	if t.address == "" || t.password == "" {
		return failure("邮箱账号未配置"), nil
	}
	if to == "" {
		return failure("收件人不能为空"), nil
	}

	acct := t.account()
	msg := strings.Join([]string{
		"From: " + t.address,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	if err := t.smtpSend(ctx, acct, to, msg); err != nil {
		return failure(fmt.Sprintf("发送邮件失败: %v", err)), nil
	}
	return map[string]any{"success": true, "to": to, "subject": subject}, nil
}

// smtpSend runs one deadline-bounded SMTP session. smtp.SendMail has no
// timeout hook, so the dial and connection deadline are handled here.
func (t *EmailTool) smtpSend(ctx context.Context, acct EmailAccount, to, msg string) error {
	timeout := t.sessionTimeout(ctx)
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	addr := fmt.Sprintf("%s:%d", acct.SMTPHost, acct.SMTPPort)
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	conn.SetDeadline(time.Now().Add(timeout))

	c, err := smtp.NewClient(conn, acct.SMTPHost)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: acct.SMTPHost}); err != nil {
			return err
		}
	}
	auth := smtp.PlainAuth("", t.address, t.password, acct.SMTPHost)
	if ok, _ := c.Extension("AUTH"); ok {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(t.address); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (t *EmailTool) listFolders(ctx context.Context) (any, error) {
	if t.address == "" || t.password == "" {
		return failure("邮箱账号未配置"), nil
	}
	c, err := t.dial(ctx)
	if err != nil {
		return failure(err.Error()), nil
	}
	defer c.Logout()

	mailboxes := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.List("", "*", mailboxes)
	}()

	var folders []string
	for m := range mailboxes {
		folders = append(folders, m.Name)
	}
	if err := <-done; err != nil {
		return failure(fmt.Sprintf("获取文件夹失败: %v", err)), nil
	}
	return map[string]any{"success": true, "folders": folders, "count": len(folders)}, nil
}

func (t *EmailTool) deleteEmail(ctx context.Context, folder string, uid uint32) (any, error) {
	if t.address == "" || t.password == "" {
		return failure("邮箱账号未配置"), nil
	}
	if uid == 0 {
		return failure("邮件 ID 无效"), nil
	}

	c, err := t.dial(ctx)
	if err != nil {
		return failure(err.Error()), nil
	}
	defer c.Logout()

	if _, err := c.Select(folder, false); err != nil {
		return failure(fmt.Sprintf("打开文件夹失败: %v", err)), nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	flags := []interface{}{imap.DeletedFlag}
	if err := c.UidStore(seqset, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
		return failure(fmt.Sprintf("标记删除失败: %v", err)), nil
	}
	if err := c.Expunge(nil); err != nil {
		return failure(fmt.Sprintf("删除邮件失败: %v", err)), nil
	}
	return map[string]any{"success": true, "deleted_id": uid}, nil
}

func (t *EmailTool) switchType(emailType string) (any, error) {
	if _, ok := emailAccounts[emailType]; !ok {
		return failure(fmt.Sprintf("不支持的邮箱类型: %s", emailType)), nil
	}
	t.mu.Lock()
	t.accountType = emailType
	t.mu.Unlock()
	return map[string]any{"success": true, "email_type": emailType}, nil
}
