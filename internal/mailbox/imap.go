package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/horken7/your-mail-buddy/internal/logging"
	"github.com/horken7/your-mail-buddy/internal/model"
)

const inbox = "INBOX"

// FetchResult is the outcome of one batch fetch. Skipped lists the
// messages that were left out because they could not be retrieved or
// normalized.
type FetchResult struct {
	Messages []model.Message
	Skipped  []*FetchError

	// Unread is the number of unread messages the mailbox reported, before
	// the batch limit was applied.
	Unread int
}

// Account holds what is needed to log in to a mail server.
type Account struct {
	Host     string
	Port     int
	Username string
	Password string

	// TLS selects implicit TLS; false means STARTTLS.
	TLS bool
}

func (a Account) addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// IMAPClient wraps go-imap v2. Every exported operation that does not take
// a client opens its own connection and logs out before returning.
type IMAPClient struct {
	account Account
	logger  *log.Logger

	// insecure skips TLS entirely; only set by tests talking to a local
	// in-process server.
	insecure bool
}

// NewIMAPClient creates a new IMAP client configuration.
func NewIMAPClient(account Account, logger *log.Logger) *IMAPClient {
	return &IMAPClient{
		account: account,
		logger:  logging.OrDiscard(logger).With("component", "imap"),
	}
}

// Connect establishes a connection to the IMAP server, authenticates,
// and returns the connected client. The caller is responsible for
// calling Logout/Close on the returned client.
func (c *IMAPClient) Connect(ctx context.Context) (*imapclient.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ConnectivityError{Server: c.account.addr(), Err: err}
	}

	addr := c.account.addr()
	options := &imapclient.Options{
		TLSConfig: &tls.Config{ServerName: c.account.Host},
	}

	var client *imapclient.Client
	var err error
	switch {
	case c.insecure:
		client, err = imapclient.DialInsecure(addr, options)
	case c.account.TLS:
		client, err = imapclient.DialTLS(addr, options)
	default:
		client, err = imapclient.DialStartTLS(addr, options)
	}
	if err != nil {
		return nil, &ConnectivityError{Server: addr, Err: err}
	}

	if err := client.Login(c.account.Username, c.account.Password).Wait(); err != nil {
		_ = client.Close()
		var imapErr *imap.Error
		if errors.As(err, &imapErr) {
			return nil, &AuthError{Server: addr, Account: c.account.Username, Err: err}
		}
		return nil, &ConnectivityError{Server: addr, Err: err}
	}

	c.logger.Debug("imap connection established", "address", addr, "tls", c.account.TLS && !c.insecure)
	return client, nil
}

// session opens a scoped connection. The returned cleanup logs out and
// closes the connection; it must be called on every path.
func (c *IMAPClient) session(ctx context.Context) (*imapclient.Client, func(), error) {
	client, err := c.Connect(ctx)
	if err != nil {
		return nil, nil, err
	}

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil {
				c.logger.Warn("imap logout failed", "err", err)
			}
		}
		if err := client.Close(); err != nil {
			c.logger.Debug("imap connection closed", "err", err)
		}
	}

	return client, cleanup, nil
}

// ListUnread selects INBOX and returns the UIDs of every message without
// the \Seen flag, in the order the server returned them.
func (c *IMAPClient) ListUnread(ctx context.Context, client *imapclient.Client) ([]string, error) {
	if _, err := client.Select(inbox, nil).Wait(); err != nil {
		return nil, &ProtocolError{Op: "select " + inbox, Err: err}
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, &ProtocolError{Op: "search unseen", Err: err}
	}

	uids := searchData.AllUIDs()
	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}

	c.logger.Debug("listed unread messages", "count", len(ids))
	return ids, nil
}

// Fetch retrieves and normalizes up to limit messages, taking ids in the
// order given. The message body is read with BODY.PEEK[] so fetching does
// not mark anything seen. A message that cannot be fetched or parsed is
// recorded in Skipped and the rest of the batch continues.
func (c *IMAPClient) Fetch(
	ctx context.Context,
	client *imapclient.Client,
	ids []string,
	limit int,
) *FetchResult {
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	result := &FetchResult{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			result.Skipped = append(result.Skipped, &FetchError{ID: id, Err: err})
			continue
		}

		msg, err := c.fetchOne(client, id)
		if err != nil {
			fetchErr := &FetchError{ID: id, Err: err}
			c.logger.Warn("skipping message", "uid", id, "err", err)
			result.Skipped = append(result.Skipped, fetchErr)
			continue
		}
		result.Messages = append(result.Messages, msg)
	}

	return result
}

func (c *IMAPClient) fetchOne(client *imapclient.Client, id string) (model.Message, error) {
	uid, err := parseUID(id)
	if err != nil {
		return model.Message{}, err
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uid), fetchOpts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return model.Message{}, fmt.Errorf("message UID %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return model.Message{}, fmt.Errorf("collecting message data: %w", err)
	}

	if err := fetchCmd.Close(); err != nil {
		return model.Message{}, fmt.Errorf("closing fetch: %w", err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return model.Message{}, fmt.Errorf("message UID %d has no body", uid)
	}

	return Normalize(id, raw)
}

// FetchUnread opens a connection, lists unread messages, fetches up to
// limit of them and logs out.
func (c *IMAPClient) FetchUnread(ctx context.Context, limit int) (*FetchResult, error) {
	client, cleanup, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	ids, err := c.ListUnread(ctx, client)
	if err != nil {
		return nil, err
	}

	result := c.Fetch(ctx, client, ids, limit)
	result.Unread = len(ids)

	c.logger.Info("fetched unread messages",
		"unread", result.Unread,
		"fetched", len(result.Messages),
		"skipped", len(result.Skipped),
	)
	return result, nil
}

// MarkRead opens its own connection and adds the \Seen flag to one
// message. Flagging a message that is already seen is a no-op.
func (c *IMAPClient) MarkRead(ctx context.Context, id string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}

	client, cleanup, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := client.Select(inbox, nil).Wait(); err != nil {
		return &ProtocolError{Op: "select " + inbox, Err: err}
	}

	storeCmd := client.Store(imap.UIDSetNum(uid), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)

	if err := storeCmd.Close(); err != nil {
		return &ProtocolError{Op: "store \\Seen", Err: err}
	}

	c.logger.Info("marked message read", "uid", id)
	return nil
}

// parseUID converts a string message id to an IMAP UID.
func parseUID(id string) (imap.UID, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil || uid == 0 {
		return 0, fmt.Errorf("invalid message UID %q", id)
	}
	return imap.UID(uid), nil
}
