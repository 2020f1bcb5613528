package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"wecounts/internal/model"
)

// DefaultWeChatEndpoint is the MP platform article-list endpoint.
const DefaultWeChatEndpoint = "https://mp.weixin.qq.com/cgi-bin/appmsg"

const retTokenExpired = 200002

var (
	// ErrTokenExpired is returned when the platform rejects the session token.
	ErrTokenExpired = errors.New("wechat token expired or invalid")
	// ErrUnknownAccount is returned when an account has no fakeid mapping.
	ErrUnknownAccount = errors.New("no fakeid for account")
)

// Credentials holds the logged-in MP platform session.
type Credentials struct {
	Cookie  string
	Token   string
	FakeIDs map[string]string
}

type cookieFile struct {
	CookieString string `json:"cookie_string"`
	Token        string `json:"token"`
}

type fakeIDFile struct {
	Accounts map[string]string `json:"accounts"`
}

// LoadCredentials reads the cookie file and the account fakeid map. Missing
// files yield empty values; unreadable JSON is an error.
func LoadCredentials(cookiePath, fakeIDPath string) (Credentials, error) {
	var creds Credentials

	var cf cookieFile
	if err := readJSONIfExists(cookiePath, &cf); err != nil {
		return creds, fmt.Errorf("load cookies: %w", err)
	}
	creds.Cookie = cf.CookieString
	creds.Token = cf.Token

	var ff fakeIDFile
	if err := readJSONIfExists(fakeIDPath, &ff); err != nil {
		return creds, fmt.Errorf("load fakeids: %w", err)
	}
	creds.FakeIDs = ff.Accounts
	return creds, nil
}

func readJSONIfExists(path string, v any) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// WeChat lists the latest articles of official accounts through the MP
// platform article-list API.
type WeChat struct {
	client   HTTPClient
	endpoint string
	creds    Credentials
}

// NewWeChat creates a WeChat lister.
func NewWeChat(client HTTPClient, creds Credentials) *WeChat {
	return &WeChat{client: client, endpoint: DefaultWeChatEndpoint, creds: creds}
}

// SetEndpoint overrides the article-list endpoint.
func (w *WeChat) SetEndpoint(endpoint string) {
	w.endpoint = endpoint
}

type appMsgResponse struct {
	BaseResp struct {
		Ret    int    `json:"ret"`
		ErrMsg string `json:"err_msg"`
	} `json:"base_resp"`
	AppMsgList []struct {
		Title      string `json:"title"`
		Link       string `json:"link"`
		CreateTime int64  `json:"create_time"`
	} `json:"app_msg_list"`
}

// Latest implements Lister.
func (w *WeChat) Latest(ctx context.Context, feed model.FeedSource, count int) ([]model.FeedItem, error) {
	fakeID, ok := w.creds.FakeIDs[feed.Name]
	if !ok || fakeID == "" {
		return nil, fmt.Errorf("%w %q", ErrUnknownAccount, feed.Name)
	}
	if count <= 0 {
		count = 1
	}

	q := url.Values{}
	q.Set("token", w.creds.Token)
	q.Set("lang", "zh_CN")
	q.Set("f", "json")
	q.Set("ajax", "1")
	q.Set("action", "list_ex")
	q.Set("begin", "0")
	q.Set("count", strconv.Itoa(count))
	q.Set("query", "")
	q.Set("fakeid", fakeID)
	q.Set("type", "9")

	header := http.Header{}
	header.Set("Cookie", w.creds.Cookie)

	resp, err := get(ctx, w.client, w.endpoint+"?"+q.Encode(), header)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := readLimited(resp.Body)
	if err != nil {
		return nil, err
	}

	var r appMsgResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	switch r.BaseResp.Ret {
	case 0:
	case retTokenExpired:
		return nil, ErrTokenExpired
	default:
		return nil, fmt.Errorf("wechat api error %d: %s", r.BaseResp.Ret, r.BaseResp.ErrMsg)
	}

	items := make([]model.FeedItem, 0, len(r.AppMsgList))
	for _, m := range r.AppMsgList {
		items = append(items, model.FeedItem{
			Title:       m.Title,
			Link:        m.Link,
			PublishedAt: time.Unix(m.CreateTime, 0),
		})
	}
	return items, nil
}
