package delivery

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"strings"
	"time"

	"wecounts/internal/model"
)

// ImageContentID is the content-id the inline image is embedded under.
const ImageContentID = "attached_image"

// WelcomeSubject is the subject of the registration welcome mail.
const WelcomeSubject = "WecountsMonitor注册成功"

// Message is a rendered HTML mail. From and To are filled per attempt.
type Message struct {
	FromName string
	From     string
	To       string
	Subject  string
	HTML     string
	// Image is the path of a file embedded inline, or empty.
	Image string
}

// Renderer builds alert and welcome messages.
type Renderer struct {
	imagePath string
	now       func() time.Time
	log       *slog.Logger
}

// NewRenderer creates a Renderer. imagePath may be empty; a path that does
// not exist is skipped with a warning at render time.
func NewRenderer(imagePath string, log *slog.Logger) *Renderer {
	return &Renderer{imagePath: imagePath, now: time.Now, log: log}
}

// AlertSubject returns the subject line for an alert on article.
func AlertSubject(keywords []string, title string) string {
	return fmt.Sprintf("关键词提醒: %s - %s", strings.Join(keywords, ", "), title)
}

// Alert renders the keyword alert for article.
func (r *Renderer) Alert(article *model.Article, keywords []string) (*Message, error) {
	image := r.image()
	var buf bytes.Buffer
	err := alertTmpl.Execute(&buf, map[string]any{
		"Title":    article.Title,
		"Author":   article.Author,
		"URL":      article.URL,
		"Keywords": strings.Join(keywords, ", "),
		"Time":     r.now().Format("2006-01-02 15:04:05"),
		"CID":      cid(image),
	})
	if err != nil {
		return nil, fmt.Errorf("render alert: %w", err)
	}
	return &Message{Subject: AlertSubject(keywords, article.Title), HTML: buf.String(), Image: image}, nil
}

// Welcome renders the registration welcome mail.
func (r *Renderer) Welcome() (*Message, error) {
	image := r.image()
	var buf bytes.Buffer
	if err := welcomeTmpl.Execute(&buf, map[string]any{"CID": cid(image)}); err != nil {
		return nil, fmt.Errorf("render welcome: %w", err)
	}
	return &Message{Subject: WelcomeSubject, HTML: buf.String(), Image: image}, nil
}

func (r *Renderer) image() string {
	if r.imagePath == "" {
		return ""
	}
	if _, err := os.Stat(r.imagePath); err != nil {
		r.log.Warn("inline image unavailable", "path", r.imagePath, "error", err)
		return ""
	}
	return r.imagePath
}

func cid(image string) string {
	if image == "" {
		return ""
	}
	return ImageContentID
}

var alertTmpl = template.Must(template.New("alert").Parse(`<html>
<head>
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; }
.container { max-width: 600px; margin: 0 auto; padding: 20px; }
.header { background-color: #f8f9fa; padding: 10px; border-bottom: 1px solid #e9ecef; }
.footer { margin-top: 20px; font-size: 12px; color: #6c757d; }
.highlight { background-color: yellow; font-weight: bold; }
.image-container { text-align: center; margin: 20px 0; }
</style>
</head>
<body>
<div class="container">
<div class="header">
<h2>{{.Title}}</h2>
<p>作者: {{.Author}}</p>
</div>
<div class="content">
<p>在文章《{{.Title}}》中发现关键词: <span class="highlight">{{.Keywords}}</span></p>
<p>文章链接: <a href="{{.URL}}">{{.URL}}</a></p>
<p>监控时间: {{.Time}}</p>
<p>有疑问扫码咨询</p>
{{if .CID}}<div class="image-container"><img src="cid:{{.CID}}" alt="附图" style="max-width:100%;"></div>{{end}}
</div>
<div class="footer">
<p>此邮件由WecountsMonitor自动发送，请勿回复。</p>
</div>
</div>
</body>
</html>
`))

var welcomeTmpl = template.Must(template.New("welcome").Parse(`<html>
<head>
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; }
.container { max-width: 600px; margin: 0 auto; padding: 20px; }
.header { background-color: #f8f9fa; padding: 10px; border-bottom: 1px solid #e9ecef; }
.content { padding: 20px 0; }
.footer { margin-top: 20px; font-size: 12px; color: #6c757d; }
.image-container { text-align: center; margin: 20px 0; }
</style>
</head>
<body>
<div class="container">
<div class="header">
<h2>WecountsMonitor注册成功</h2>
</div>
<div class="content">
<p>致 RUCer，</p>
<p><strong>收到该邮件证明您的邮箱已加入WecountsMonitor的提醒列表。</strong></p>
<p>欢迎大家使用免费开源的WecountsMonitor，该服务主要是为了方便大家火速报名形势与政策讲座 &amp; 志愿活动，帮助高年级同学顺利毕业写的！</p>
<p>🌟 如果任何bug / 接收不到邮件 / 改进建议，欢迎扫描附件二维码加入反馈群进行吐槽。如果有其他开发建议或insights，也欢迎加入"WecountsMonitor"群聊进行讨论～ 🌟</p>
<p>来自WecountsMonitor开发组</p>
{{if .CID}}<div class="image-container"><img src="cid:{{.CID}}" alt="二维码" style="max-width:100%;"></div>{{end}}
</div>
<div class="footer">
<p>（此邮件由WecountsMonitor自动发送，请勿回复）</p>
</div>
</div>
</body>
</html>
`))
