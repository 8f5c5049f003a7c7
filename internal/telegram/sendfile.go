package telegram

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"

	"fetchbot/internal/media"
	"fetchbot/internal/services"
	"fetchbot/internal/upload"
)

// SendFile streams file to its chat as audio, video or document and returns
// the message id. The body is produced through a pipe so the file is never
// held in memory.
func (c *Client) SendFile(ctx context.Context, file upload.File, onProgress func(sent, total int64)) (string, error) {
	method, field := sendMethod(file.Destination)

	f, err := os.Open(file.Path)
	if err != nil {
		return "", fmt.Errorf("open upload file: %w", err)
	}
	defer f.Close()
	total := file.Size
	if total <= 0 {
		if info, statErr := f.Stat(); statErr == nil {
			total = info.Size()
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", services.ContextError(ctx)
	}

	pr, pw := io.Pipe()
	defer pr.Close()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(form, file, field, &progressReader{r: f, total: total, report: onProgress}))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), pr)
	if err != nil {
		return "", fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var msg Message
	if err := c.do(ctx, method, req, &msg); err != nil {
		return "", err
	}
	return strconv.FormatInt(msg.MessageID, 10), nil
}

func sendMethod(dest upload.Destination) (method, field string) {
	switch {
	case dest.Kind == media.KindAudio:
		return "sendAudio", "audio"
	case dest.AsDocument:
		return "sendDocument", "document"
	default:
		return "sendVideo", "video"
	}
}

func writeForm(form *multipart.Writer, file upload.File, field string, body io.Reader) error {
	fields := map[string]string{"chat_id": strconv.FormatInt(file.ChatID, 10)}
	if file.Caption != "" {
		fields["caption"] = file.Caption
	}
	if field == "video" {
		fields["supports_streaming"] = "true"
	}
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile(field, file.FileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return form.Close()
}

type progressReader struct {
	r      io.Reader
	sent   int64
	total  int64
	report func(sent, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.report != nil {
			p.report(p.sent, p.total)
		}
	}
	return n, err
}
