package sources

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"github.com/kalambet/cocreate/internal/voice"
)

// MaxDocumentSize caps an uploaded training document.
const MaxDocumentSize = 10 << 20

// ExtractText converts an uploaded file into a training document. The format
// is chosen by extension: .pdf, .html/.htm, and everything else as UTF-8 text.
func ExtractText(fileName string, data []byte) (voice.TrainingDoc, error) {
	if len(data) > MaxDocumentSize {
		return voice.TrainingDoc{}, fmt.Errorf("%s: document exceeds %d bytes", fileName, MaxDocumentSize)
	}

	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		text, err = pdfText(data)
	case ".html", ".htm":
		text, err = htmlText(data)
	default:
		if !utf8.Valid(data) {
			return voice.TrainingDoc{}, fmt.Errorf("%s: not valid UTF-8 text", fileName)
		}
		text = string(data)
	}
	if err != nil {
		return voice.TrainingDoc{}, fmt.Errorf("extracting text from %s: %w", fileName, err)
	}

	text = strings.TrimSpace(text)
	return voice.TrainingDoc{
		FileName:      fileName,
		ExtractedText: text,
		WordCount:     len(strings.Fields(text)),
	}, nil
}

func pdfText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "tr": true,
}

func htmlText(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
					sb.WriteByte(' ')
				}
				sb.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] && sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}
	walk(doc)
	return sb.String(), nil
}
