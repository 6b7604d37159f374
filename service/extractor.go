package service

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"mime"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tieubaoca/rag-be/logger"
	"github.com/tieubaoca/rag-be/types"
)

// maxDocxXMLBytes bounds the decompressed size of word/document.xml.
var maxDocxXMLBytes int64 = 64 << 20

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

var (
	mimeFileTypes = map[string]string{
		"application/pdf": types.FileTypePDF,
		"text/markdown":   types.FileTypeMarkdown,
		"text/x-markdown": types.FileTypeMarkdown,
		"text/plain":      types.FileTypeText,
		docxMIME:          types.FileTypeDocx,
	}
	extFileTypes = map[string]string{
		".pdf":      types.FileTypePDF,
		".md":       types.FileTypeMarkdown,
		".markdown": types.FileTypeMarkdown,
		".txt":      types.FileTypeText,
		".docx":     types.FileTypeDocx,
	}
	pdfPagesRe = regexp.MustCompile(`Pages:\s+(\d+)`)
)

// DetectFileType resolves the file type from the MIME type, falling back to
// the extension when the MIME type is missing or generic.
func DetectFileType(filename, mimeType string) (string, error) {
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		if ft, ok := mimeFileTypes[mt]; ok {
			return ft, nil
		}
	}
	if ft, ok := extFileTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ft, nil
	}
	return "", types.NewValidationError("file_type", fmt.Sprintf("unsupported file type for %q", filename))
}

type Extractor struct {
	// OCR enables the tesseract fallback for scanned PDFs.
	OCR    bool
	tmpDir string
	log    *logger.Logger
}

func NewExtractor(tmpDir string, ocr bool, log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.Nop()
	}
	return &Extractor{OCR: ocr, tmpDir: tmpDir, log: log}
}

// Extract returns the plain text of an uploaded file.
func (e *Extractor) Extract(ctx context.Context, filename, mimeType string, data []byte) (*types.ExtractedText, error) {
	fileType, err := DetectFileType(filename, mimeType)
	if err != nil {
		return nil, err
	}

	out := &types.ExtractedText{FileType: fileType}
	switch fileType {
	case types.FileTypePDF:
		text, pages, err := e.extractPDF(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("extract pdf %q: %w", filename, err)
		}
		out.Text = text
		out.PageCount = &pages
	case types.FileTypeDocx:
		text, err := extractDocx(data)
		if err != nil {
			return nil, fmt.Errorf("extract docx %q: %w", filename, err)
		}
		out.Text = text
	default:
		out.Text = strings.ToValidUTF8(string(data), "�")
	}

	if strings.TrimSpace(out.Text) == "" {
		return nil, types.NewValidationError("", fmt.Sprintf("No text content could be extracted from %q", filename))
	}
	return out, nil
}

func (e *Extractor) extractPDF(ctx context.Context, data []byte) (string, int, error) {
	f, err := os.CreateTemp(e.tmpDir, "upload-*.pdf")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", 0, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", 0, err
	}

	pages, err := numPages(ctx, f.Name())
	if err != nil {
		return "", 0, err
	}

	cmd := exec.CommandContext(ctx, "pdftotext", "-enc", "UTF-8", f.Name(), "-")
	var txtOut bytes.Buffer
	cmd.Stdout = &txtOut
	if err := cmd.Run(); err != nil {
		return "", 0, fmt.Errorf("run pdftotext: %w", err)
	}
	text := cleanPDFText(txtOut.String())
	if text == "" && e.OCR {
		e.log.Info("No text layer, falling back to OCR", "pages", pages)
		text, err = e.ocrPDF(ctx, f.Name(), pages)
		if err != nil {
			return "", 0, err
		}
	}
	return text, pages, nil
}

// numPages reads the page count reported by pdfinfo.
func numPages(ctx context.Context, path string) (int, error) {
	cmd := exec.CommandContext(ctx, "pdfinfo", path)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("run pdfinfo: %w", err)
	}
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		if m := pdfPagesRe.FindStringSubmatch(scanner.Text()); len(m) == 2 {
			return strconv.Atoi(m[1])
		}
	}
	return 0, fmt.Errorf("unable to determine page count from pdfinfo")
}

func (e *Extractor) ocrPDF(ctx context.Context, path string, pages int) (string, error) {
	dir, err := os.MkdirTemp(e.tmpDir, "ocr-*")
	if err != nil {
		return "", fmt.Errorf("create ocr dir: %w", err)
	}
	defer os.RemoveAll(dir)

	var texts []string
	for page := 1; page <= pages; page++ {
		p := strconv.Itoa(page)
		prefix := filepath.Join(dir, "page-"+p)
		if err := exec.CommandContext(ctx, "pdftoppm", "-f", p, "-l", p, "-png", "-singlefile", path, prefix).Run(); err != nil {
			e.log.Warn("Failed to render page", "page", page, "error", err)
			continue
		}
		cmd := exec.CommandContext(ctx, "tesseract", prefix+".png", "stdout", "-l", "eng", "--oem", "3", "--psm", "3")
		var out bytes.Buffer
		cmd.Stdout = &out
		if err := cmd.Run(); err != nil {
			e.log.Warn("OCR failed", "page", page, "error", err)
			continue
		}
		if t := cleanPDFText(out.String()); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n\n"), nil
}

var pdfCleaner = strings.NewReplacer(
	"\u0000", "",
	"�", "",
	"\u001b", "",
	"\r", "",
	"\f", "\n\n",
)

func cleanPDFText(text string) string {
	return strings.TrimSpace(pdfCleaner.Replace(text))
}

// extractDocx reads the paragraphs of word/document.xml, one blank line
// between paragraphs.
func extractDocx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", err)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("word/document.xml not found")
	}
	rc, err := doc.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	const wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	limited := &io.LimitedReader{R: rc, N: maxDocxXMLBytes + 1}
	dec := xml.NewDecoder(limited)
	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if limited.N <= 0 {
			return "", fmt.Errorf("document.xml exceeds %d bytes uncompressed", maxDocxXMLBytes)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			case "br":
				current.WriteByte('\n')
			}
		case xml.EndElement:
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if p := strings.TrimSpace(current.String()); p != "" {
					paragraphs = append(paragraphs, p)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return strings.Join(paragraphs, "\n\n"), nil
}
