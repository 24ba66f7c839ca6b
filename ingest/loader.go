package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"dsa-agent/rag"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// File types recorded in chunk metadata.
const (
	FileTypePDF  = "pdf"
	FileTypeJSON = "json"
)

// LoadPDF returns one document per non-empty page. Pages that fail to
// extract are logged and skipped.
func LoadPDF(path string, logger *zap.Logger) ([]rag.Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	totalPages := r.NumPage()
	logger.Debug("Extracting text from PDF", zap.String("path", path), zap.Int("pages", totalPages))

	var docs []rag.Document
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := r.Page(pageNum)
		if page.V.IsNull() {
			logger.Warn("Skipping null page", zap.String("path", path), zap.Int("page", pageNum))
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Warn("Failed to extract text from page",
				zap.String("path", path),
				zap.Int("page", pageNum),
				zap.Error(err))
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		docs = append(docs, rag.Document{
			Text:   text,
			Source: path,
			Metadata: map[string]string{
				"source":    path,
				"page":      strconv.Itoa(pageNum - 1),
				"file_type": FileTypePDF,
				"filename":  filepath.Base(path),
			},
		})
	}

	logger.Info("PDF text extraction completed",
		zap.String("path", path),
		zap.Int("pages", totalPages),
		zap.Int("documents", len(docs)))
	return docs, nil
}

// LoadJSON re-serializes a scraped JSON file into a single document so keys
// and values are both searchable.
func LoadJSON(path string) (rag.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return rag.Document{}, fmt.Errorf("failed to read JSON file: %w", err)
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return rag.Document{}, fmt.Errorf("failed to parse JSON file: %w", err)
	}
	text, err := marshalNoEscape(value)
	if err != nil {
		return rag.Document{}, err
	}
	if text == "" || text == "null" || text == "{}" || text == "[]" {
		return rag.Document{}, fmt.Errorf("JSON file %s is empty", path)
	}
	return rag.Document{
		Text:   text,
		Source: path,
		Metadata: map[string]string{
			"source":    path,
			"file_type": FileTypeJSON,
			"filename":  filepath.Base(path),
		},
	}, nil
}

func marshalNoEscape(v any) (string, error) {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed to serialize JSON: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

// listFiles returns the files in dir with the given extension, sorted. A
// missing directory yields no files.
func listFiles(dir, ext string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// LoadCorpus reads every PDF in booksDir and every JSON file in jsonDir.
// Unreadable or empty files are logged and skipped.
func LoadCorpus(booksDir, jsonDir string, logger *zap.Logger) ([]rag.Document, error) {
	pdfs, err := listFiles(booksDir, ".pdf")
	if err != nil {
		return nil, err
	}
	jsons, err := listFiles(jsonDir, ".json")
	if err != nil {
		return nil, err
	}

	var docs []rag.Document
	for _, path := range pdfs {
		pages, err := LoadPDF(path, logger)
		if err != nil {
			logger.Warn("Skipping unreadable PDF", zap.String("path", path), zap.Error(err))
			continue
		}
		if len(pages) == 0 {
			logger.Warn("Skipping PDF with no extractable text", zap.String("path", path))
			continue
		}
		docs = append(docs, pages...)
	}
	pdfDocs := len(docs)

	for _, path := range jsons {
		doc, err := LoadJSON(path)
		if err != nil {
			logger.Warn("Skipping JSON file", zap.String("path", path), zap.Error(err))
			continue
		}
		docs = append(docs, doc)
	}

	logger.Info("Corpus loaded",
		zap.Int("pdf_files", len(pdfs)),
		zap.Int("pdf_pages", pdfDocs),
		zap.Int("json_documents", len(docs)-pdfDocs))
	return docs, nil
}
