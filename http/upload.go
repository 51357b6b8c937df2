package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"sentilab/dataset"
	"sentilab/db"
	"sentilab/monitoring"
)

// multipart内存缓冲上限，超出部分写入临时文件
const multipartMemory = 8 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.Storage.MaxUploadBytes()
	tooLarge := fmt.Sprintf("File too large. Maximum size is %dMB", s.cfg.Storage.MaxUploadMB)
	if r.ContentLength > maxBytes {
		respondError(w, http.StatusRequestEntityTooLarge, tooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isBodyTooLarge(err) {
			respondError(w, http.StatusRequestEntityTooLarge, tooLarge)
			return
		}
		respondError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		// 文件名为空的part会被当作普通表单值
		if _, ok := r.MultipartForm.Value["file"]; ok {
			respondError(w, http.StatusBadRequest, "No file selected")
			return
		}
		respondError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		respondError(w, http.StatusBadRequest, "No file selected")
		return
	}
	allowed := s.cfg.Storage.AllowedExtensions
	if !dataset.AllowedExtension(header.Filename, allowed) {
		respondError(w, http.StatusBadRequest, "Invalid file type")
		return
	}

	filename := secureFilename(header.Filename)
	if !dataset.AllowedExtension(filename, allowed) {
		filename = fmt.Sprintf("upload_%d.%s", time.Now().Unix(), dataset.Extension(header.Filename))
	}

	if err := os.MkdirAll(s.cfg.Storage.UploadDir, 0o755); err != nil {
		s.requestLog(r).Error("create upload dir failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to store file")
		return
	}
	dst := filepath.Join(s.cfg.Storage.UploadDir, filename)
	tmp, size, err := saveTemp(s.cfg.Storage.UploadDir, dataset.Extension(filename), file)
	if err != nil {
		s.requestLog(r).Error("save upload failed", zap.String("path", dst), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to store file")
		return
	}

	// 解析成功后才覆盖同名文件
	ds, err := dataset.Load(tmp)
	if err != nil {
		os.Remove(tmp)
		respondError(w, http.StatusBadRequest, "Invalid file format: "+err.Error())
		return
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		s.requestLog(r).Error("store upload failed", zap.String("path", dst), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to store file")
		return
	}

	s.requestLog(r).Info("dataset uploaded",
		zap.String("filename", filename),
		zap.Int("rows", ds.Len()),
		zap.Strings("columns", ds.Columns))

	if s.history != nil {
		rec := &db.DatasetRecord{
			Filename:  filename,
			Filepath:  dst,
			Rows:      ds.Len(),
			Columns:   ds.Columns,
			SizeBytes: size,
		}
		if err := s.history.RecordDataset(r.Context(), rec); err != nil {
			s.requestLog(r).Warn("failed to record dataset", zap.Error(err))
		}
	}
	if s.hub != nil {
		s.hub.Publish(monitoring.DatasetUploaded, map[string]interface{}{
			"filename": filename,
			"filepath": dst,
			"rows":     ds.Len(),
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"filename": filename,
		"filepath": dst,
		"rows":     ds.Len(),
		"columns":  ds.Columns,
	})
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	records := []db.DatasetRecord{}
	if s.history != nil {
		var err error
		records, err = s.history.ListDatasets(r.Context(), queryLimit(r, 50))
		if err != nil {
			s.requestLog(r).Error("list datasets failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"datasets": records,
		"total":    len(records),
	})
}

// saveTemp 将上传内容写入上传目录下的临时文件，保留扩展名供解析使用
func saveTemp(dir, ext string, src io.Reader) (string, int64, error) {
	out, err := os.CreateTemp(dir, ".upload-*."+ext)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out.Name())
		return "", 0, err
	}
	return out.Name(), n, nil
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

var stripMarks = runes.Remove(runes.In(unicode.Mn))

// secureFilename 将文件名折叠为ASCII，去除路径成分与特殊字符
func secureFilename(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, stripMarks), name)
	if err != nil {
		folded = name
	}
	folded = strings.NewReplacer("/", " ", "\\", " ").Replace(folded)
	folded = strings.Join(strings.Fields(folded), "_")

	var b strings.Builder
	for _, r := range folded {
		switch {
		case r > unicode.MaxASCII:
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._")
}

func queryLimit(r *http.Request, fallback int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
