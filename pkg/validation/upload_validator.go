package validation

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultMaxFileSize is the upload ceiling when no policy overrides it.
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// DefaultAllowedExtensions lists the accepted upload extensions, in display order.
var DefaultAllowedExtensions = []string{"png", "jpg", "jpeg", "webp"}

// Reason identifies why an upload was rejected.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonNoFile     Reason = "no_file"
	ReasonNoFilename Reason = "no_filename"
	ReasonExtension  Reason = "extension_not_allowed"
	ReasonTooLarge   Reason = "file_too_large"
)

// UploadedFile is one multipart file as received by a handler.
type UploadedFile struct {
	Filename string
	Size     int64
	Content  io.ReadSeeker
}

// Result is the outcome of validating an UploadedFile. When Accepted is
// false, Reason and Message describe the rejection.
type Result struct {
	Accepted bool
	Filename string
	Reason   Reason
	Message  string
}

func accepted(filename string) Result {
	return Result{Accepted: true, Filename: filename}
}

func rejected(reason Reason, message string) Result {
	return Result{Reason: reason, Message: message}
}

// Policy holds the upload limits.
type Policy struct {
	MaxFileSize       int64
	AllowedExtensions []string
	// MaxImagePixels bounds width*height of a decoded upload. Zero leaves
	// the decoder default in place.
	MaxImagePixels int64
}

// UploadValidator checks uploads against a Policy before any expensive work
type UploadValidator struct {
	maxFileSize int64
	maxPixels   int64
	allowed     map[string]struct{}
	display     []string
}

// NewUploadValidator creates a validator with the default policy
func NewUploadValidator() *UploadValidator {
	return NewUploadValidatorWithPolicy(Policy{})
}

// NewUploadValidatorWithPolicy creates a validator; zero fields fall back to defaults
func NewUploadValidatorWithPolicy(p Policy) *UploadValidator {
	if p.MaxFileSize <= 0 {
		p.MaxFileSize = DefaultMaxFileSize
	}
	if len(p.AllowedExtensions) == 0 {
		p.AllowedExtensions = DefaultAllowedExtensions
	}

	v := &UploadValidator{
		maxFileSize: p.MaxFileSize,
		maxPixels:   max(p.MaxImagePixels, 0),
		allowed:     make(map[string]struct{}, len(p.AllowedExtensions)),
	}
	for _, ext := range p.AllowedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext == "" {
			continue
		}
		if _, dup := v.allowed[ext]; !dup {
			v.display = append(v.display, ext)
		}
		v.allowed[ext] = struct{}{}
	}
	return v
}

// MaxFileSize returns the configured ceiling in bytes.
func (v *UploadValidator) MaxFileSize() int64 {
	return v.maxFileSize
}

// MaxImagePixels returns the decoded size ceiling, or 0 for the decoder default.
func (v *UploadValidator) MaxImagePixels() int64 {
	return v.maxPixels
}

// AllowedExtensions returns the accepted extensions in display order.
func (v *UploadValidator) AllowedExtensions() []string {
	out := make([]string, len(v.display))
	copy(out, v.display)
	return out
}

// Validate runs the checks in order and stops at the first failure.
func (v *UploadValidator) Validate(f *UploadedFile) Result {
	if f == nil || f.Content == nil {
		return rejected(ReasonNoFile, "No file provided")
	}

	if f.Filename == "" {
		return rejected(ReasonNoFilename, "No file selected")
	}

	if !v.IsAllowedFilename(f.Filename) {
		return rejected(ReasonExtension,
			fmt.Sprintf("File type not allowed. Supported: %s", strings.Join(v.display, ", ")))
	}

	size, err := measure(f.Content)
	if err != nil {
		// Fall back to the size the multipart header declared.
		size = f.Size
	}
	if size > v.maxFileSize {
		return rejected(ReasonTooLarge, "File too large. Maximum size: "+v.LimitLabel())
	}

	return accepted(SecureFilename(f.Filename))
}

// IsAllowedFilename reports whether the filename carries an allowed extension.
func (v *UploadValidator) IsAllowedFilename(filename string) bool {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return false
	}
	_, ok := v.allowed[strings.ToLower(filename[idx+1:])]
	return ok
}

// LimitLabel renders the size ceiling in megabytes, e.g. "10MB".
func (v *UploadValidator) LimitLabel() string {
	return strconv.FormatFloat(float64(v.maxFileSize)/(1024*1024), 'f', -1, 64) + "MB"
}

// measure returns the stream length and puts the read position back where it was.
func measure(rs io.ReadSeeker) (int64, error) {
	pos, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := rs.Seek(pos, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}

// SecureFilename reduces a client supplied name to a safe base name made of
// ASCII letters, digits, dots, dashes and underscores.
func SecureFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}

	cleaned := strings.Trim(b.String(), "._")
	if cleaned == "" {
		return "upload"
	}
	return cleaned
}
