package jobs

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/avolkov/thermalscan/internal/imaging"
)

// ImageFile is one named blob in a submission.
type ImageFile struct {
	Filename string
	Data     []byte
}

var reservedChars = regexp.MustCompile(`[<>:"|?*\x00-\x1f]`)

// SanitizeFilename reduces an uploaded name to a safe basename. Anything that
// sanitizes to nothing becomes "unnamed_file".
func SanitizeFilename(name string) string {
	if name == "" {
		return "unnamed_file"
	}

	// Archives and some clients ship forward-slash paths regardless of OS.
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = filepath.Base(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "unnamed_file"
	}

	name = reservedChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, ". ")
	if name == "" {
		return "unnamed_file"
	}
	return name
}

// IsArchive reports whether the filename looks like a zip batch.
func IsArchive(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".zip")
}

// BuildBatch turns raw uploads into the final job input set: zip archives are
// expanded, names sanitized, unsupported or empty entries dropped, and
// filename collisions disambiguated with _1, _2 suffixes. The store keys
// results by filename, so every name in the returned batch is unique.
func BuildBatch(files []ImageFile) ([]ImageFile, error) {
	if len(files) == 0 {
		return nil, ErrEmptyBatch
	}

	var flat []ImageFile
	for _, f := range files {
		if IsArchive(f.Filename) {
			entries, err := expandArchive(f.Data)
			if err != nil {
				return nil, err
			}
			flat = append(flat, entries...)
			continue
		}
		flat = append(flat, f)
	}

	seen := make(map[string]bool)
	batch := make([]ImageFile, 0, len(flat))
	for _, f := range flat {
		name := SanitizeFilename(f.Filename)
		if !imaging.SupportedFilename(name) || len(f.Data) == 0 {
			continue
		}
		batch = append(batch, ImageFile{Filename: disambiguate(name, seen), Data: f.Data})
	}

	if len(batch) == 0 {
		return nil, ErrNoValidImages
	}
	return batch, nil
}

func expandArchive(data []byte) ([]ImageFile, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}

	var entries []ImageFile
	for _, member := range r.File {
		if member.FileInfo().IsDir() {
			continue
		}
		name := SanitizeFilename(member.Name)
		if name == "unnamed_file" || !imaging.SupportedFilename(name) {
			continue
		}

		rc, err := member.Open()
		if err != nil {
			continue
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil || len(content) == 0 {
			continue
		}
		entries = append(entries, ImageFile{Filename: name, Data: content})
	}
	return entries, nil
}

// disambiguate returns name, or name with a _N suffix if it was already taken.
func disambiguate(name string, seen map[string]bool) string {
	if !seen[name] {
		seen[name] = true
		return name
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if !seen[candidate] {
			seen[candidate] = true
			return candidate
		}
	}
}
