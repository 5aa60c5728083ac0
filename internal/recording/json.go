package recording

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"nica/internal/fileutil"
	"nica/internal/services"
)

// Open loads a recording, choosing the decoder from the file extension
// (.json or .edf), fills missing time axes and validates it.
func Open(path string) (*Recording, error) {
	var (
		rec *Recording
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		rec, err = readJSONFile(path)
	case ".edf":
		rec, err = ReadEDFFile(path)
	default:
		return nil, services.Wrap(services.ErrValidation, "recording", "open", fmt.Sprintf("unsupported recording format %q", filepath.Ext(path)), nil)
	}
	if err != nil {
		return nil, err
	}
	rec.Path = path
	if rec.Name == "" {
		rec.Name = rec.Stem()
	}
	rec.FillTimeAxes()
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func readJSONFile(path string) (*Recording, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "recording", "open", path, err)
	}
	defer file.Close()
	return DecodeJSON(file)
}

// DecodeJSON reads the native JSON recording format.
func DecodeJSON(r io.Reader) (*Recording, error) {
	var rec Recording
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, services.Wrap(services.ErrValidation, "recording", "decode json", "malformed recording", err)
	}
	return &rec, nil
}

// WriteJSONFile stores the recording in the native JSON format.
func WriteJSONFile(path string, rec *Recording) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return services.Wrap(services.ErrIO, "recording", "encode json", path, err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return services.Wrap(services.ErrIO, "recording", "write json", path, err)
	}
	return nil
}
