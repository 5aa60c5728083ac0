// Package bundle persists the result of one analysis run: the averaged
// responses consumed by the grand average, the settings record and the
// optional per-channel signal exports.
package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"nica/internal/average"
	"nica/internal/config"
	"nica/internal/fileutil"
	"nica/internal/services"
)

// Matrix is a [row][column] matrix whose NaN entries encode as JSON null.
type Matrix [][]float64

// MarshalJSON implements json.Marshaler.
func (m Matrix) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	rows := make([][]*float64, len(m))
	for i, row := range m {
		rows[i] = make([]*float64, len(row))
		for j := range row {
			if v := row[j]; !math.IsNaN(v) && !math.IsInf(v, 0) {
				rows[i][j] = &row[j]
			}
		}
	}
	return json.Marshal(rows)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Matrix) UnmarshalJSON(data []byte) error {
	var rows [][]*float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	if rows == nil {
		*m = nil
		return nil
	}
	out := make(Matrix, len(rows))
	for i, row := range rows {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			if v == nil {
				out[i][j] = math.NaN()
			} else {
				out[i][j] = *v
			}
		}
	}
	*m = out
	return nil
}

// Channels is the number of columns.
func (m Matrix) Channels() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Column copies column ch.
func (m Matrix) Column(ch int) []float64 {
	out := make([]float64, len(m))
	for i, row := range m {
		out[i] = row[ch]
	}
	return out
}

// Bundle is the per-run result. Every matrix is [sample][channel].
type Bundle struct {
	HeadOxy      Matrix  `json:"head_oxy"`
	HeadDeoxy    Matrix  `json:"head_deoxy"`
	HeadOxyStd   Matrix  `json:"head_oxy_std"`
	HeadDeoxyStd Matrix  `json:"head_deoxy_std"`
	HeadOxyCon   Matrix  `json:"head_oxy_con"`
	HeadDeoxyCon Matrix  `json:"head_deoxy_con"`
	OxyHb        Matrix  `json:"oxy_Hb"`
	DeoxyHb      Matrix  `json:"deoxy_Hb"`
	SamplingRate float64 `json:"fs"`
}

// FromAverage assembles a bundle from the averaging result and the cleaned
// [channel][sample] concentration signals.
func FromAverage(res average.Result, oxy, deoxy [][]float64, fs float64) *Bundle {
	return &Bundle{
		HeadOxy:      res.Oxy,
		HeadDeoxy:    res.Deoxy,
		HeadOxyStd:   res.OxyStd,
		HeadDeoxyStd: res.DeoxyStd,
		HeadOxyCon:   res.ContinuousOxy,
		HeadDeoxyCon: res.ContinuousDeoxy,
		OxyHb:        average.Transpose(oxy),
		DeoxyHb:      average.Transpose(deoxy),
		SamplingRate: fs,
	}
}

// Validate checks that the averaged matrices agree in shape.
func (b *Bundle) Validate() error {
	if len(b.HeadOxy) == 0 {
		return fmt.Errorf("head_oxy is empty")
	}
	ch := b.HeadOxy.Channels()
	for name, m := range map[string]Matrix{
		"head_deoxy":     b.HeadDeoxy,
		"head_oxy_std":   b.HeadOxyStd,
		"head_deoxy_std": b.HeadDeoxyStd,
	} {
		if len(m) != len(b.HeadOxy) || m.Channels() != ch {
			return fmt.Errorf("%s is %dx%d, head_oxy is %dx%d", name, len(m), m.Channels(), len(b.HeadOxy), ch)
		}
	}
	if b.SamplingRate <= 0 {
		return fmt.Errorf("invalid sampling rate %g", b.SamplingRate)
	}
	return nil
}

// Write stores the bundle as JSON.
func Write(path string, b *Bundle) error {
	return writeJSON(path, b)
}

// Read loads and validates a bundle.
func Read(path string) (*Bundle, error) {
	var b Bundle
	if err := readJSON(path, &b); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, services.Wrap(services.ErrValidation, "bundle", "read", path, err)
	}
	return &b, nil
}

// WriteSettings stores the settings record.
func WriteSettings(path string, a config.Analysis) error {
	return writeJSON(path, a)
}

// ReadSettings loads a settings record.
func ReadSettings(path string) (config.Analysis, error) {
	var a config.Analysis
	err := readJSON(path, &a)
	return a, err
}

// SettingsFor returns the settings record written next to a bundle.
func SettingsFor(bundlePath string) string {
	return strings.TrimSuffix(bundlePath, bundleSuffix) + settingsSuffix
}

func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "   ")
	if err := enc.Encode(v); err != nil {
		return services.Wrap(services.ErrIO, "bundle", "encode", filepath.Base(path), err)
	}
	if err := fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return services.Wrap(services.ErrIO, "bundle", "write", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return services.Wrap(services.ErrNotFound, "bundle", "read", path, err)
		}
		return services.Wrap(services.ErrIO, "bundle", "read", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return services.Wrap(services.ErrValidation, "bundle", "decode", path, err)
	}
	return nil
}
