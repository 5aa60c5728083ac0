package recording

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/OpenPSG/edf"

	"nica/internal/services"
)

// EDF signal labels.
const (
	LabelECG         = "ECG"
	LabelRespiration = "RESP"
	LabelMarker      = "MARKER"

	maxRecordBytes  = 61440
	maxRecordLength = 60
)

func opticalLabel(wavelength, channel int) string {
	return fmt.Sprintf("WL%d %d", wavelength, channel)
}

// edfLayout is the part of the EDF header the decoder needs beyond what the
// edf.Reader exposes.
type edfLayout struct {
	start       time.Time
	records     int
	duration    float64
	labels      []string
	transducers []string
	perRecord   []int
}

func (l edfLayout) rate(i int) float64 {
	if l.duration <= 0 {
		return 0
	}
	return float64(l.perRecord[i]) / l.duration
}

func (l edfLayout) index(label string) int {
	for i, name := range l.labels {
		if name == label {
			return i
		}
	}
	return -1
}

func scanEDFHeader(data []byte) (edfLayout, error) {
	var layout edfLayout
	if len(data) < 256 {
		return layout, errors.New("header truncated")
	}
	field := func(b []byte) string { return strings.TrimSpace(string(b)) }

	ns, err := strconv.Atoi(field(data[252:256]))
	if err != nil || ns <= 0 {
		return layout, fmt.Errorf("invalid signal count %q", field(data[252:256]))
	}
	if len(data) < 256+ns*256 {
		return layout, errors.New("signal header truncated")
	}
	if layout.records, err = strconv.Atoi(field(data[236:244])); err != nil {
		return layout, fmt.Errorf("invalid record count: %w", err)
	}
	if layout.duration, err = strconv.ParseFloat(field(data[244:252]), 64); err != nil {
		return layout, fmt.Errorf("invalid record duration: %w", err)
	}
	if start, err := time.Parse("02.01.06 15.04.05", field(data[168:176])+" "+field(data[176:184])); err == nil {
		layout.start = start
	}

	block := data[256 : 256+ns*256]
	column := func(offset, width, i int) string {
		pos := ns*offset + i*width
		return field(block[pos : pos+width])
	}
	layout.labels = make([]string, ns)
	layout.transducers = make([]string, ns)
	layout.perRecord = make([]int, ns)
	for i := 0; i < ns; i++ {
		layout.labels[i] = column(0, 16, i)
		layout.transducers[i] = column(16, 80, i)
		spr, err := strconv.Atoi(column(16+80+8+8+8+8+8+80, 8, i))
		if err != nil {
			return layout, fmt.Errorf("invalid samples per record for %q", layout.labels[i])
		}
		layout.perRecord[i] = spr
	}
	return layout, nil
}

func parseOffset(transducer string) float64 {
	value, ok := strings.CutPrefix(transducer, "t0=")
	if !ok {
		return 0
	}
	t0, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return t0
}

// ReadEDFFile loads a recording exported as EDF with WLxxx, ECG, RESP and
// MARKER signals.
func ReadEDFFile(path string) (*Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "recording", "open", path, err)
	}
	rec, err := DecodeEDF(data)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DecodeEDF decodes an EDF byte image.
func DecodeEDF(data []byte) (*Recording, error) {
	invalid := func(msg string, err error) error {
		return services.Wrap(services.ErrValidation, "recording", "decode edf", msg, err)
	}
	layout, err := scanEDFHeader(data)
	if err != nil {
		return nil, invalid("malformed header", err)
	}
	reader, err := edf.Open(bytes.NewReader(data))
	if err != nil {
		return nil, invalid("malformed header", err)
	}
	readSignal := func(i int) ([]float64, error) {
		sr, err := reader.Signal(i)
		if err != nil {
			return nil, err
		}
		out := make([]float64, layout.records*layout.perRecord[i])
		n, err := sr.Read(out)
		if err != nil && !(errors.Is(err, io.EOF) && n == len(out)) {
			return nil, fmt.Errorf("signal %q: %w", layout.labels[i], err)
		}
		return out, nil
	}

	rec := &Recording{Header: Header{Start: layout.start}}
	for ch := 1; ; ch++ {
		i760, i850 := layout.index(opticalLabel(760, ch)), layout.index(opticalLabel(850, ch))
		if i760 < 0 || i850 < 0 {
			break
		}
		a, err := readSignal(i760)
		if err != nil {
			return nil, invalid("read optical channel", err)
		}
		b, err := readSignal(i850)
		if err != nil {
			return nil, invalid("read optical channel", err)
		}
		if ch == 1 {
			rec.Header.SamplingRate = layout.rate(i760)
			rec.Time = TimeAxis(parseOffset(layout.transducers[i760]), rec.Header.SamplingRate, len(a))
		}
		rec.WL760 = append(rec.WL760, a)
		rec.WL850 = append(rec.WL850, b)
	}
	if len(rec.WL760) == 0 {
		return nil, invalid("no optical signals labelled WL760/WL850", nil)
	}

	im := layout.index(LabelMarker)
	if im < 0 {
		return nil, invalid("no MARKER signal", nil)
	}
	marks, err := readSignal(im)
	if err != nil {
		return nil, invalid("read markers", err)
	}
	t0, fs := parseOffset(layout.transducers[im]), layout.rate(im)
	for i, v := range marks {
		class := int(math.Round(v))
		if class != 0 {
			rec.Markers = append(rec.Markers, Marker{Time: t0 + float64(i)/fs, Class: class})
		}
	}

	ie, ir := layout.index(LabelECG), layout.index(LabelRespiration)
	if ie >= 0 && ir >= 0 {
		ecg, err := readSignal(ie)
		if err != nil {
			return nil, invalid("read ecg", err)
		}
		resp, err := readSignal(ir)
		if err != nil {
			return nil, invalid("read respiration", err)
		}
		bioFs := layout.rate(ie)
		rec.Bio = &Biosignals{
			SamplingRate: bioFs,
			Time:         TimeAxis(parseOffset(layout.transducers[ie]), bioFs, len(ecg)),
			ECG:          ecg,
			Respiration:  resp,
		}
	}
	return rec, nil
}

// WriteEDFFile exports the recording as EDF.
func WriteEDFFile(path string, rec *Recording) error {
	file, err := os.Create(path)
	if err != nil {
		return services.Wrap(services.ErrIO, "recording", "write edf", path, err)
	}
	if err := EncodeEDF(file, rec); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return services.Wrap(services.ErrIO, "recording", "write edf", path, err)
	}
	return nil
}

// EncodeEDF writes the recording as EDF. Markers become a MARKER signal at
// the optical rate holding the class at the sample nearest each trigger.
// Samples past the last complete data record are dropped.
func EncodeEDF(w io.WriteSeeker, rec *Recording) error {
	fail := func(msg string, err error) error {
		return services.Wrap(services.ErrValidation, "recording", "encode edf", msg, err)
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	fs := rec.Header.SamplingRate
	var bioFs float64
	if rec.Bio != nil {
		bioFs = rec.Bio.SamplingRate
	}
	duration, err := recordDuration(fs, bioFs, 2*rec.Channels()+1, rec.Bio != nil)
	if err != nil {
		return fail(err.Error(), nil)
	}

	optPer := int(math.Round(fs * float64(duration)))
	records := rec.Samples() / optPer
	bioPer := 0
	if rec.Bio != nil {
		bioPer = int(math.Round(bioFs * float64(duration)))
		records = min(records, len(rec.Bio.ECG)/bioPer)
	}
	if records == 0 {
		return fail(fmt.Sprintf("recording shorter than one %ds data record", duration), nil)
	}

	t0 := rec.Time[0]
	markers := make([]float64, rec.Samples())
	for _, m := range rec.Markers {
		idx := int(math.Round((m.Time - t0) * fs))
		if idx >= 0 && idx < len(markers) {
			markers[idx] = float64(m.Class)
		}
	}

	var (
		signals [][]float64
		hdrs    []edf.Signal
	)
	add := func(label, dimension string, offset float64, data []float64, per int) {
		lo, hi := physicalRange(data[:records*per])
		hdrs = append(hdrs, edf.Signal{
			Label:             label,
			TransducerType:    "t0=" + strconv.FormatFloat(offset, 'g', -1, 64),
			PhysicalDimension: dimension,
			PhysicalMin:       lo,
			PhysicalMax:       hi,
			DigitalMin:        math.MinInt16,
			DigitalMax:        math.MaxInt16,
			SamplesPerRecord:  per,
		})
		signals = append(signals, data)
	}
	for ch := range rec.WL760 {
		add(opticalLabel(760, ch+1), "a.u.", t0, rec.WL760[ch], optPer)
	}
	for ch := range rec.WL850 {
		add(opticalLabel(850, ch+1), "a.u.", t0, rec.WL850[ch], optPer)
	}
	add(LabelMarker, "", t0, markers, optPer)
	if rec.Bio != nil {
		add(LabelECG, "uV", rec.Bio.Time[0], rec.Bio.ECG, bioPer)
		add(LabelRespiration, "a.u.", rec.Bio.Time[0], rec.Bio.Respiration, bioPer)
	}

	writer, err := edf.Create(w, edf.Header{
		Version:            edf.Version0,
		PatientID:          "X X X X",
		RecordingID:        fmt.Sprintf("Startdate X X X %s", rec.Name),
		StartTime:          rec.Header.Start,
		DataRecordDuration: time.Duration(duration) * time.Second,
		SignalCount:        len(hdrs),
		Signals:            hdrs,
	})
	if err != nil {
		return services.Wrap(services.ErrIO, "recording", "encode edf", "write header", err)
	}
	block := make([][]float64, len(signals))
	for r := 0; r < records; r++ {
		for i, data := range signals {
			per := hdrs[i].SamplesPerRecord
			block[i] = data[r*per : (r+1)*per]
		}
		if err := writer.WriteRecord(block); err != nil {
			return services.Wrap(services.ErrIO, "recording", "encode edf", fmt.Sprintf("write record %d", r), err)
		}
	}
	if err := writer.Close(); err != nil {
		return services.Wrap(services.ErrIO, "recording", "encode edf", "finalize header", err)
	}
	return nil
}

// recordDuration picks the shortest whole-second record that holds an
// integral number of samples for every stream and fits the EDF record size
// limit.
func recordDuration(fs, bioFs float64, opticalSignals int, bio bool) (int, error) {
	integral := func(v float64) bool { return math.Abs(v-math.Round(v)) < 1e-9 }
	for d := 1; d <= maxRecordLength; d++ {
		opt := fs * float64(d)
		if !integral(opt) {
			continue
		}
		size := opticalSignals * int(math.Round(opt)) * 2
		if bio {
			b := bioFs * float64(d)
			if !integral(b) {
				continue
			}
			size += 2 * int(math.Round(b)) * 2
		}
		if size > maxRecordBytes {
			return 0, fmt.Errorf("sampling rates %g/%g Hz exceed the EDF record size", fs, bioFs)
		}
		return d, nil
	}
	return 0, fmt.Errorf("no record duration up to %ds holds whole samples at %g Hz", maxRecordLength, fs)
}

// physicalRange pads the data range so that the header text (two decimals)
// still encloses every sample.
func physicalRange(data []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return -1, 1
	}
	lo = math.Floor(lo*100)/100 - 0.01
	hi = math.Ceil(hi*100)/100 + 0.01
	if len(strconv.FormatFloat(lo, 'f', 2, 64)) > 8 {
		lo = math.Floor(lo) - 1
	}
	if len(strconv.FormatFloat(hi, 'f', 2, 64)) > 8 {
		hi = math.Ceil(hi) + 1
	}
	return lo, hi
}
